// Copyright 2025 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema holds small validators for wire messages: PKCE pair
// construction/verification, constant-time string comparison, and a
// generic "exactly one of X/Y" check (ExactlyOne). It does not own any
// message type and does no draft normalization.
package schema

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// PKCEPair is the value of spec.md §3's PKCE pair.
type PKCEPair struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string // "S256" or "plain"
}

// PreferredMethod implements spec.md §4.4's PKCE method policy: S256
// whenever the server advertises it, plain only if explicitly
// advertised and S256 isn't, and "" (omit PKCE) otherwise.
func PreferredMethod(serverSupported []string) string {
	for _, m := range serverSupported {
		if m == "S256" {
			return "S256"
		}
	}
	for _, m := range serverSupported {
		if m == "plain" {
			return "plain"
		}
	}
	return ""
}

// GeneratePKCE builds a PKCE pair for method. If verifier is "", 32
// random bytes are generated and base64url-encoded per spec.md §4.4.
func GeneratePKCE(ctx context.Context, cb callback.Callbacks, method, verifier string) (*PKCEPair, error) {
	if verifier == "" {
		if cb.GenerateRandom == nil {
			return nil, fmt.Errorf("schema.GeneratePKCE: GenerateRandom callback required")
		}
		b, err := cb.GenerateRandom(ctx, 32)
		if err != nil {
			return nil, fmt.Errorf("generating code_verifier: %w", err)
		}
		verifier = jwkutil.EncodeBase64URL(b)
	}
	if len(verifier) < 43 || len(verifier) > 128 {
		return nil, &oiderr.ValidationError{Field: "code_verifier", Reason: "must be 43-128 characters"}
	}

	switch method {
	case "S256":
		if cb.Hash == nil {
			return nil, fmt.Errorf("schema.GeneratePKCE: Hash callback required for S256")
		}
		sum, err := cb.Hash(ctx, []byte(verifier), callback.SHA256)
		if err != nil {
			return nil, fmt.Errorf("hashing code_verifier: %w", err)
		}
		return &PKCEPair{CodeVerifier: verifier, CodeChallenge: jwkutil.EncodeBase64URL(sum), CodeChallengeMethod: "S256"}, nil
	case "plain":
		return &PKCEPair{CodeVerifier: verifier, CodeChallenge: verifier, CodeChallengeMethod: "plain"}, nil
	case "":
		return &PKCEPair{CodeVerifier: verifier}, nil
	default:
		return nil, &oiderr.ValidationError{Field: "code_challenge_method", Reason: fmt.Sprintf("unsupported method %q", method)}
	}
}

// VerifyPKCE recomputes code_challenge from verifier per method and
// compares it, in constant time, against expectedChallenge (spec.md
// §4.6, §5 "constant-time comparisons").
func VerifyPKCE(ctx context.Context, cb callback.Callbacks, method, verifier, expectedChallenge string) (bool, error) {
	switch method {
	case "S256":
		if cb.Hash == nil {
			return false, fmt.Errorf("schema.VerifyPKCE: Hash callback required for S256")
		}
		sum, err := cb.Hash(ctx, []byte(verifier), callback.SHA256)
		if err != nil {
			return false, fmt.Errorf("hashing code_verifier: %w", err)
		}
		return ConstantTimeEqual(jwkutil.EncodeBase64URL(sum), expectedChallenge), nil
	case "plain":
		return ConstantTimeEqual(verifier, expectedChallenge), nil
	default:
		return false, &oiderr.ValidationError{Field: "code_challenge_method", Reason: fmt.Sprintf("unsupported method %q", method)}
	}
}

// ConstantTimeEqual compares two strings without leaking timing
// information about where they first differ (spec.md §5).
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// still perform the comparison so callers can't distinguish
		// a length mismatch from a content mismatch by timing.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ExactlyOne validates that exactly one of the named present fields is
// true (e.g. "proof" XOR "proofs", or credential_identifier XOR a
// format object). credential.ParseRequest applies the same rule through
// its own unexported helper rather than this function.
func ExactlyOne(present map[string]bool) error {
	var which string
	count := 0
	for name, ok := range present {
		if ok {
			count++
			which = name
		}
	}
	if count == 1 {
		return nil
	}
	if count == 0 {
		return &oiderr.ValidationError{Reason: "exactly one of the mutually exclusive fields must be present, got none"}
	}
	return &oiderr.ValidationError{Reason: fmt.Sprintf("exactly one of the mutually exclusive fields must be present, got %d (last: %s)", count, which)}
}
