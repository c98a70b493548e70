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

// Package oauth2server implements the issuer/authorization-server side
// of token issuance: parsing and verifying token requests, and minting
// access tokens. Not present in the teacher (a wallet-only tool); built
// directly from spec.md §4.6, following the teacher's typed-struct
// decoding idiom rather than map[string]any throughout.
package oauth2server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// GrantType identifies the dispatched grant in a token request.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypePreAuthorizedCode GrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// AccessTokenRequest is the parsed body of a POST to token_endpoint,
// dispatched on GrantType.
type AccessTokenRequest struct {
	GrantType GrantType

	// GrantTypePreAuthorizedCode
	PreAuthorizedCode string
	TxCode            string

	// GrantTypeAuthorizationCode
	Code         string
	CodeVerifier string

	// Present on either grant if the client sent a DPoP proof. Only
	// shape, not signature, has been checked at this point (spec.md
	// §4.6: "validate JWT shape only (not signature yet)").
	DPoPProof string
}

// ParseAccessTokenRequest implements spec.md §4.6
// parseAccessTokenRequest. form is the already-decoded
// application/x-www-form-urlencoded body.
func ParseAccessTokenRequest(header http.Header, form map[string][]string) (*AccessTokenRequest, error) {
	get := func(key string) string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	grantType := GrantType(get("grant_type"))
	req := &AccessTokenRequest{GrantType: grantType}

	switch grantType {
	case GrantTypePreAuthorizedCode:
		req.PreAuthorizedCode = get("pre-authorized_code")
		if req.PreAuthorizedCode == "" {
			return nil, &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_request", ErrorDescription: "pre-authorized_code is required"}}
		}
		req.TxCode = get("tx_code")
	case GrantTypeAuthorizationCode:
		req.Code = get("code")
		if req.Code == "" {
			return nil, &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_request", ErrorDescription: "code is required"}}
		}
		req.CodeVerifier = get("code_verifier")
	case "":
		return nil, &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_request", ErrorDescription: "grant_type is required"}}
	default:
		return nil, &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "unsupported_grant_type", ErrorDescription: fmt.Sprintf("unsupported grant_type %q", grantType)}}
	}

	if dpopHeader := header.Get("DPoP"); dpopHeader != "" {
		if _, err := jwkutil.ParseCompact(dpopHeader); err != nil {
			return nil, &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_dpop_proof", ErrorDescription: err.Error()}}
		}
		req.DPoPProof = dpopHeader
	}

	return req, nil
}

// ExpectedPreAuthorizedCode is the state the server persisted out of
// band for a pre-authorized-code grant (spec.md §4.6).
type ExpectedPreAuthorizedCode struct {
	Code   string
	TxCode string // "" if none required
}

// VerifyResult carries the DPoP binding to embed in the minted token.
type VerifyResult struct {
	DPoPJWK        map[string]any
	DPoPThumbprint string
}

// VerifyPreAuthorizedCodeAccessTokenRequest implements spec.md §4.6
// verifyPreAuthorizedCodeAccessTokenRequest: the code and tx_code are
// compared with equal (schema.ConstantTimeEqual for constant time,
// spec.md §5). DPoP is not looked at here; the caller verifies it
// separately (ExtractDPoPBinding / dpop.Verify).
func VerifyPreAuthorizedCodeAccessTokenRequest(ctx context.Context, req *AccessTokenRequest, expected ExpectedPreAuthorizedCode, equal func(a, b string) bool) error {
	if req.GrantType != GrantTypePreAuthorizedCode {
		return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "not a pre-authorized_code request"}}
	}
	if !equal(req.PreAuthorizedCode, expected.Code) {
		return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "pre-authorized_code does not match"}}
	}
	if expected.TxCode != "" && !equal(req.TxCode, expected.TxCode) {
		return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "tx_code does not match"}}
	}
	return nil
}

// ExpectedAuthorizationCode is the state the server persisted out of
// band for an authorization-code grant.
type ExpectedAuthorizationCode struct {
	Code                string
	CodeChallenge       string
	CodeChallengeMethod string
}

// VerifyAuthorizationCodeAccessTokenRequest implements spec.md §4.6
// verifyAuthorizationCodeAccessTokenRequest: the stored code_challenge
// is recomputed from the supplied code_verifier per the stored method
// and compared in constant time. verifyPKCE should be
// schema.VerifyPKCE bound to a concrete Hash callback.
func VerifyAuthorizationCodeAccessTokenRequest(ctx context.Context, req *AccessTokenRequest, expected ExpectedAuthorizationCode, equal func(a, b string) bool, verifyPKCE func(ctx context.Context, method, verifier, challenge string) (bool, error)) error {
	if req.GrantType != GrantTypeAuthorizationCode {
		return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "not an authorization_code request"}}
	}
	if !equal(req.Code, expected.Code) {
		return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "code does not match"}}
	}
	if expected.CodeChallenge != "" {
		ok, err := verifyPKCE(ctx, expected.CodeChallengeMethod, req.CodeVerifier, expected.CodeChallenge)
		if err != nil {
			return err
		}
		if !ok {
			return &oiderr.Oauth2ServerErrorResponseError{Envelope: oiderr.ErrorEnvelope{Error: "invalid_grant", ErrorDescription: "code_verifier does not match code_challenge"}}
		}
	}
	return nil
}
