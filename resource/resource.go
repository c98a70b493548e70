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

// Package resource verifies inbound requests to a protected resource
// (the credential endpoint): Authorization header parsing, access
// token signature/claim checks, and DPoP proof-of-possession binding.
// Built directly from spec.md §4.9; not present in the teacher, which
// never plays the role of a resource server. Shares its JWT-shape
// checks with dpop and oauth2server rather than reimplementing them.
package resource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/dpop"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// Scheme distinguishes the Authorization header scheme the client used.
type Scheme string

const (
	SchemeBearer Scheme = "Bearer"
	SchemeDPoP   Scheme = "DPoP"
)

// VerifyResourceRequestParams configures spec.md §4.9
// verifyResourceRequest.
type VerifyResourceRequestParams struct {
	Header http.Header
	Method string
	URL    string

	Issuer   string
	Audience string

	// AllowedAuthenticationSchemes restricts which Authorization
	// schemes this resource server accepts (spec.md §4.9 step 1: "scheme
	// must be in the allowed set"). Empty means both Bearer and DPoP are
	// accepted - the historical default.
	AllowedAuthenticationSchemes []Scheme

	// VerifyAccessToken checks the access token's signature and
	// returns its claims. Resource servers don't generally hold the
	// issuer's private key, so this is injected rather than assumed
	// to be cb.VerifyJWT against a fixed local key - the caller
	// decides how the issuer's signing key is resolved (JWKS fetch,
	// local cache, etc).
	VerifyAccessToken func(ctx context.Context, compact string) (map[string]any, error)

	ClockSkew time.Duration
	Now       time.Time
}

// Result carries the verified claims and DPoP binding back to the
// caller.
type Result struct {
	Claims     map[string]any
	Scheme     Scheme
	DPoPProof  *dpop.Proof
}

// VerifyResourceRequest implements spec.md §4.9: parses the
// Authorization header, verifies the access token, and - if the token
// carries a cnf.jkt - requires and verifies a matching DPoP proof
// bound to this exact request. A Bearer-scheme request against a
// cnf.jkt-bound token is rejected (RFC 9449 §7.1).
func VerifyResourceRequest(ctx context.Context, cb callback.Callbacks, p VerifyResourceRequestParams) (*Result, error) {
	authz := p.Header.Get("Authorization")
	if authz == "" {
		return nil, &oiderr.ValidationError{Field: "authorization", Reason: "missing Authorization header"}
	}

	var scheme Scheme
	var token string
	switch {
	case strings.HasPrefix(authz, "DPoP "):
		scheme = SchemeDPoP
		token = strings.TrimPrefix(authz, "DPoP ")
	case strings.HasPrefix(authz, "Bearer "):
		scheme = SchemeBearer
		token = strings.TrimPrefix(authz, "Bearer ")
	default:
		return nil, &oiderr.ValidationError{Field: "authorization", Reason: "unsupported Authorization scheme"}
	}
	if token == "" {
		return nil, &oiderr.ValidationError{Field: "authorization", Reason: "empty access token"}
	}
	if len(p.AllowedAuthenticationSchemes) > 0 && !schemeAllowed(scheme, p.AllowedAuthenticationSchemes) {
		return nil, &oiderr.ValidationError{Field: "authorization", Reason: fmt.Sprintf("%s scheme is not in the allowed set", scheme)}
	}

	if p.VerifyAccessToken == nil {
		return nil, fmt.Errorf("resource.VerifyResourceRequest: VerifyAccessToken is required")
	}
	claims, err := p.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying access token: %w", err)
	}

	if iss, _ := claims["iss"].(string); p.Issuer != "" && iss != p.Issuer {
		return nil, &oiderr.ValidationError{Field: "iss", Reason: "access token issuer does not match"}
	}
	if p.Audience != "" && !audienceContains(claims["aud"], p.Audience) {
		return nil, &oiderr.ValidationError{Field: "aud", Reason: "access token audience does not match"}
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	skew := p.ClockSkew
	if skew == 0 {
		skew = dpop.DefaultClockSkew
	}
	if exp, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(exp), 0).Before(now.Add(-skew)) {
			return nil, &oiderr.ValidationError{Field: "exp", Reason: "access token expired"}
		}
	}
	if iat, ok := claims["iat"].(float64); ok {
		if time.Unix(int64(iat), 0).After(now.Add(skew)) {
			return nil, &oiderr.ValidationError{Field: "iat", Reason: "access token not yet valid"}
		}
	}

	jkt := cnfJKT(claims)

	if jkt == "" {
		if scheme == SchemeDPoP {
			return nil, &oiderr.ValidationError{Reason: "DPoP scheme used with a token that has no cnf.jkt binding"}
		}
		return &Result{Claims: claims, Scheme: scheme}, nil
	}

	if scheme != SchemeDPoP {
		return nil, &oiderr.ValidationError{Reason: "access token is DPoP-bound but request used the Bearer scheme"}
	}
	proofHeader := p.Header.Get("DPoP")
	if proofHeader == "" {
		return nil, &oiderr.ValidationError{Field: "dpop", Reason: "missing DPoP proof for DPoP-bound access token"}
	}

	proof, err := dpop.Verify(ctx, cb, dpop.VerifyParams{
		Proof:       proofHeader,
		Method:      p.Method,
		URL:         p.URL,
		AccessToken: token,
		RequireATH:  true,
		ClockSkew:   skew,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if !jwkutil.IsPublicJWK(proof.JWK) {
		return nil, &oiderr.ValidationError{Field: "dpop.jwk", Reason: "DPoP proof jwk is not a valid public key"}
	}
	if proof.Thumbprint != jkt {
		return nil, &oiderr.ValidationError{Field: "dpop", Reason: "DPoP proof key does not match access token cnf.jkt"}
	}

	return &Result{Claims: claims, Scheme: scheme, DPoPProof: proof}, nil
}

func schemeAllowed(scheme Scheme, allowed []Scheme) bool {
	for _, s := range allowed {
		if s == scheme {
			return true
		}
	}
	return false
}

func cnfJKT(claims map[string]any) string {
	cnf, ok := claims["cnf"].(map[string]any)
	if !ok {
		return ""
	}
	jkt, _ := cnf["jkt"].(string)
	return jkt
}

func audienceContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
