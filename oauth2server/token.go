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

package oauth2server

import (
	"context"
	"fmt"
	"time"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/dpop"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
)

// CreateAccessTokenJWTParams configures spec.md §4.6
// createAccessTokenJWT. The issuer signs a JWT-format access token
// rather than handing back an opaque string, so resource.VerifyResourceRequest
// can check it the same way it checks any other signed JWT.
type CreateAccessTokenJWTParams struct {
	Signer      callback.Signer
	Issuer      string
	Subject     string
	Audience    string
	ExpiresIn   time.Duration
	Scope       string
	// DPoPThumbprint, if non-empty, binds the token to a DPoP key via
	// cnf.jkt (spec.md §4.7). Left empty mints a plain Bearer token.
	DPoPThumbprint string
	Now            time.Time
}

// CreateAccessTokenJWT implements spec.md §4.6 createAccessTokenJWT.
func CreateAccessTokenJWT(ctx context.Context, cb callback.Callbacks, p CreateAccessTokenJWTParams) (string, error) {
	if cb.SignJWT == nil || cb.GenerateRandom == nil {
		return "", fmt.Errorf("oauth2server.CreateAccessTokenJWT: SignJWT and GenerateRandom callbacks are required")
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	jtiBytes, err := cb.GenerateRandom(ctx, 16)
	if err != nil {
		return "", fmt.Errorf("generating jti: %w", err)
	}

	header := map[string]any{
		"typ": "at+jwt",
		"alg": p.Signer.Alg,
	}

	payload := map[string]any{
		"iss": p.Issuer,
		"sub": p.Subject,
		"aud": p.Audience,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
		"jti": jwkutil.EncodeBase64URL(jtiBytes),
	}
	if p.Scope != "" {
		payload["scope"] = p.Scope
	}
	if p.DPoPThumbprint != "" {
		payload["cnf"] = map[string]any{"jkt": p.DPoPThumbprint}
	}

	return cb.SignJWT(ctx, p.Signer, callback.SignInput{Header: header, Payload: payload})
}

// AccessTokenResponse is the wire shape minted onto the wire in
// response to a token request (spec.md §4.6 createAccessTokenResponse).
type AccessTokenResponse struct {
	AccessToken          string           `json:"access_token"`
	TokenType            string           `json:"token_type"`
	ExpiresIn            int              `json:"expires_in"`
	Scope                string           `json:"scope,omitempty"`
	CNonce               string           `json:"c_nonce,omitempty"`
	CNonceExpiresIn      int              `json:"c_nonce_expires_in,omitempty"`
	AuthorizationDetails []map[string]any `json:"authorization_details,omitempty"`
}

// CreateAccessTokenResponseParams configures CreateAccessTokenResponse.
type CreateAccessTokenResponseParams struct {
	AccessToken          string
	ExpiresIn            time.Duration
	Scope                string
	CNonce               string
	CNonceExpiresIn      time.Duration
	AuthorizationDetails []map[string]any
	// DPoPBound reflects whether the token was minted with a cnf.jkt
	// binding; token_type must then be "DPoP" rather than "Bearer"
	// (RFC 9449 §5).
	DPoPBound bool
}

// CreateAccessTokenResponse implements spec.md §4.6
// createAccessTokenResponse: DPoP-bound tokens get token_type "DPoP",
// otherwise "Bearer".
func CreateAccessTokenResponse(p CreateAccessTokenResponseParams) AccessTokenResponse {
	tokenType := "Bearer"
	if p.DPoPBound {
		tokenType = "DPoP"
	}
	resp := AccessTokenResponse{
		AccessToken:          p.AccessToken,
		TokenType:            tokenType,
		ExpiresIn:            int(p.ExpiresIn / time.Second),
		Scope:                p.Scope,
		CNonce:               p.CNonce,
		AuthorizationDetails: p.AuthorizationDetails,
	}
	if p.CNonce != "" {
		resp.CNonceExpiresIn = int(p.CNonceExpiresIn / time.Second)
	}
	return resp
}

// ExtractDPoPBinding verifies an inbound DPoP proof against the token
// endpoint request and returns the jkt to embed in the minted token,
// implementing the DPoP half of spec.md §4.6 step "bind the token to
// the DPoP key if a proof was presented".
func ExtractDPoPBinding(ctx context.Context, cb callback.Callbacks, proof, method, url string) (string, error) {
	if proof == "" {
		return "", nil
	}
	result, err := dpop.Verify(ctx, cb, dpop.VerifyParams{Proof: proof, Method: method, URL: url})
	if err != nil {
		return "", err
	}
	return result.Thumbprint, nil
}
