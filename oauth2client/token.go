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

package oauth2client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/dpop"
	"github.com/dominikschlosser/oid4vci-core/metadata"
)

// AccessTokenResponse is the wire shape of a successful token response
// (spec.md §4.6 createAccessTokenResponse, consumed here by the client).
type AccessTokenResponse struct {
	AccessToken          string           `json:"access_token"`
	TokenType            string           `json:"token_type"`
	ExpiresIn            int              `json:"expires_in"`
	Scope                string           `json:"scope,omitempty"`
	CNonce               string           `json:"c_nonce,omitempty"`
	CNonceExpiresIn      int              `json:"c_nonce_expires_in,omitempty"`
	AuthorizationDetails []map[string]any `json:"authorization_details,omitempty"`
}

// DPoPState carries the outcome of the DPoP handshake back to the
// caller so it can reuse the same nonce/key on the credential request.
type DPoPState struct {
	Nonce  string
	Signer *callback.Signer
}

// TokenResult is the result of a token acquisition call.
type TokenResult struct {
	AccessTokenResponse AccessTokenResponse
	DPoP                DPoPState
	AuthorizationServer metadata.AuthorizationServerMetadata
}

// RetrievePreAuthorizedCodeAccessTokenParams configures the
// pre-authorized-code token request of spec.md §4.5.
type RetrievePreAuthorizedCodeAccessTokenParams struct {
	AuthorizationServer metadata.AuthorizationServerMetadata
	PreAuthorizedCode   string
	TxCode              string
	DPoPSigner          *callback.Signer
}

// RetrievePreAuthorizedCodeAccessToken implements spec.md §4.5's
// pre-authorized code branch.
func RetrievePreAuthorizedCodeAccessToken(ctx context.Context, cb callback.Callbacks, p RetrievePreAuthorizedCodeAccessTokenParams) (*TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:pre-authorized_code")
	form.Set("pre-authorized_code", p.PreAuthorizedCode)
	if p.TxCode != "" {
		if p.AuthorizationServer.Draft11 {
			// spec.md §9 Scenario 2: a draft-11 server (discovered only
			// via the legacy openid-configuration well-known) expects
			// the pre-normalization field name.
			form.Set("user_pin", p.TxCode)
		} else {
			form.Set("tx_code", p.TxCode)
		}
	}
	return requestToken(ctx, cb, p.AuthorizationServer, form, p.DPoPSigner)
}

// RetrieveAuthorizationCodeAccessTokenParams configures the
// authorization-code token request of spec.md §4.5.
type RetrieveAuthorizationCodeAccessTokenParams struct {
	AuthorizationServer metadata.AuthorizationServerMetadata
	Code                string
	RedirectURI         string
	CodeVerifier        string
	DPoPSigner          *callback.Signer
}

// RetrieveAuthorizationCodeAccessToken implements spec.md §4.5's
// authorization-code branch.
func RetrieveAuthorizationCodeAccessToken(ctx context.Context, cb callback.Callbacks, p RetrieveAuthorizationCodeAccessTokenParams) (*TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", p.Code)
	if p.RedirectURI != "" {
		form.Set("redirect_uri", p.RedirectURI)
	}
	if p.CodeVerifier != "" {
		form.Set("code_verifier", p.CodeVerifier)
	}
	return requestToken(ctx, cb, p.AuthorizationServer, form, p.DPoPSigner)
}

// requestToken implements the shared POST + DPoP nonce-retry handshake
// of spec.md §4.5 steps 1-4.
func requestToken(ctx context.Context, cb callback.Callbacks, as metadata.AuthorizationServerMetadata, form url.Values, dpopSigner *callback.Signer) (*TokenResult, error) {
	if cb.Fetch == nil {
		return nil, fmt.Errorf("Fetch callback required")
	}
	if err := applyClientAuth(ctx, cb, as.TokenEndpoint, form); err != nil {
		return nil, err
	}

	post := func(nonce string) (body []byte, status int, dpopNonce string, err error) {
		var proofHeader string
		if dpopSigner != nil {
			proofHeader, err = dpop.Create(ctx, cb, dpop.CreateParams{
				Signer: *dpopSigner,
				Method: http.MethodPost,
				URL:    as.TokenEndpoint,
				Nonce:  nonce,
			})
			if err != nil {
				return nil, 0, "", fmt.Errorf("creating dpop proof: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, as.TokenEndpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, 0, "", fmt.Errorf("building token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if proofHeader != "" {
			req.Header.Set("DPoP", proofHeader)
		}

		resp, err := cb.Fetch(ctx, req)
		if err != nil {
			return nil, 0, "", fmt.Errorf("posting to token endpoint: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, "", fmt.Errorf("reading token response: %w", err)
		}
		return body, resp.StatusCode, resp.Header.Get("DPoP-Nonce"), nil
	}

	body, status, respNonce, err := post("")
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest && dpopSigner != nil && isUseDPoPNonce(body) && respNonce != "" {
		usedNonce := respNonce
		body, status, respNonce, err = post(usedNonce)
		if err != nil {
			return nil, err
		}
		if respNonce == "" {
			respNonce = usedNonce
		}
	}

	if status < 200 || status >= 300 {
		return nil, decodeClientError(status, body)
	}

	var tr AccessTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}

	result := &TokenResult{AccessTokenResponse: tr, AuthorizationServer: as}
	result.DPoP.Nonce = respNonce
	result.DPoP.Signer = dpopSigner
	return result, nil
}

func isUseDPoPNonce(body []byte) bool {
	var env struct {
		Error string `json:"error"`
	}
	return json.Unmarshal(body, &env) == nil && env.Error == "use_dpop_nonce"
}
