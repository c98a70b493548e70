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

// Package oauth2client drives the wallet side of the OAuth 2.0
// exchange: initiating authorization (plain redirect, PAR, or
// Authorization Challenge with its redirect_to_web/insufficient_authorization
// fallbacks) and acquiring an access token (pre-authorized code or
// authorization code, with the DPoP nonce-retry handshake). Grounded
// in the teacher's internal/wallet/issuance.go form-encoding and
// error-decoding idiom, generalized to the full policy of spec.md
// §4.4-§4.5 (none of which the wallet-only teacher implements).
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
	"github.com/dominikschlosser/oid4vci-core/metadata"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
	"github.com/dominikschlosser/oid4vci-core/schema"
)

// Flow discriminates the outcome of InitiateAuthorization.
type Flow string

const (
	FlowAuthorizationChallenge      Flow = "authorization_challenge"
	FlowOauth2Redirect              Flow = "oauth2_redirect"
	FlowPresentationDuringIssuance  Flow = "presentation_during_issuance"
)

// InitiateAuthorizationParams configures spec.md §4.4.
type InitiateAuthorizationParams struct {
	AuthorizationServer metadata.AuthorizationServerMetadata
	ClientID            string
	Scope               string
	RedirectURI         string
	IssuerState         string
	CodeVerifier        string // optional caller-supplied PKCE verifier

	// PresentationDuringIssuanceSession resumes a prior challenge
	// after the wallet completed an OID4VP presentation.
	PresentationDuringIssuanceSession string
}

// InitiateAuthorizationResult is the tagged-variant outcome of
// InitiateAuthorization.
type InitiateAuthorizationResult struct {
	Flow Flow

	// FlowAuthorizationChallenge
	AuthorizationCode string

	// FlowOauth2Redirect
	URL  string
	PKCE *schema.PKCEPair

	// FlowPresentationDuringIssuance
	Oid4vpRequestURL string
	AuthSession      string
}

// InitiateAuthorization implements the ordered policy of spec.md §4.4.
func InitiateAuthorization(ctx context.Context, cb callback.Callbacks, p InitiateAuthorizationParams) (*InitiateAuthorizationResult, error) {
	pkce, err := schema.GeneratePKCE(ctx, cb, schema.PreferredMethod(p.AuthorizationServer.CodeChallengeMethodsSupported), p.CodeVerifier)
	if err != nil {
		return nil, err
	}

	if p.AuthorizationServer.AuthorizationChallengeEndpoint != "" {
		return authorizationChallenge(ctx, cb, p, pkce)
	}
	if p.AuthorizationServer.RequirePushedAuthorizationRequests || p.AuthorizationServer.PushedAuthorizationRequestEndpoint != "" {
		return pushedAuthorizationRequest(ctx, cb, p, pkce)
	}
	return plainAuthorizationURL(p, pkce), nil
}

func authorizationChallenge(ctx context.Context, cb callback.Callbacks, p InitiateAuthorizationParams, pkce *schema.PKCEPair) (*InitiateAuthorizationResult, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	if p.Scope != "" {
		form.Set("scope", p.Scope)
	}
	if pkce.CodeChallenge != "" {
		form.Set("code_challenge", pkce.CodeChallenge)
		form.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}
	if p.PresentationDuringIssuanceSession != "" {
		form.Set("presentation_during_issuance_session", p.PresentationDuringIssuanceSession)
	}

	body, status, err := postForm(ctx, cb, p.AuthorizationServer.AuthorizationChallengeEndpoint, form)
	if err != nil {
		return nil, err
	}

	if status >= 200 && status < 300 {
		var ok struct {
			AuthorizationCode string `json:"authorization_code"`
		}
		if err := json.Unmarshal(body, &ok); err != nil {
			return nil, &oiderr.JSONParseError{Context: "authorization challenge response", Err: err}
		}
		return &InitiateAuthorizationResult{Flow: FlowAuthorizationChallenge, AuthorizationCode: ok.AuthorizationCode}, nil
	}

	var env oiderr.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &oiderr.InvalidFetchResponseError{StatusCode: status, Body: string(body)}
	}

	switch env.Error {
	case "redirect_to_web":
		if env.RequestURI != "" {
			v := url.Values{}
			v.Set("request_uri", env.RequestURI)
			v.Set("client_id", p.ClientID)
			return &InitiateAuthorizationResult{
				Flow: FlowOauth2Redirect,
				URL:  p.AuthorizationServer.AuthorizationEndpoint + "?" + v.Encode(),
				PKCE: pkce,
			}, nil
		}
		if p.AuthorizationServer.RequirePushedAuthorizationRequests || p.AuthorizationServer.PushedAuthorizationRequestEndpoint != "" {
			return pushedAuthorizationRequest(ctx, cb, p, pkce)
		}
		return plainAuthorizationURL(p, pkce), nil
	case "insufficient_authorization":
		if env.Presentation != "" && env.AuthSession != "" {
			return &InitiateAuthorizationResult{
				Flow:             FlowPresentationDuringIssuance,
				Oid4vpRequestURL: env.Presentation,
				AuthSession:      env.AuthSession,
			}, nil
		}
		return nil, &oiderr.Oauth2ClientAuthorizationChallengeError{StatusCode: status, Envelope: env}
	default:
		return nil, &oiderr.Oauth2ClientAuthorizationChallengeError{StatusCode: status, Envelope: env}
	}
}

func pushedAuthorizationRequest(ctx context.Context, cb callback.Callbacks, p InitiateAuthorizationParams, pkce *schema.PKCEPair) (*InitiateAuthorizationResult, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	form.Set("response_type", "code")
	if p.RedirectURI != "" {
		form.Set("redirect_uri", p.RedirectURI)
	}
	if p.Scope != "" {
		form.Set("scope", p.Scope)
	}
	if p.IssuerState != "" {
		form.Set("issuer_state", p.IssuerState)
	}
	if pkce.CodeChallenge != "" {
		form.Set("code_challenge", pkce.CodeChallenge)
		form.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	if err := applyClientAuth(ctx, cb, p.AuthorizationServer.PushedAuthorizationRequestEndpoint, form); err != nil {
		return nil, err
	}

	body, status, err := postForm(ctx, cb, p.AuthorizationServer.PushedAuthorizationRequestEndpoint, form)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, decodeClientError(status, body)
	}

	var resp struct {
		RequestURI string `json:"request_uri"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &oiderr.JSONParseError{Context: "PAR response", Err: err}
	}

	v := url.Values{}
	v.Set("request_uri", resp.RequestURI)
	v.Set("client_id", p.ClientID)
	return &InitiateAuthorizationResult{
		Flow: FlowOauth2Redirect,
		URL:  p.AuthorizationServer.AuthorizationEndpoint + "?" + v.Encode(),
		PKCE: pkce,
	}, nil
}

func plainAuthorizationURL(p InitiateAuthorizationParams, pkce *schema.PKCEPair) *InitiateAuthorizationResult {
	v := url.Values{}
	v.Set("client_id", p.ClientID)
	v.Set("response_type", "code")
	if p.RedirectURI != "" {
		v.Set("redirect_uri", p.RedirectURI)
	}
	if p.Scope != "" {
		v.Set("scope", p.Scope)
	}
	if p.IssuerState != "" {
		v.Set("issuer_state", p.IssuerState)
	}
	if pkce.CodeChallenge != "" {
		v.Set("code_challenge", pkce.CodeChallenge)
		v.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}
	return &InitiateAuthorizationResult{
		Flow: FlowOauth2Redirect,
		URL:  p.AuthorizationServer.AuthorizationEndpoint + "?" + v.Encode(),
		PKCE: pkce,
	}
}

func applyClientAuth(ctx context.Context, cb callback.Callbacks, endpoint string, form url.Values) error {
	if cb.ClientAuthentication == nil {
		return nil
	}
	m := make(map[string]string, len(form))
	for k := range form {
		m[k] = form.Get(k)
	}
	req := &callback.ClientAuthRequest{Method: http.MethodPost, URL: endpoint, Form: m, Header: http.Header{}}
	if err := cb.ClientAuthentication(ctx, req); err != nil {
		return fmt.Errorf("applying client authentication: %w", err)
	}
	for k, v := range req.Form {
		form.Set(k, v)
	}
	return nil
}

func postForm(ctx context.Context, cb callback.Callbacks, endpoint string, form url.Values) ([]byte, int, error) {
	if cb.Fetch == nil {
		return nil, 0, fmt.Errorf("Fetch callback required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := cb.Fetch(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func decodeClientError(status int, body []byte) error {
	var env oiderr.ErrorEnvelope
	if json.Unmarshal(body, &env) != nil {
		return &oiderr.InvalidFetchResponseError{StatusCode: status, Body: string(body)}
	}
	return &oiderr.Oauth2ClientError{StatusCode: status, Envelope: env}
}
