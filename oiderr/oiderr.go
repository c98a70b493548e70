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

// Package oiderr defines the structured error taxonomy shared by every
// protocol package. Each kind is a distinct Go type so callers can use
// errors.As to recover the one they care about instead of string-matching.
package oiderr

import "fmt"

// ValidationError reports a schema violation in a local or remote payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Oauth2Error reports local misuse: a missing grant, an ambiguous
// authorization server, an unsupported signer method, and similar
// conditions the caller could have avoided.
type Oauth2Error struct {
	Code   string
	Reason string
}

func (e *Oauth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// ErrorEnvelope is the wire shape of an OAuth2/OID4VCI error response,
// plus the OID4VCI extensions used on credential-request and
// authorization-challenge errors.
type ErrorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`

	// Credential-request error extensions (spec.md §6).
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`

	// Authorization-challenge error extensions (spec.md §4.4, §6).
	Presentation string `json:"presentation,omitempty"`
	AuthSession  string `json:"auth_session,omitempty"`
	RequestURI   string `json:"request_uri,omitempty"`
}

// Oauth2ServerErrorResponseError is a structured server-side rejection
// meant to be echoed back to the client verbatim as an ErrorEnvelope.
type Oauth2ServerErrorResponseError struct {
	Envelope ErrorEnvelope
}

func (e *Oauth2ServerErrorResponseError) Error() string {
	if e.Envelope.ErrorDescription != "" {
		return fmt.Sprintf("%s: %s", e.Envelope.Error, e.Envelope.ErrorDescription)
	}
	return e.Envelope.Error
}

// Oauth2ClientError wraps a non-2xx response a client received to one
// of its own outgoing requests.
type Oauth2ClientError struct {
	StatusCode int
	Envelope   ErrorEnvelope
}

func (e *Oauth2ClientError) Error() string {
	return fmt.Sprintf("server responded %d: %s: %s", e.StatusCode, e.Envelope.Error, e.Envelope.ErrorDescription)
}

// Oauth2ClientAuthorizationChallengeError specializes Oauth2ClientError
// for the Authorization Challenge endpoint's extension fields.
type Oauth2ClientAuthorizationChallengeError struct {
	StatusCode int
	Envelope   ErrorEnvelope
}

func (e *Oauth2ClientAuthorizationChallengeError) Error() string {
	return fmt.Sprintf("authorization challenge responded %d: %s", e.StatusCode, e.Envelope.Error)
}

// InvalidFetchResponseError is a transport-level failure: a non-JSON
// body, or a non-2xx response without a parseable error envelope.
type InvalidFetchResponseError struct {
	StatusCode int
	Body       string
}

func (e *InvalidFetchResponseError) Error() string {
	return fmt.Sprintf("invalid response (status %d): %s", e.StatusCode, e.Body)
}

// JSONParseError wraps a failure to decode a JSON payload.
type JSONParseError struct {
	Context string
	Err     error
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Context, e.Err)
}

func (e *JSONParseError) Unwrap() error {
	return e.Err
}
