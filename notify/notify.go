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

// Package notify posts the wallet's credential-acceptance outcome back
// to the issuer's notification_endpoint (spec.md §4.10). Not present
// in the teacher; grounded in oauth2client's postForm/decodeClientError
// idiom since it is the same authenticated-POST-then-decode-errors
// shape as a token or PAR request.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/dpop"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// Event enumerates the outcomes a wallet reports.
type Event string

const (
	EventCredentialAccepted Event = "credential_accepted"
	EventCredentialDeleted  Event = "credential_deleted"
	EventCredentialFailure  Event = "credential_failure"
)

// SendParams configures Send.
type SendParams struct {
	NotificationEndpoint string
	NotificationID       string
	Event                Event
	EventDescription     string

	AccessToken string
	DPoPSigner  *callback.Signer
	DPoPNonce   string
}

type requestBody struct {
	NotificationID   string `json:"notification_id"`
	Event            string `json:"event"`
	EventDescription string `json:"event_description,omitempty"`
}

// Send implements spec.md §4.10: it is idempotent from the caller's
// perspective - a duplicate NotificationID is the server's concern to
// dedupe, not this function's.
func Send(ctx context.Context, cb callback.Callbacks, p SendParams) error {
	if cb.Fetch == nil {
		return fmt.Errorf("notify.Send: Fetch callback required")
	}

	body, err := json.Marshal(requestBody{
		NotificationID:   p.NotificationID,
		Event:            string(p.Event),
		EventDescription: p.EventDescription,
	})
	if err != nil {
		return fmt.Errorf("encoding notification body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.NotificationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	scheme := "Bearer"
	if p.DPoPSigner != nil {
		scheme = "DPoP"
		proof, err := dpop.Create(ctx, cb, dpop.CreateParams{
			Signer:      *p.DPoPSigner,
			Method:      http.MethodPost,
			URL:         p.NotificationEndpoint,
			Nonce:       p.DPoPNonce,
			AccessToken: p.AccessToken,
		})
		if err != nil {
			return fmt.Errorf("creating dpop proof: %w", err)
		}
		req.Header.Set("DPoP", proof)
	}
	req.Header.Set("Authorization", scheme+" "+p.AccessToken)

	resp, err := cb.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var env oiderr.ErrorEnvelope
	if json.Unmarshal(respBody, &env) != nil {
		return &oiderr.InvalidFetchResponseError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return &oiderr.Oauth2ClientError{StatusCode: resp.StatusCode, Envelope: env}
}
