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

package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/internal/adapter"
	"github.com/dominikschlosser/oid4vci-core/notify"
)

func TestSend_BearerSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := adapter.Callbacks(adapter.NewKeyRing(), srv.Client())
	err := notify.Send(context.Background(), cb, notify.SendParams{
		NotificationEndpoint: srv.URL,
		NotificationID:       "notif-1",
		Event:                notify.EventCredentialAccepted,
		AccessToken:          "the-token",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer the-token" {
		t.Errorf("Authorization = %q, want Bearer the-token", gotAuth)
	}
	if gotBody["notification_id"] != "notif-1" || gotBody["event"] != "credential_accepted" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestSend_DPoPSetsProofHeader(t *testing.T) {
	var gotScheme, gotDPoP string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotScheme = r.Header.Get("Authorization")
		gotDPoP = r.Header.Get("DPoP")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, srv.Client())
	pub, err := ring.Generate("wallet-dpop")
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	signer := callback.Signer{Kind: callback.SignerJWK, PublicJWK: pub, Alg: "ES256", KeyID: "wallet-dpop"}

	err = notify.Send(context.Background(), cb, notify.SendParams{
		NotificationEndpoint: srv.URL,
		NotificationID:       "notif-1",
		Event:                notify.EventCredentialAccepted,
		AccessToken:          "the-token",
		DPoPSigner:           &signer,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotScheme != "DPoP the-token" {
		t.Errorf("Authorization = %q, want DPoP the-token", gotScheme)
	}
	if gotDPoP == "" {
		t.Error("expected a DPoP proof header to be set")
	}
}

func TestSend_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_notification_id"}`))
	}))
	defer srv.Close()

	cb := adapter.Callbacks(adapter.NewKeyRing(), srv.Client())
	err := notify.Send(context.Background(), cb, notify.SendParams{
		NotificationEndpoint: srv.URL,
		NotificationID:       "bad-id",
		Event:                notify.EventCredentialFailure,
		AccessToken:          "the-token",
	})
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}
