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

package adapter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/internal/adapter"
)

func TestKeyRing_GenerateReturnsPublicJWK(t *testing.T) {
	ring := adapter.NewKeyRing()
	pub, err := ring.Generate("key-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pub["kty"] != "EC" {
		t.Errorf("kty = %v, want EC", pub["kty"])
	}
	if _, ok := pub["d"]; ok {
		t.Error("expected no private key material in the returned JWK")
	}
}

func TestSignAndVerifyJWT_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, nil)

	pub, err := ring.Generate("key-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signer := callback.Signer{Kind: callback.SignerJWK, PublicJWK: pub, Alg: "ES256", KeyID: "key-1"}

	compact, err := cb.SignJWT(ctx, signer, callback.SignInput{
		Header:  map[string]any{"typ": "JWT", "alg": "ES256"},
		Payload: map[string]any{"sub": "wallet-1"},
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	result, err := cb.VerifyJWT(ctx, signer, callback.VerifyInput{Compact: compact})
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if !result.Valid {
		t.Fatal("expected the signature to verify")
	}
}

func TestVerifyJWT_RejectsTamperedSignature(t *testing.T) {
	ctx := context.Background()
	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, nil)

	pub, err := ring.Generate("key-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signer := callback.Signer{Kind: callback.SignerJWK, PublicJWK: pub, Alg: "ES256", KeyID: "key-1"}

	compact, err := cb.SignJWT(ctx, signer, callback.SignInput{
		Header:  map[string]any{"typ": "JWT", "alg": "ES256"},
		Payload: map[string]any{"sub": "wallet-1"},
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	result, err := cb.VerifyJWT(ctx, signer, callback.VerifyInput{Compact: compact + "tampered"})
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if result.Valid {
		t.Fatal("expected a tampered JWT to fail verification")
	}
}

func TestHashFn_SHA256(t *testing.T) {
	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, nil)
	sum, err := cb.Hash(context.Background(), []byte("abc"), callback.SHA256)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if len(sum) != 32 {
		t.Errorf("len(sum) = %d, want 32", len(sum))
	}
}

func TestGenerateRandomFn_ReturnsRequestedLength(t *testing.T) {
	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, nil)
	b, err := cb.GenerateRandom(context.Background(), 32)
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if len(b) != 32 {
		t.Errorf("len(b) = %d, want 32", len(b))
	}
}

func TestFetchFn_UsesProvidedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ring := adapter.NewKeyRing()
	cb := adapter.Callbacks(ring, srv.Client())
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequestWithContext: %v", err)
	}
	resp, err := cb.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}
