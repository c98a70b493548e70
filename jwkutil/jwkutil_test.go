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

package jwkutil_test

import (
	"testing"

	"github.com/dominikschlosser/oid4vci-core/jwkutil"
)

func TestEncodeDecodeBase64URL_RoundTrip(t *testing.T) {
	want := []byte("hello, oid4vci")
	encoded := jwkutil.EncodeBase64URL(want)
	got, err := jwkutil.DecodeBase64URL(encoded)
	if err != nil {
		t.Fatalf("DecodeBase64URL: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompact_SigningInputRoundTrip(t *testing.T) {
	header := map[string]any{"typ": "JWT", "alg": "ES256"}
	payload := map[string]any{"sub": "wallet-1"}

	compact, err := jwkutil.Compact(header, payload, []byte("fake-signature"))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	parts, err := jwkutil.ParseCompact(compact)
	if err != nil {
		t.Fatalf("ParseCompact: %v", err)
	}
	if parts.Header["typ"] != "JWT" {
		t.Errorf("Header[typ] = %v", parts.Header["typ"])
	}
	if parts.Payload["sub"] != "wallet-1" {
		t.Errorf("Payload[sub] = %v", parts.Payload["sub"])
	}
	if string(parts.Signature) != "fake-signature" {
		t.Errorf("Signature = %q", parts.Signature)
	}
}

func TestParseCompact_WrongPartCount(t *testing.T) {
	if _, err := jwkutil.ParseCompact("only.two"); err == nil {
		t.Fatal("expected an error for a JWT without 3 parts")
	}
}

func TestThumbprint_ECKey(t *testing.T) {
	jwk := map[string]any{
		"kty": "EC",
		"crv": "P-256",
		"x":   "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		"y":   "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
	}
	tp1, err := jwkutil.Thumbprint(jwk)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	tp2, err := jwkutil.Thumbprint(jwk)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	if tp1 != tp2 {
		t.Error("expected Thumbprint to be deterministic")
	}

	other := map[string]any{"kty": "EC", "crv": "P-256", "x": "different-x-value-aaaaaaaaaaaaaaaaaaaaaaaaaaa", "y": jwk["y"]}
	tp3, err := jwkutil.Thumbprint(other)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	if tp1 == tp3 {
		t.Error("expected different keys to produce different thumbprints")
	}
}

func TestThumbprint_IgnoresExtraMembers(t *testing.T) {
	base := map[string]any{
		"kty": "EC", "crv": "P-256",
		"x": "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		"y": "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
	}
	withExtra := map[string]any{
		"kty": "EC", "crv": "P-256",
		"x":   "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		"y":   "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
		"kid": "some-key-id",
		"use": "sig",
	}
	tp1, err := jwkutil.Thumbprint(base)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	tp2, err := jwkutil.Thumbprint(withExtra)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	if tp1 != tp2 {
		t.Error("expected kid/use to not affect the RFC 7638 thumbprint")
	}
}

func TestIsPublicJWK(t *testing.T) {
	cases := []struct {
		name string
		jwk  map[string]any
		want bool
	}{
		{"valid EC public key", map[string]any{"kty": "EC", "crv": "P-256", "x": "a", "y": "b"}, true},
		{"EC private key rejected", map[string]any{"kty": "EC", "crv": "P-256", "x": "a", "y": "b", "d": "secret"}, false},
		{"valid RSA public key", map[string]any{"kty": "RSA", "n": "a", "e": "AQAB"}, true},
		{"RSA private key rejected", map[string]any{"kty": "RSA", "n": "a", "e": "AQAB", "d": "secret"}, false},
		{"unknown kty rejected", map[string]any{"kty": "weird"}, false},
		{"missing members rejected", map[string]any{"kty": "EC", "crv": "P-256"}, false},
	}
	for _, c := range cases {
		if got := jwkutil.IsPublicJWK(c.jwk); got != c.want {
			t.Errorf("%s: IsPublicJWK() = %v, want %v", c.name, got, c.want)
		}
	}
}
