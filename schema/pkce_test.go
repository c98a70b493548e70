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

package schema_test

import (
	"context"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/internal/adapter"
	"github.com/dominikschlosser/oid4vci-core/schema"
)

func TestPreferredMethod(t *testing.T) {
	cases := []struct {
		supported []string
		want      string
	}{
		{[]string{"S256", "plain"}, "S256"},
		{[]string{"plain"}, "plain"},
		{nil, ""},
		{[]string{"unknown"}, ""},
	}
	for _, c := range cases {
		if got := schema.PreferredMethod(c.supported); got != c.want {
			t.Errorf("PreferredMethod(%v) = %q, want %q", c.supported, got, c.want)
		}
	}
}

func TestGenerateAndVerifyPKCE_S256(t *testing.T) {
	ctx := context.Background()
	cb := adapter.Callbacks(adapter.NewKeyRing(), nil)

	pair, err := schema.GeneratePKCE(ctx, cb, "S256", "")
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	if pair.CodeChallengeMethod != "S256" {
		t.Fatalf("CodeChallengeMethod = %q, want S256", pair.CodeChallengeMethod)
	}

	ok, err := schema.VerifyPKCE(ctx, cb, "S256", pair.CodeVerifier, pair.CodeChallenge)
	if err != nil {
		t.Fatalf("VerifyPKCE: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPKCE returned false for a matching pair")
	}

	ok, err = schema.VerifyPKCE(ctx, cb, "S256", pair.CodeVerifier+"x", pair.CodeChallenge)
	if err != nil {
		t.Fatalf("VerifyPKCE: %v", err)
	}
	if ok {
		t.Fatal("VerifyPKCE returned true for a tampered verifier")
	}
}

func TestGeneratePKCE_Plain(t *testing.T) {
	ctx := context.Background()
	cb := adapter.Callbacks(adapter.NewKeyRing(), nil)

	pair, err := schema.GeneratePKCE(ctx, cb, "plain", "a-verifier-that-is-long-enough-123456789012")
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	if pair.CodeChallenge != pair.CodeVerifier {
		t.Fatalf("plain method challenge should equal verifier")
	}
}

func TestGeneratePKCE_VerifierTooShort(t *testing.T) {
	ctx := context.Background()
	cb := adapter.Callbacks(adapter.NewKeyRing(), nil)
	if _, err := schema.GeneratePKCE(ctx, cb, "plain", "short"); err == nil {
		t.Fatal("expected an error for a too-short code_verifier")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !schema.ConstantTimeEqual("abc", "abc") {
		t.Error("expected equal strings to compare equal")
	}
	if schema.ConstantTimeEqual("abc", "abcd") {
		t.Error("expected different-length strings to compare unequal")
	}
	if schema.ConstantTimeEqual("abc", "abd") {
		t.Error("expected different strings to compare unequal")
	}
}

func TestExactlyOne(t *testing.T) {
	if err := schema.ExactlyOne(map[string]bool{"a": true, "b": false}); err != nil {
		t.Errorf("expected nil for exactly one true, got %v", err)
	}
	if err := schema.ExactlyOne(map[string]bool{"a": false, "b": false}); err == nil {
		t.Error("expected an error when none are true")
	}
	if err := schema.ExactlyOne(map[string]bool{"a": true, "b": true}); err == nil {
		t.Error("expected an error when more than one is true")
	}
}
