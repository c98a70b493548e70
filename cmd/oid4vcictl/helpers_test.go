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

package main

import (
	"net/http"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/offer"
)

func TestOfferURI_FromArgument(t *testing.T) {
	uri, err := offerURI([]string{"openid-credential-offer://?credential_offer=%7B%7D"}, "")
	if err != nil {
		t.Fatalf("offerURI: %v", err)
	}
	if uri != "openid-credential-offer://?credential_offer=%7B%7D" {
		t.Errorf("uri = %q", uri)
	}
}

func TestOfferURI_NoArgumentOrFlag(t *testing.T) {
	if _, err := offerURI(nil, ""); err == nil {
		t.Fatal("expected an error when neither an argument nor --qr is given")
	}
}

func TestContainsString(t *testing.T) {
	haystack := []string{"S256", "plain"}
	if !containsString(haystack, "S256") {
		t.Error("expected S256 to be found")
	}
	if containsString(haystack, "S512") {
		t.Error("expected S512 to not be found")
	}
	if containsString(nil, "anything") {
		t.Error("expected no match against a nil slice")
	}
}

func TestBearerOrDPoPToken(t *testing.T) {
	cases := []struct {
		name       string
		authz      string
		wantToken  string
		wantScheme resourceScheme
		wantErr    bool
	}{
		{"bearer", "Bearer abc123", "abc123", schemeBearer, false},
		{"dpop", "DPoP xyz789", "xyz789", schemeDPoP, false},
		{"missing", "", "", "", true},
		{"unsupported scheme", "Basic dXNlcjpwYXNz", "", "", true},
	}
	for _, c := range cases {
		header := http.Header{}
		if c.authz != "" {
			header.Set("Authorization", c.authz)
		}
		token, scheme, err := bearerOrDPoPToken(header)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: expected an error", c.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: bearerOrDPoPToken: %v", c.name, err)
		}
		if token != c.wantToken || scheme != c.wantScheme {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", c.name, token, scheme, c.wantToken, c.wantScheme)
		}
	}
}

func TestOfferGrantKind_PrefersPreAuthorizedCodeWhenBothPresent(t *testing.T) {
	o := &offer.CredentialOffer{
		Grants: map[offer.GrantKind]offer.Grant{
			offer.GrantAuthorizationCode: {Kind: offer.GrantAuthorizationCode},
			offer.GrantPreAuthorizedCode: {Kind: offer.GrantPreAuthorizedCode, PreAuthorizedCode: "code-1"},
		},
	}
	if got := offerGrantKind(o); got != offer.GrantPreAuthorizedCode {
		t.Errorf("offerGrantKind() = %q, want %q", got, offer.GrantPreAuthorizedCode)
	}
}

func TestOfferGrantKind_SingleGrant(t *testing.T) {
	o := &offer.CredentialOffer{
		Grants: map[offer.GrantKind]offer.Grant{
			offer.GrantAuthorizationCode: {Kind: offer.GrantAuthorizationCode},
		},
	}
	if got := offerGrantKind(o); got != offer.GrantAuthorizationCode {
		t.Errorf("offerGrantKind() = %q, want %q", got, offer.GrantAuthorizationCode)
	}
}

func TestOfferGrantKind_NoGrants(t *testing.T) {
	o := &offer.CredentialOffer{Grants: map[offer.GrantKind]offer.Grant{}}
	if got := offerGrantKind(o); got != "" {
		t.Errorf("offerGrantKind() = %q, want empty", got)
	}
}
