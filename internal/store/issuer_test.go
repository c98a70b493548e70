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

package store_test

import (
	"sync"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/internal/store"
)

func TestPreAuthorizedGrant_PutAndLookup(t *testing.T) {
	s := store.NewIssuerStore()
	s.PutPreAuthorizedGrant(&store.PreAuthorizedGrant{Code: "abc123", CredentialConfigIDs: []string{"pid"}})

	got := s.LookupPreAuthorizedGrant("abc123")
	if got == nil || got.Code != "abc123" {
		t.Fatalf("LookupPreAuthorizedGrant = %+v", got)
	}
	if s.LookupPreAuthorizedGrant("unknown") != nil {
		t.Error("expected nil for an unknown code")
	}
}

func TestAuthorizationCodeGrant_PutAndLookup(t *testing.T) {
	s := store.NewIssuerStore()
	s.PutAuthorizationCodeGrant(&store.AuthorizationCodeGrant{Code: "auth-1", ClientID: "wallet-app"})

	got := s.LookupAuthorizationCodeGrant("auth-1")
	if got == nil || got.ClientID != "wallet-app" {
		t.Fatalf("LookupAuthorizationCodeGrant = %+v", got)
	}
}

func TestAccessTokenCredentialIDs(t *testing.T) {
	s := store.NewIssuerStore()
	s.PutAccessToken("tok-1", "thumbprint-1", []string{"pid"})

	ids, ok := s.AccessTokenCredentialIDs("tok-1")
	if !ok || len(ids) != 1 || ids[0] != "pid" {
		t.Fatalf("AccessTokenCredentialIDs = %v, %v", ids, ok)
	}
	if _, ok := s.AccessTokenCredentialIDs("unknown"); ok {
		t.Error("expected false for an unknown token")
	}
}

func TestCNonce_SetAndGet(t *testing.T) {
	s := store.NewIssuerStore()
	s.PutAccessToken("tok-1", "", nil)
	if s.CNonce("tok-1") != "" {
		t.Errorf("expected an empty initial c_nonce")
	}
	s.SetCNonce("tok-1", "nonce-1")
	if s.CNonce("tok-1") != "nonce-1" {
		t.Errorf("CNonce = %q, want nonce-1", s.CNonce("tok-1"))
	}
}

func TestSeenDPoPJTI_DetectsReplay(t *testing.T) {
	s := store.NewIssuerStore()
	if s.SeenDPoPJTI("jti-1") {
		t.Fatal("expected the first sighting to report false")
	}
	if !s.SeenDPoPJTI("jti-1") {
		t.Fatal("expected the second sighting to report true")
	}
}

func TestSeenNotification_Dedupes(t *testing.T) {
	s := store.NewIssuerStore()
	if s.SeenNotification("notif-1") {
		t.Fatal("expected the first sighting to report false")
	}
	if !s.SeenNotification("notif-1") {
		t.Fatal("expected the second sighting to report true")
	}
}

func TestIssuerStore_ConcurrentAccess(t *testing.T) {
	s := store.NewIssuerStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SeenDPoPJTI("jti")
			s.PutAccessToken("tok", "", nil)
			s.SetCNonce("tok", "n")
			s.CNonce("tok")
		}(i)
	}
	wg.Wait()
}
