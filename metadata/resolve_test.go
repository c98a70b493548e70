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

package metadata_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dominikschlosser/oid4vci-core/metadata"
)

func fetchVia(client *http.Client) metadata.Fetcher {
	return func(_ context.Context, req *http.Request) (*http.Response, error) {
		return client.Do(req)
	}
}

func newIssuerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var issuerURL string
	mux.HandleFunc("/.well-known/openid-credential-issuer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"credential_issuer": %q,
			"credential_endpoint": %q,
			"authorization_servers": [%q],
			"credential_configurations_supported": {
				"pid": {"format": "vc+sd-jwt", "vct": "urn:eu.europa.ec.eudi:pid:1"}
			}
		}`, issuerURL, issuerURL+"/credential", issuerURL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer": %q, "token_endpoint": %q}`, issuerURL, issuerURL+"/token")
	})
	srv := httptest.NewServer(mux)
	issuerURL = srv.URL
	return srv
}

func TestResolve_Success(t *testing.T) {
	srv := newIssuerServer(t)
	defer srv.Close()

	resolved, err := metadata.Resolve(context.Background(), fetchVia(srv.Client()), srv.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.CredentialIssuer.CredentialEndpoint != srv.URL+"/credential" {
		t.Errorf("CredentialEndpoint = %q", resolved.CredentialIssuer.CredentialEndpoint)
	}
	if len(resolved.AuthorizationServers) != 1 || resolved.AuthorizationServers[0].Issuer != srv.URL {
		t.Errorf("AuthorizationServers = %+v", resolved.AuthorizationServers)
	}
	if resolved.AuthorizationServers[0].Draft11 {
		t.Error("expected Draft11 to be false when oauth-authorization-server resolved")
	}
}

func TestResolve_IssuerMetadataNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := metadata.Resolve(context.Background(), fetchVia(srv.Client()), srv.URL); err == nil {
		t.Fatal("expected an error when issuer metadata cannot be found")
	}
}

func TestResolve_AuthorizationServerFallsBackToOpenIDConfiguration(t *testing.T) {
	mux := http.NewServeMux()
	var issuerURL string
	mux.HandleFunc("/.well-known/openid-credential-issuer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"credential_issuer": %q, "credential_endpoint": %q}`, issuerURL, issuerURL+"/credential")
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer": %q, "token_endpoint": %q}`, issuerURL, issuerURL+"/token")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuerURL = srv.URL

	resolved, err := metadata.Resolve(context.Background(), fetchVia(srv.Client()), srv.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.AuthorizationServers) != 1 {
		t.Fatalf("AuthorizationServers = %+v", resolved.AuthorizationServers)
	}
	if !resolved.AuthorizationServers[0].Draft11 {
		t.Error("expected Draft11 to be true when only openid-configuration resolved")
	}
}

func TestResolved_ByIssuer(t *testing.T) {
	srv := newIssuerServer(t)
	defer srv.Close()

	resolved, err := metadata.Resolve(context.Background(), fetchVia(srv.Client()), srv.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	as, ok := resolved.ByIssuer(srv.URL)
	if !ok || as.Issuer != srv.URL {
		t.Errorf("ByIssuer(%q) = %+v, %v", srv.URL, as, ok)
	}
	if _, ok := resolved.ByIssuer("https://nonexistent.example"); ok {
		t.Error("expected ByIssuer to return false for an unknown issuer")
	}
}
