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

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// Fetcher matches callback.Callbacks.Fetch's shape without importing
// the callback package, so metadata has no dependency on it.
type Fetcher func(ctx context.Context, req *http.Request) (*http.Response, error)

// Resolve implements spec.md §4.2 resolveIssuerMetadata end to end:
// issuer metadata discovery, authorization-server identifier
// determination, and concurrent well-known probing for each.
func Resolve(ctx context.Context, fetch Fetcher, issuer string) (*Resolved, error) {
	canonical := canonicalize(issuer)

	issuerMeta, err := fetchIssuerMetadata(ctx, fetch, canonical)
	if err != nil {
		return nil, err
	}

	if canonicalize(issuerMeta.CredentialIssuer) != canonical {
		return nil, &oiderr.ValidationError{Field: "credential_issuer", Reason: "metadata_not_found: returned credential_issuer does not match the requested issuer"}
	}

	asIdentifiers := issuerMeta.AuthorizationServers
	if len(asIdentifiers) == 0 {
		asIdentifiers = []string{canonical}
	}

	resolved := &Resolved{CredentialIssuer: *issuerMeta}

	type result struct {
		meta *AuthorizationServerMetadata
		err  error
	}
	results := make([]result, len(asIdentifiers))
	var wg sync.WaitGroup
	for i, id := range asIdentifiers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			meta, err := fetchAuthorizationServerMetadata(ctx, fetch, id)
			results[i] = result{meta: meta, err: err}
		}(i, id)
	}
	wg.Wait()

	var failures []string
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", asIdentifiers[i], r.err))
			continue
		}
		resolved.AuthorizationServers = append(resolved.AuthorizationServers, *r.meta)
	}

	if len(resolved.AuthorizationServers) == 0 {
		return nil, &oiderr.Oauth2Error{Code: "authorization_server_not_found", Reason: strings.Join(failures, "; ")}
	}

	return resolved, nil
}

func canonicalize(issuer string) string {
	issuer = strings.TrimRight(issuer, "/")
	// lowercase scheme+host only; path case is preserved.
	schemeSep := strings.Index(issuer, "://")
	if schemeSep < 0 {
		return strings.ToLower(issuer)
	}
	scheme := strings.ToLower(issuer[:schemeSep])
	rest := issuer[schemeSep+3:]
	slash := strings.IndexByte(rest, '/')
	host := rest
	path := ""
	if slash >= 0 {
		host = rest[:slash]
		path = rest[slash:]
	}
	return scheme + "://" + strings.ToLower(host) + path
}

func fetchIssuerMetadata(ctx context.Context, fetch Fetcher, issuer string) (*CredentialIssuerMetadata, error) {
	body, status, err := getJSON(ctx, fetch, strings.TrimRight(issuer, "/")+"/.well-known/openid-credential-issuer")
	if err != nil || status < 200 || status >= 300 {
		return nil, &oiderr.Oauth2Error{Code: "metadata_not_found", Reason: fmt.Sprintf("fetching %s: status=%d err=%v", issuer, status, err)}
	}
	var m CredentialIssuerMetadata
	if jsonErr := json.Unmarshal(body, &m); jsonErr != nil {
		return nil, &oiderr.Oauth2Error{Code: "metadata_not_found", Reason: jsonErr.Error()}
	}
	return &m, nil
}

func fetchAuthorizationServerMetadata(ctx context.Context, fetch Fetcher, issuer string) (*AuthorizationServerMetadata, error) {
	base := strings.TrimRight(issuer, "/")
	paths := []struct {
		path    string
		draft11 bool
	}{
		{"/.well-known/oauth-authorization-server", false},
		{"/.well-known/openid-configuration", true},
	}
	for _, p := range paths {
		body, status, err := getJSON(ctx, fetch, base+p.path)
		if err != nil || status < 200 || status >= 300 {
			continue
		}
		var m AuthorizationServerMetadata
		if json.Unmarshal(body, &m) != nil {
			continue
		}
		if m.Issuer == "" {
			continue
		}
		m.Draft11 = p.draft11
		return &m, nil
	}
	return nil, fmt.Errorf("no authorization server metadata found at %s", issuer)
}

func getJSON(ctx context.Context, fetch Fetcher, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := fetch(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
