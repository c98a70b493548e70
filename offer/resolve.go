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

package offer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// Resolve implements spec.md §4.3 resolveCredentialOffer. offerURI is
// any URI where the first '?' delimits the query string; it carries
// either an inline credential_offer JSON value or a
// credential_offer_uri pointing at one. scheme is not otherwise
// inspected — callers route by their own registered schemes.
func Resolve(ctx context.Context, fetch func(ctx context.Context, req *http.Request) (*http.Response, error), offerURI string) (*CredentialOffer, error) {
	u, err := url.Parse(offerURI)
	if err != nil {
		return nil, &oiderr.ValidationError{Field: "offer_uri", Reason: fmt.Sprintf("not a valid URI: %v", err)}
	}

	q := u.Query()
	inline := q.Get("credential_offer")
	byRef := q.Get("credential_offer_uri")

	switch {
	case inline != "" && byRef != "":
		return nil, &oiderr.ValidationError{Reason: "invalid_credential_offer: exactly one of credential_offer / credential_offer_uri may be present"}
	case inline != "":
		return ParseWire([]byte(inline))
	case byRef != "":
		body, err := fetchJSON(ctx, fetch, byRef)
		if err != nil {
			return nil, err
		}
		return ParseWire(body)
	default:
		return nil, &oiderr.ValidationError{Reason: "invalid_credential_offer: neither credential_offer nor credential_offer_uri present"}
	}
}

func fetchJSON(ctx context.Context, fetch func(ctx context.Context, req *http.Request) (*http.Response, error), rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	resp, err := fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &oiderr.InvalidFetchResponseError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// BuildURL assembles a credential-offer URL on scheme (caller-chosen,
// "openid-credential-offer" by default per spec.md §6), inlining the
// offer as JSON.
func BuildURL(scheme string, raw []byte) string {
	v := url.Values{}
	v.Set("credential_offer", string(raw))
	return scheme + "://?" + v.Encode()
}

// DetermineAuthorizationServer implements spec.md §4.3
// determineAuthorizationServer. known lists the authorization-server
// identifiers present in issuer metadata (spec.md §4.2 step 3).
func DetermineAuthorizationServer(pinned string, known []string) (string, error) {
	if pinned != "" {
		for _, k := range known {
			if k == pinned {
				return pinned, nil
			}
		}
		return "", &oiderr.Oauth2Error{Code: "unknown_authorization_server", Reason: fmt.Sprintf("%q is not listed in issuer metadata", pinned)}
	}
	switch len(known) {
	case 0:
		return "", &oiderr.Oauth2Error{Code: "unknown_authorization_server", Reason: "issuer metadata lists no authorization servers"}
	case 1:
		return known[0], nil
	default:
		return "", &oiderr.Oauth2Error{Code: "ambiguous_authorization_server", Reason: "grant does not pin an authorization_server and issuer metadata lists more than one"}
	}
}
