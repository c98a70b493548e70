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

// Package metadata discovers and merges credential-issuer metadata and
// authorization-server metadata, marking servers only found at the
// draft-11 openid-configuration path (AuthorizationServerMetadata.Draft11);
// fields are not renamed or normalized. Grounded in the teacher's internal/wallet/issuance.go
// fetchIssuerMetadata/fetchOAuthMetadata pair, generalized from loose
// map[string]any handling into typed structs and from sequential to
// concurrent probing of the authorization servers per spec.md §4.2 step 4.
package metadata

// ProofTypeSupported describes one entry of a credential configuration's
// proof_types_supported map.
type ProofTypeSupported struct {
	ProofSigningAlgValuesSupported []string `json:"proof_signing_alg_values_supported"`
}

// CredentialConfiguration is one entry of
// credential_configurations_supported.
type CredentialConfiguration struct {
	Format                           string                        `json:"format"`
	Scope                            string                        `json:"scope,omitempty"`
	CredentialSigningAlgValuesSupported []string                   `json:"credential_signing_alg_values_supported,omitempty"`
	CryptographicBindingMethodsSupported []string                  `json:"cryptographic_binding_methods_supported,omitempty"`
	ProofTypesSupported              map[string]ProofTypeSupported `json:"proof_types_supported,omitempty"`

	// Format-specific identifying fields. Only the one matching
	// Format is meaningful; spec.md §3 treats format payloads as
	// opaque beyond wire shape.
	VCT                  string         `json:"vct,omitempty"`                  // vc+sd-jwt
	Doctype              string         `json:"doctype,omitempty"`              // mso_mdoc
	CredentialDefinition map[string]any `json:"credential_definition,omitempty"` // W3C VC-JWT
}

// CredentialIssuerMetadata is the parsed
// /.well-known/openid-credential-issuer response.
type CredentialIssuerMetadata struct {
	CredentialIssuer                 string                              `json:"credential_issuer"`
	CredentialEndpoint                string                              `json:"credential_endpoint"`
	NonceEndpoint                     string                              `json:"nonce_endpoint,omitempty"`
	NotificationEndpoint              string                              `json:"notification_endpoint,omitempty"`
	AuthorizationServers              []string                            `json:"authorization_servers,omitempty"`
	CredentialConfigurationsSupported map[string]CredentialConfiguration  `json:"credential_configurations_supported"`
}

// AuthorizationServerMetadata is the RFC 8414 superset plus the OID4VCI
// / DPoP extensions spec.md §3 names.
type AuthorizationServerMetadata struct {
	Issuer                             string   `json:"issuer"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint,omitempty"`
	JWKSURI                            string   `json:"jwks_uri,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	AuthorizationChallengeEndpoint     string   `json:"authorization_challenge_endpoint,omitempty"`
	DPoPSigningAlgValuesSupported      []string `json:"dpop_signing_alg_values_supported,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
	RequirePushedAuthorizationRequests bool     `json:"require_pushed_authorization_requests,omitempty"`

	// Draft11 marks that this metadata was only discoverable at the
	// legacy /.well-known/openid-configuration path (spec.md §9,
	// Scenario 2): no oauth-authorization-server document was found.
	// Not part of the wire shape - set by Resolve, not unmarshaled.
	Draft11 bool `json:"-"`
}

// Resolved is the output of Resolve: the issuer's metadata plus every
// authorization server's metadata that was discoverable.
type Resolved struct {
	CredentialIssuer    CredentialIssuerMetadata
	AuthorizationServers []AuthorizationServerMetadata
}

// AuthorizationServerIdentifiers returns the issuer identifiers of
// every resolved authorization server, in discovery order.
func (r *Resolved) AuthorizationServerIdentifiers() []string {
	ids := make([]string, len(r.AuthorizationServers))
	for i, as := range r.AuthorizationServers {
		ids[i] = as.Issuer
	}
	return ids
}

// ByIssuer looks up a resolved authorization server by its issuer
// identifier.
func (r *Resolved) ByIssuer(issuer string) (AuthorizationServerMetadata, bool) {
	for _, as := range r.AuthorizationServers {
		if as.Issuer == issuer {
			return as, true
		}
	}
	return AuthorizationServerMetadata{}, false
}
