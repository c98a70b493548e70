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

// Package offer resolves a credential offer by value or by reference,
// normalizes draft-11 offers to draft-14 shape, and selects the
// authorization server a grant should use. Grounded in the teacher's
// internal/oid4vc/parser.go URI dispatch and internal/openid4/types.go,
// generalized from loosely-typed maps to the tagged Grant variant of
// spec.md §3.
package offer

// GrantKind discriminates the two grant variants spec.md §3 defines.
type GrantKind string

const (
	GrantAuthorizationCode GrantKind = "authorization_code"
	GrantPreAuthorizedCode GrantKind = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// TxCode describes the transaction code (user PIN) a pre-authorized
// grant may require.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"` // "numeric" or "text"
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"` // <= 300 chars
}

// Grant is the tagged-variant credential-offer grant of spec.md §3.
// Exactly one of the kind-specific field groups is meaningful,
// matching Kind.
type Grant struct {
	Kind GrantKind

	// GrantAuthorizationCode
	IssuerState          string
	AuthorizationServer  string

	// GrantPreAuthorizedCode
	PreAuthorizedCode string
	TxCode            *TxCode
}

// CredentialOffer is the immutable value spec.md §3 describes.
type CredentialOffer struct {
	CredentialIssuer           string
	CredentialConfigurationIDs []string
	Grants                     map[GrantKind]Grant
}

// GrantKinds returns the offer's grants in a stable order
// (authorization_code before pre-authorized_code) for callers that
// want to pick deterministically when more than one is present.
func (o *CredentialOffer) GrantKinds() []GrantKind {
	var kinds []GrantKind
	if _, ok := o.Grants[GrantAuthorizationCode]; ok {
		kinds = append(kinds, GrantAuthorizationCode)
	}
	if _, ok := o.Grants[GrantPreAuthorizedCode]; ok {
		kinds = append(kinds, GrantPreAuthorizedCode)
	}
	return kinds
}
