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
	"encoding/json"
	"fmt"

	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// wireGrant is the draft-14 wire shape of a single grant entry.
type wireGrant struct {
	IssuerState         string          `json:"issuer_state,omitempty"`
	AuthorizationServer string          `json:"authorization_server,omitempty"`
	PreAuthorizedCode   string          `json:"pre-authorized_code,omitempty"`
	TxCode              *TxCode         `json:"tx_code,omitempty"`
	UserPINRequired     *bool           `json:"user_pin_required,omitempty"` // draft-11 only
}

// wireOffer is the draft-14 (and, for credentials, draft-11) wire
// shape of a credential offer.
type wireOffer struct {
	CredentialIssuer           string               `json:"credential_issuer"`
	CredentialConfigurationIDs []string              `json:"credential_configuration_ids,omitempty"`
	Credentials                []string              `json:"credentials,omitempty"` // draft-11
	Grants                     map[string]wireGrant  `json:"grants,omitempty"`
}

// ParseWire decodes raw JSON into a wireOffer, validating the union
// of {draft-14 schema, draft-11 schema} per spec.md §4.3, then
// normalizes draft-11 fields forward to draft-14 shape. Draft-11 to
// draft-14 normalization never reverses and never guesses: an absent
// tx_code length, for instance, is left absent (spec.md §9).
func ParseWire(raw []byte) (*CredentialOffer, error) {
	var w wireOffer
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &oiderr.JSONParseError{Context: "credential offer", Err: err}
	}

	if w.CredentialIssuer == "" {
		return nil, &oiderr.ValidationError{Field: "credential_issuer", Reason: "required"}
	}

	ids := w.CredentialConfigurationIDs
	if len(ids) == 0 && len(w.Credentials) > 0 {
		// draft-11: credentials: string[] -> credential_configuration_ids
		ids = w.Credentials
	}
	if len(ids) == 0 {
		return nil, &oiderr.ValidationError{Field: "credential_configuration_ids", Reason: "required"}
	}

	offer := &CredentialOffer{
		CredentialIssuer:           w.CredentialIssuer,
		CredentialConfigurationIDs: ids,
	}

	if w.Grants != nil {
		offer.Grants = make(map[GrantKind]Grant, len(w.Grants))
	}
	for key, wg := range w.Grants {
		kind := GrantKind(key)
		switch kind {
		case GrantAuthorizationCode:
			offer.Grants[kind] = Grant{
				Kind:                kind,
				IssuerState:         wg.IssuerState,
				AuthorizationServer: wg.AuthorizationServer,
			}
		case GrantPreAuthorizedCode:
			if wg.PreAuthorizedCode == "" {
				return nil, &oiderr.ValidationError{Field: "grants." + key + ".pre-authorized_code", Reason: "required"}
			}
			txCode := wg.TxCode
			if txCode == nil && wg.UserPINRequired != nil {
				// draft-11: user_pin_required:true -> tx_code:{input_mode:"text"}
				// user_pin_required:false/absent -> omit tx_code.
				if *wg.UserPINRequired {
					txCode = &TxCode{InputMode: "text"}
				}
			}
			offer.Grants[kind] = Grant{
				Kind:                kind,
				PreAuthorizedCode:   wg.PreAuthorizedCode,
				TxCode:              txCode,
				AuthorizationServer: wg.AuthorizationServer,
			}
		default:
			return nil, &oiderr.ValidationError{Field: "grants", Reason: fmt.Sprintf("unknown grant identifier %q", key)}
		}
	}

	if w.Grants != nil && len(offer.Grants) == 0 {
		return nil, &oiderr.ValidationError{Field: "grants", Reason: "at least one grant required when grants is present"}
	}

	for _, id := range offer.CredentialConfigurationIDs {
		if id == "" {
			return nil, &oiderr.ValidationError{Field: "credential_configuration_ids", Reason: "entries must be non-empty"}
		}
	}

	return offer, nil
}
