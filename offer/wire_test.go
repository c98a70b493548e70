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

import "testing"

func TestParseWire_Draft14PreAuthorizedCode(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credential_configuration_ids": ["pid"],
		"grants": {
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": {
				"pre-authorized_code": "abc123",
				"tx_code": {"input_mode": "numeric", "length": 4}
			}
		}
	}`)
	o, err := ParseWire(raw)
	if err != nil {
		t.Fatalf("ParseWire: %v", err)
	}
	grant, ok := o.Grants[GrantPreAuthorizedCode]
	if !ok {
		t.Fatal("expected a pre-authorized_code grant")
	}
	if grant.PreAuthorizedCode != "abc123" {
		t.Errorf("PreAuthorizedCode = %q", grant.PreAuthorizedCode)
	}
	if grant.TxCode == nil || grant.TxCode.Length != 4 {
		t.Errorf("TxCode = %+v", grant.TxCode)
	}
}

func TestParseWire_Draft11CredentialsAndUserPIN(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credentials": ["pid"],
		"grants": {
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": {
				"pre-authorized_code": "abc123",
				"user_pin_required": true
			}
		}
	}`)
	o, err := ParseWire(raw)
	if err != nil {
		t.Fatalf("ParseWire: %v", err)
	}
	if len(o.CredentialConfigurationIDs) != 1 || o.CredentialConfigurationIDs[0] != "pid" {
		t.Errorf("CredentialConfigurationIDs = %v", o.CredentialConfigurationIDs)
	}
	grant := o.Grants[GrantPreAuthorizedCode]
	if grant.TxCode == nil || grant.TxCode.InputMode != "text" {
		t.Errorf("expected user_pin_required:true to normalize to tx_code{input_mode:text}, got %+v", grant.TxCode)
	}
}

func TestParseWire_Draft11UserPINFalseOmitsTxCode(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credentials": ["pid"],
		"grants": {
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": {
				"pre-authorized_code": "abc123",
				"user_pin_required": false
			}
		}
	}`)
	o, err := ParseWire(raw)
	if err != nil {
		t.Fatalf("ParseWire: %v", err)
	}
	if o.Grants[GrantPreAuthorizedCode].TxCode != nil {
		t.Error("expected no tx_code when user_pin_required is false")
	}
}

func TestParseWire_MissingCredentialIssuer(t *testing.T) {
	raw := []byte(`{"credential_configuration_ids": ["pid"]}`)
	if _, err := ParseWire(raw); err == nil {
		t.Fatal("expected an error for a missing credential_issuer")
	}
}

func TestParseWire_MissingConfigurationIDs(t *testing.T) {
	raw := []byte(`{"credential_issuer": "https://issuer.example"}`)
	if _, err := ParseWire(raw); err == nil {
		t.Fatal("expected an error when neither credential_configuration_ids nor credentials is present")
	}
}

func TestParseWire_UnknownGrantIdentifier(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credential_configuration_ids": ["pid"],
		"grants": {"unknown_grant": {}}
	}`)
	if _, err := ParseWire(raw); err == nil {
		t.Fatal("expected an error for an unknown grant identifier")
	}
}

func TestParseWire_PreAuthorizedCodeMissingCode(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credential_configuration_ids": ["pid"],
		"grants": {
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": {}
		}
	}`)
	if _, err := ParseWire(raw); err == nil {
		t.Fatal("expected an error for a pre-authorized_code grant missing the code")
	}
}

func TestParseWire_AuthorizationCodeGrant(t *testing.T) {
	raw := []byte(`{
		"credential_issuer": "https://issuer.example",
		"credential_configuration_ids": ["pid"],
		"grants": {
			"authorization_code": {"issuer_state": "state-1"}
		}
	}`)
	o, err := ParseWire(raw)
	if err != nil {
		t.Fatalf("ParseWire: %v", err)
	}
	if o.Grants[GrantAuthorizationCode].IssuerState != "state-1" {
		t.Errorf("IssuerState = %q", o.Grants[GrantAuthorizationCode].IssuerState)
	}
}

func TestCredentialOffer_GrantKinds_PrefersAuthorizationCodeFirst(t *testing.T) {
	o := &CredentialOffer{
		Grants: map[GrantKind]Grant{
			GrantPreAuthorizedCode: {Kind: GrantPreAuthorizedCode},
			GrantAuthorizationCode: {Kind: GrantAuthorizationCode},
		},
	}
	kinds := o.GrantKinds()
	if len(kinds) != 2 || kinds[0] != GrantAuthorizationCode || kinds[1] != GrantPreAuthorizedCode {
		t.Errorf("GrantKinds() = %v, want [authorization_code pre-authorized_code]", kinds)
	}
}
