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

package credential

// Response is the parsed/assembled form of a credential response
// (spec.md §4.8 createCredentialResponse), mirroring whichever form
// (single or batch) the request used.
type Response struct {
	// Single-proof form.
	Credential any    `json:"credential,omitempty"`
	Format     Format `json:"format,omitempty"`

	// Batch (proofs) form.
	Credentials []any `json:"credentials,omitempty"`

	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
	NotificationID  string `json:"notification_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

// CreateResponseParams configures CreateResponse.
type CreateResponseParams struct {
	// Batch mirrors which request form drove this response: true if
	// the request carried proofs, false if it carried a single proof.
	Batch bool

	Credential  any // single-form value
	Credentials []any
	Format      Format

	CNonce          string
	CNonceExpiresIn int
	NotificationID  string
	TransactionID   string
}

// CreateResponse implements spec.md §4.8 createCredentialResponse.
func CreateResponse(p CreateResponseParams) Response {
	r := Response{
		CNonce:          p.CNonce,
		NotificationID:  p.NotificationID,
		TransactionID:   p.TransactionID,
	}
	if p.CNonce != "" {
		r.CNonceExpiresIn = p.CNonceExpiresIn
	}
	if p.Batch {
		r.Credentials = p.Credentials
		return r
	}
	r.Credential = p.Credential
	r.Format = p.Format
	return r
}
