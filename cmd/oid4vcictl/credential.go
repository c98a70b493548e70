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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fxamacker/cbor/v2"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/credential"
	"github.com/dominikschlosser/oid4vci-core/dpop"
	"github.com/dominikschlosser/oid4vci-core/metadata"
	"github.com/dominikschlosser/oid4vci-core/oauth2client"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// credentialRequestBody is the wire shape POSTed to the credential
// endpoint, mirroring credential.wireRequest (unexported there, so
// the wallet builds its own copy of the same shape).
type credentialRequestBody struct {
	Format               string         `json:"format,omitempty"`
	VCT                  string         `json:"vct,omitempty"`
	Doctype              string         `json:"doctype,omitempty"`
	CredentialDefinition map[string]any `json:"credential_definition,omitempty"`
	Proof                *wireProof     `json:"proof,omitempty"`
}

type wireProof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// requestCredential implements the wallet side of spec.md §4.8: build
// a single-proof credential request for the given configuration,
// authenticate with the access token (Bearer or DPoP per the token
// result), and parse the response.
func requestCredential(
	ctx context.Context,
	cb callback.Callbacks,
	endpoint string,
	tokenResult *oauth2client.TokenResult,
	config metadata.CredentialConfiguration,
	proof string,
) (*credential.Response, error) {
	body := credentialRequestBody{
		Format:               config.Format,
		VCT:                  config.VCT,
		Doctype:              config.Doctype,
		CredentialDefinition: config.CredentialDefinition,
		Proof:                &wireProof{ProofType: credential.ProofTypeJWT, JWT: proof},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding credential request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	scheme := "Bearer"
	if tokenResult.DPoP.Signer != nil {
		scheme = "DPoP"
		proofHeader, err := dpop.Create(ctx, cb, dpop.CreateParams{
			Signer:      *tokenResult.DPoP.Signer,
			Method:      http.MethodPost,
			URL:         endpoint,
			Nonce:       tokenResult.DPoP.Nonce,
			AccessToken: tokenResult.AccessTokenResponse.AccessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("creating dpop proof: %w", err)
		}
		req.Header.Set("DPoP", proofHeader)
	}
	req.Header.Set("Authorization", scheme+" "+tokenResult.AccessTokenResponse.AccessToken)

	resp, err := cb.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("posting to credential endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading credential response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env oiderr.ErrorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return nil, &oiderr.Oauth2ClientError{StatusCode: resp.StatusCode, Envelope: env}
		}
		return nil, &oiderr.InvalidFetchResponseError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out credential.Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &oiderr.JSONParseError{Context: "credential response", Err: err}
	}
	return &out, nil
}

// inspectCredentialResponse prints a non-validating dump of whatever
// came back, matching the teacher's cmd/decode.go idiom: show the
// holder the raw content without parsing it as proof of anything. An
// mso_mdoc credential is CBOR rather than JSON, so it gets decoded to
// a generic value before printing; everything else is printed as-is.
func inspectCredentialResponse(r *credential.Response) {
	printRaw := func(label string, v any) {
		if r.Format == credential.FormatMDoc {
			if s, ok := v.(string); ok {
				var decoded any
				if err := cbor.Unmarshal([]byte(s), &decoded); err == nil {
					fmt.Printf("%s (decoded mso_mdoc, unvalidated):\n%#v\n", label, decoded)
					return
				}
			}
		}
		fmt.Printf("%s (unvalidated):\n%v\n", label, v)
	}

	if r.Credential != nil {
		printRaw("credential", r.Credential)
	}
	for i, c := range r.Credentials {
		printRaw(fmt.Sprintf("credential[%d]", i), c)
	}
}
