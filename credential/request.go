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

// Package credential implements proof-of-possession JWT creation and
// verification, credential-request parsing (single or batch, by
// identifier or by format), and credential-response assembly - spec.md
// §4.8. Format dispatch mirrors the teacher's cmd/decode.go /
// internal/mdoc / internal/sdjwt split: a credential request only ever
// carries a JSON identifier for its format (vct, doctype,
// credential_definition), never raw format content, so no format
// library is required here - only a tag.
package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// ProofType enumerates the proof_type values a request may carry.
const ProofTypeJWT = "jwt"

// Format is the credential format tag (spec.md §4.2/§4.8). The core
// never inspects content for any of these, only the identifier field
// matching the format.
type Format string

const (
	FormatSDJWTVC    Format = "vc+sd-jwt"
	FormatMDoc       Format = "mso_mdoc"
	FormatVCJWT      Format = "jwt_vc_json"
)

// CredentialIdentifier tags which of the mutually exclusive forms a
// request item used to name the credential being requested.
type CredentialIdentifier struct {
	// Exactly one of these is set.
	CredentialIdentifier string // opaque identifier form
	Format                Format
	VCT                   string         // FormatSDJWTVC
	Doctype               string         // FormatMDoc
	CredentialDefinition  map[string]any // FormatVCJWT
}

// RequestProofOptions configures CreateRequestProof.
type RequestProofOptions struct {
	Signer   callback.Signer
	Issuer   string // credential_issuer, becomes aud
	CNonce   string // becomes nonce
	ClientID string // becomes iss, only if IncludeClientID is set

	// IncludeClientID is a per-call opt-in: the pre-authorized flow
	// forbids iss, the authorization-code flow with a public client
	// requires it, and the core does not infer which applies from
	// context (spec.md §9 open question, decided in favor of an
	// explicit flag rather than guessing from flow state).
	IncludeClientID bool

	TrustChain []string // rejected when Signer.Kind == SignerDID (the header carries a kid)
	Now        time.Time
}

// CreateRequestProof implements spec.md §4.8
// createCredentialRequestJwtProof.
func CreateRequestProof(ctx context.Context, cb callback.Callbacks, o RequestProofOptions) (string, error) {
	if cb.SignJWT == nil {
		return "", fmt.Errorf("credential.CreateRequestProof: SignJWT callback required")
	}

	header := map[string]any{
		"typ": "openid4vci-proof+jwt",
		"alg": o.Signer.Alg,
	}
	switch o.Signer.Kind {
	case callback.SignerDID:
		// DID-based signers identify their key via a kid (did#keyId),
		// matching the teacher's internal/mock signer convention.
		header["kid"] = o.Signer.DIDUrl
		if len(o.TrustChain) > 0 {
			return "", &oiderr.ValidationError{Field: "trust_chain", Reason: "trust_chain may only be present when kid is absent"}
		}
	case callback.SignerJWK:
		header["jwk"] = o.Signer.PublicJWK
		if len(o.TrustChain) > 0 {
			header["trust_chain"] = o.TrustChain
		}
	case callback.SignerX5C:
		chain := make([]string, 0, len(o.Signer.CertificateChain))
		for _, der := range o.Signer.CertificateChain {
			chain = append(chain, base64.StdEncoding.EncodeToString(der))
		}
		header["x5c"] = chain
		if len(o.TrustChain) > 0 {
			header["trust_chain"] = o.TrustChain
		}
	default:
		return "", &oiderr.ValidationError{Field: "signer", Reason: "unsupported signer kind for a credential request proof"}
	}

	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	payload := map[string]any{
		"aud": o.Issuer,
		"iat": now.Unix(),
		"nonce": o.CNonce,
	}
	if o.IncludeClientID {
		if o.ClientID == "" {
			return "", &oiderr.ValidationError{Field: "client_id", Reason: "IncludeClientID set but ClientID is empty"}
		}
		payload["iss"] = o.ClientID
	}

	return cb.SignJWT(ctx, o.Signer, callback.SignInput{Header: header, Payload: payload})
}

// Proof is a single proof within a request (single or batch form).
type Proof struct {
	ProofType string
	JWT       string
}

// Request is the parsed form of a credential request (spec.md §4.8
// parseCredentialRequest).
type Request struct {
	Identifier CredentialIdentifier

	// Exactly one of Proof / Proofs is populated (spec.md §8 boundary
	// case: a request carrying both must be rejected).
	Proof  *Proof
	Proofs map[string][]string // proof_type -> jwts
}

type wireRequest struct {
	CredentialIdentifier string                 `json:"credential_identifier,omitempty"`
	Format                string                 `json:"format,omitempty"`
	VCT                   string                 `json:"vct,omitempty"`
	Doctype               string                 `json:"doctype,omitempty"`
	CredentialDefinition  map[string]any         `json:"credential_definition,omitempty"`
	Proof                 *wireProof             `json:"proof,omitempty"`
	Proofs                map[string][]string    `json:"proofs,omitempty"`
}

type wireProof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// ParseRequest implements spec.md §4.8 parseCredentialRequest.
func ParseRequest(body []byte) (*Request, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &oiderr.JSONParseError{Context: "credential request", Err: err}
	}

	if err := (func() error {
		present := map[string]bool{
			"credential_identifier": w.CredentialIdentifier != "",
			"format":                w.Format != "",
		}
		return exactlyOne(present)
	})(); err != nil {
		return nil, err
	}

	if err := exactlyOne(map[string]bool{
		"proof":  w.Proof != nil,
		"proofs": len(w.Proofs) > 0,
	}); err != nil {
		return nil, err
	}

	req := &Request{}
	if w.CredentialIdentifier != "" {
		req.Identifier = CredentialIdentifier{CredentialIdentifier: w.CredentialIdentifier}
	} else {
		id := CredentialIdentifier{Format: Format(w.Format)}
		switch Format(w.Format) {
		case FormatSDJWTVC:
			id.VCT = w.VCT
		case FormatMDoc:
			id.Doctype = w.Doctype
		case FormatVCJWT:
			id.CredentialDefinition = w.CredentialDefinition
		default:
			return nil, &oiderr.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", w.Format)}
		}
		req.Identifier = id
	}

	if w.Proof != nil {
		if w.Proof.ProofType != ProofTypeJWT {
			return nil, &oiderr.ValidationError{Field: "proof.proof_type", Reason: fmt.Sprintf("unsupported proof_type %q", w.Proof.ProofType)}
		}
		req.Proof = &Proof{ProofType: w.Proof.ProofType, JWT: w.Proof.JWT}
	} else {
		if len(w.Proofs) != 1 {
			return nil, &oiderr.ValidationError{Field: "proofs", Reason: "exactly one proof type key must be present within proofs"}
		}
		req.Proofs = w.Proofs
	}

	return req, nil
}

func exactlyOne(present map[string]bool) error {
	count := 0
	var which string
	for k, v := range present {
		if v {
			count++
			which = k
		}
	}
	if count == 1 {
		return nil
	}
	if count == 0 {
		return &oiderr.ValidationError{Reason: "exactly one of the mutually exclusive fields must be present, got none"}
	}
	return &oiderr.ValidationError{Reason: fmt.Sprintf("exactly one of the mutually exclusive fields must be present, got %d (last: %s)", count, which)}
}

// VerifyRequestProofParams configures VerifyRequestProof.
type VerifyRequestProofParams struct {
	JWT           string
	Issuer        string // expected aud
	ExpectedNonce string
	ClockSkew     time.Duration
	Now           time.Time
}

// VerifiedProof is the result of VerifyRequestProof: the decoded
// header/payload plus the signer the caller should bind the minted
// credential to.
type VerifiedProof struct {
	Header  map[string]any
	Payload map[string]any
	Signer  callback.Signer
}

// VerifyRequestProof implements spec.md §4.8
// verifyCredentialRequestJwtProof.
func VerifyRequestProof(ctx context.Context, cb callback.Callbacks, p VerifyRequestProofParams) (*VerifiedProof, error) {
	parts, err := jwkutil.ParseCompact(p.JWT)
	if err != nil {
		return nil, &oiderr.ValidationError{Field: "proof.jwt", Reason: fmt.Sprintf("invalid proof: %v", err)}
	}
	if typ, _ := parts.Header["typ"].(string); typ != "openid4vci-proof+jwt" {
		return nil, &oiderr.ValidationError{Field: "proof.typ", Reason: "typ must be openid4vci-proof+jwt"}
	}

	signer, err := signerFromHeader(parts.Header)
	if err != nil {
		return nil, err
	}

	if cb.VerifyJWT == nil {
		return nil, fmt.Errorf("credential.VerifyRequestProof: VerifyJWT callback required")
	}
	result, err := cb.VerifyJWT(ctx, *signer, callback.VerifyInput{Compact: p.JWT, Header: parts.Header, Payload: parts.Payload})
	if err != nil {
		return nil, fmt.Errorf("verifying proof signature: %w", err)
	}
	if !result.Valid {
		return nil, &oiderr.ValidationError{Reason: "proof signature invalid"}
	}

	if aud, _ := parts.Payload["aud"].(string); aud != p.Issuer {
		return nil, &oiderr.ValidationError{Field: "proof.aud", Reason: "aud does not match credential issuer"}
	}
	if nonce, _ := parts.Payload["nonce"].(string); nonce != p.ExpectedNonce {
		return nil, &oiderr.ValidationError{Field: "proof.nonce", Reason: "nonce does not match expected c_nonce"}
	}

	skew := p.ClockSkew
	if skew == 0 {
		skew = 60 * time.Second
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	if iat, ok := parts.Payload["iat"].(float64); ok {
		iatTime := time.Unix(int64(iat), 0)
		if iatTime.Before(now.Add(-skew)) || iatTime.After(now.Add(skew)) {
			return nil, &oiderr.ValidationError{Field: "proof.iat", Reason: "iat outside clock skew window"}
		}
	} else {
		return nil, &oiderr.ValidationError{Field: "proof.iat", Reason: "iat is required"}
	}

	return &VerifiedProof{Header: parts.Header, Payload: parts.Payload, Signer: *signer}, nil
}

func signerFromHeader(header map[string]any) (*callback.Signer, error) {
	kid, hasKID := header["kid"].(string)
	jwk, hasJWK := header["jwk"].(map[string]any)
	x5c, hasX5C := header["x5c"].([]any)

	present := map[string]bool{"kid": hasKID && kid != "", "jwk": hasJWK, "x5c": hasX5C && len(x5c) > 0}
	if err := exactlyOne(present); err != nil {
		return nil, &oiderr.ValidationError{Field: "proof header", Reason: "exactly one of kid/jwk/x5c must be present: " + err.Error()}
	}

	alg, _ := header["alg"].(string)
	if hasKID {
		if _, hasTrustChain := header["trust_chain"]; hasTrustChain {
			return nil, &oiderr.ValidationError{Field: "trust_chain", Reason: "trust_chain may only be present when kid is absent"}
		}
		return &callback.Signer{Kind: callback.SignerDID, DIDUrl: kid, Alg: alg}, nil
	}
	if hasJWK {
		return &callback.Signer{Kind: callback.SignerJWK, PublicJWK: jwk, Alg: alg}, nil
	}
	chain := make([][]byte, 0, len(x5c))
	for _, c := range x5c {
		s, ok := c.(string)
		if !ok {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, &oiderr.ValidationError{Field: "proof.x5c", Reason: fmt.Sprintf("invalid certificate encoding: %v", err)}
		}
		chain = append(chain, der)
	}
	return &callback.Signer{Kind: callback.SignerX5C, CertificateChain: chain, Alg: alg}, nil
}
