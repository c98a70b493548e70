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

// Package dpop implements RFC 9449 Demonstrating Proof-of-Possession:
// proof construction, proof verification, and the htu/htm/ath binding
// rules of spec.md §4.7. The claim shape is grounded in
// other_examples/auth0-go-jwt-middleware__dpop_claims.go, adapted into
// a concrete struct (rather than an interface with getters) since this
// package owns the type end to end.
package dpop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
)

// DefaultClockSkew is the default tolerance for iat freshness checks
// (spec.md §4.7 step 4, §4.6).
const DefaultClockSkew = 60 * time.Second

// Proof is a decoded and (optionally) verified DPoP proof.
type Proof struct {
	JTI   string
	HTM   string
	HTU   string
	IAT   int64
	Nonce string
	ATH   string

	JWK        map[string]any
	Thumbprint string
}

// CreateParams describes the request a DPoP proof is bound to.
type CreateParams struct {
	Signer      callback.Signer
	Method      string
	URL         string
	Nonce       string // optional: server-issued nonce to embed
	AccessToken string // optional: when sent with a resource request
	Now         time.Time
}

// Create builds a DPoP proof JWT per spec.md §4.7 "Create".
func Create(ctx context.Context, cb callback.Callbacks, p CreateParams) (string, error) {
	if cb.SignJWT == nil || cb.GenerateRandom == nil {
		return "", fmt.Errorf("dpop.Create: SignJWT and GenerateRandom callbacks are required")
	}
	if p.Signer.Kind != callback.SignerJWK {
		return "", fmt.Errorf("dpop.Create: signer must be a jwk signer")
	}

	jtiBytes, err := cb.GenerateRandom(ctx, 16)
	if err != nil {
		return "", fmt.Errorf("generating jti: %w", err)
	}

	header := map[string]any{
		"typ": "dpop+jwt",
		"alg": p.Signer.Alg,
		"jwk": p.Signer.PublicJWK,
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	payload := map[string]any{
		"jti": jwkutil.EncodeBase64URL(jtiBytes),
		"htm": strings.ToUpper(p.Method),
		"htu": canonicalizeHTU(p.URL),
		"iat": now.Unix(),
	}
	if p.Nonce != "" {
		payload["nonce"] = p.Nonce
	}
	if p.AccessToken != "" {
		if cb.Hash == nil {
			return "", fmt.Errorf("dpop.Create: Hash callback required to compute ath")
		}
		sum, err := cb.Hash(ctx, []byte(p.AccessToken), callback.SHA256)
		if err != nil {
			return "", fmt.Errorf("hashing access token: %w", err)
		}
		payload["ath"] = jwkutil.EncodeBase64URL(sum)
	}

	return cb.SignJWT(ctx, p.Signer, callback.SignInput{Header: header, Payload: payload})
}

// canonicalizeHTU implements spec.md §9(b): lowercase scheme+host,
// preserve path case, strip query/fragment, strip a trailing slash
// except on the root path.
func canonicalizeHTU(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// VerifyParams describes the contextual request a proof is checked
// against.
type VerifyParams struct {
	Proof           string
	Method          string
	URL             string
	AccessToken     string // required if the proof accompanies a resource/token request bound to a token
	RequireATH      bool
	RequiredNonce   string // nonce the server currently expects; "" means none issued yet
	NoncePolicy     bool   // true if the server requires a nonce at all
	ClockSkew       time.Duration
	Now             time.Time
	AllowedAlgs     []string
}

// NonceRequiredError signals that the server must reply with
// use_dpop_nonce and a fresh DPoP-Nonce header instead of proceeding
// (spec.md §4.7 step 6).
type NonceRequiredError struct {
	FreshNonce string
}

func (e *NonceRequiredError) Error() string { return "use_dpop_nonce" }

// Verify implements spec.md §4.7 "Verify".
func Verify(ctx context.Context, cb callback.Callbacks, p VerifyParams) (*Proof, error) {
	parts, err := jwkutil.ParseCompact(p.Proof)
	if err != nil {
		return nil, &oiderr.ValidationError{Field: "dpop", Reason: fmt.Sprintf("invalid_dpop_proof: %v", err)}
	}

	if typ, _ := parts.Header["typ"].(string); typ != "dpop+jwt" {
		return nil, &oiderr.ValidationError{Field: "dpop.typ", Reason: "invalid_dpop_proof: typ must be dpop+jwt"}
	}
	alg, _ := parts.Header["alg"].(string)
	if alg == "" || alg == "none" {
		return nil, &oiderr.ValidationError{Field: "dpop.alg", Reason: "invalid_dpop_proof: missing or disallowed alg"}
	}
	if len(p.AllowedAlgs) > 0 && !contains(p.AllowedAlgs, alg) {
		return nil, &oiderr.ValidationError{Field: "dpop.alg", Reason: fmt.Sprintf("invalid_dpop_proof: alg %q not permitted by policy", alg)}
	}

	jwk, _ := parts.Header["jwk"].(map[string]any)
	if jwk == nil || !jwkutil.IsPublicJWK(jwk) {
		return nil, &oiderr.ValidationError{Field: "dpop.jwk", Reason: "invalid_dpop_proof: missing or non-public jwk"}
	}

	signer := callback.Signer{Kind: callback.SignerJWK, PublicJWK: jwk, Alg: alg}
	if cb.VerifyJWT == nil {
		return nil, fmt.Errorf("dpop.Verify: VerifyJWT callback required")
	}
	result, err := cb.VerifyJWT(ctx, signer, callback.VerifyInput{Compact: p.Proof, Header: parts.Header, Payload: parts.Payload})
	if err != nil {
		return nil, fmt.Errorf("verifying dpop signature: %w", err)
	}
	if !result.Valid {
		return nil, &oiderr.ValidationError{Reason: "invalid_dpop_proof: signature invalid"}
	}

	proof := &Proof{JWK: jwk}
	proof.JTI, _ = parts.Payload["jti"].(string)
	proof.HTM, _ = parts.Payload["htm"].(string)
	proof.HTU, _ = parts.Payload["htu"].(string)
	if iat, ok := parts.Payload["iat"].(float64); ok {
		proof.IAT = int64(iat)
	}
	proof.Nonce, _ = parts.Payload["nonce"].(string)
	proof.ATH, _ = parts.Payload["ath"].(string)

	if !strings.EqualFold(proof.HTM, p.Method) {
		return nil, &oiderr.ValidationError{Field: "dpop.htm", Reason: "invalid_dpop_proof: htm does not match request method"}
	}
	if proof.HTU != canonicalizeHTU(p.URL) {
		return nil, &oiderr.ValidationError{Field: "dpop.htu", Reason: "invalid_dpop_proof: htu does not match request URL"}
	}

	skew := p.ClockSkew
	if skew == 0 {
		skew = DefaultClockSkew
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	iatTime := time.Unix(proof.IAT, 0)
	if iatTime.Before(now.Add(-skew)) || iatTime.After(now.Add(skew)) {
		return nil, &oiderr.ValidationError{Field: "dpop.iat", Reason: "invalid_dpop_proof: iat outside clock skew window"}
	}

	if p.RequireATH || p.AccessToken != "" {
		if cb.Hash == nil {
			return nil, fmt.Errorf("dpop.Verify: Hash callback required to check ath")
		}
		sum, err := cb.Hash(ctx, []byte(p.AccessToken), callback.SHA256)
		if err != nil {
			return nil, fmt.Errorf("hashing access token: %w", err)
		}
		expected := jwkutil.EncodeBase64URL(sum)
		if proof.ATH != expected {
			return nil, &oiderr.ValidationError{Field: "dpop.ath", Reason: "invalid_dpop_proof: ath does not match access token"}
		}
	}

	if p.NoncePolicy {
		if proof.Nonce != p.RequiredNonce || proof.Nonce == "" {
			fresh, err := freshNonce(ctx, cb)
			if err != nil {
				return nil, err
			}
			return nil, &NonceRequiredError{FreshNonce: fresh}
		}
	}

	thumb, err := jwkutil.Thumbprint(jwk)
	if err != nil {
		return nil, fmt.Errorf("computing jwk thumbprint: %w", err)
	}
	proof.Thumbprint = thumb

	return proof, nil
}

func freshNonce(ctx context.Context, cb callback.Callbacks) (string, error) {
	if cb.GenerateRandom == nil {
		return "", fmt.Errorf("dpop: GenerateRandom callback required to issue a fresh nonce")
	}
	b, err := cb.GenerateRandom(ctx, 16)
	if err != nil {
		return "", err
	}
	return jwkutil.EncodeBase64URL(b), nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// WriteNonceResponse writes the use_dpop_nonce error body and
// DPoP-Nonce header spec.md §4.7 step 6 / §6 describes.
func WriteNonceResponse(w http.ResponseWriter, nonce string) {
	w.Header().Set("DPoP-Nonce", nonce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "use_dpop_nonce"})
}
