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

// Package jwkutil holds the JWK and compact-JWT plumbing every other
// package needs but that doesn't itself touch cryptography: RFC 7638
// thumbprints, base64url helpers, and header/payload encode-decode of
// compact JWTs. Signing and signature verification stay behind
// callback.Callbacks; this package only handles the wire shape.
package jwkutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DecodeBase64URL decodes a base64url string, with or without padding.
func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.URLEncoding.DecodeString(s)
	}
	return b, err
}

// EncodeBase64URL encodes bytes as unpadded base64url.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// CompactParts splits a compact JWT into its three dot-separated parts.
type CompactParts struct {
	Header    map[string]any
	Payload   map[string]any
	HeaderB64 string
	PayloadB64 string
	Signature []byte
}

// ParseCompact splits and decodes a compact JWT's header and payload.
// It does not verify the signature.
func ParseCompact(raw string) (*CompactParts, error) {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 dot-separated parts, got %d", len(parts))
	}

	headerBytes, err := DecodeBase64URL(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	payloadBytes, err := DecodeBase64URL(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	var header, payload map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("unmarshaling header: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}

	sig, _ := DecodeBase64URL(parts[2])

	return &CompactParts{
		Header:     header,
		Payload:    payload,
		HeaderB64:  parts[0],
		PayloadB64: parts[1],
		Signature:  sig,
	}, nil
}

// SigningInput returns the "header.payload" bytes a signer signs over.
func SigningInput(header, payload map[string]any) (string, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshaling header: %w", err)
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	return EncodeBase64URL(h) + "." + EncodeBase64URL(p), nil
}

// Compact assembles header, payload, and a raw signature into a
// compact JWT string.
func Compact(header, payload map[string]any, sig []byte) (string, error) {
	input, err := SigningInput(header, payload)
	if err != nil {
		return "", err
	}
	return input + "." + EncodeBase64URL(sig), nil
}

// thumbprintMembers lists the required members, in the order RFC 7638
// mandates, for each key type this package knows how to thumbprint.
var thumbprintMembers = map[string][]string{
	"EC":  {"crv", "kty", "x", "y"},
	"RSA": {"e", "kty", "n"},
	"OKP": {"crv", "kty", "x"},
}

// Thumbprint computes the RFC 7638 JWK thumbprint: a SHA-256 digest of
// the JSON object containing exactly the required members for the
// key's kty, with map keys in lexicographic order.
func Thumbprint(jwk map[string]any) (string, error) {
	kty, _ := jwk["kty"].(string)
	members, ok := thumbprintMembers[kty]
	if !ok {
		// RFC 7638 §3.2: unknown kty still thumbprints over every
		// member of kty's registered template; we only recognize the
		// common ones. Fall back to all string-valued members sorted,
		// which degrades safely but never silently omits kty.
		members = nil
		for k, v := range jwk {
			if _, isString := v.(string); isString {
				members = append(members, k)
			}
		}
		sort.Strings(members)
	}

	canonical := make(map[string]string, len(members))
	for _, m := range members {
		v, _ := jwk[m].(string)
		canonical[m] = v
	}

	var b strings.Builder
	b.WriteByte('{')
	keys := make([]string, 0, len(canonical))
	for k := range canonical {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(canonical[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return EncodeBase64URL(sum[:]), nil
}

// IsPublicJWK reports whether jwk has the shape of a public key for
// its kty (EC, RSA or OKP): the required public members present and no
// private exponent d. Other private members (p, q, ...) are not checked.
func IsPublicJWK(jwk map[string]any) bool {
	kty, _ := jwk["kty"].(string)
	switch kty {
	case "EC":
		if _, ok := jwk["d"]; ok {
			return false
		}
		_, hasX := jwk["x"].(string)
		_, hasY := jwk["y"].(string)
		_, hasCrv := jwk["crv"].(string)
		return hasX && hasY && hasCrv
	case "RSA":
		if _, ok := jwk["d"]; ok {
			return false
		}
		_, hasN := jwk["n"].(string)
		_, hasE := jwk["e"].(string)
		return hasN && hasE
	case "OKP":
		if _, ok := jwk["d"]; ok {
			return false
		}
		_, hasX := jwk["x"].(string)
		_, hasCrv := jwk["crv"].(string)
		return hasX && hasCrv
	default:
		return false
	}
}
