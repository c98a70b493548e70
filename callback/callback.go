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

// Package callback defines the typed boundary between the protocol core
// and everything the core never does itself: hashing, randomness, JWT
// signing/verification, HTTP transport, and client authentication.
// Implementers build one adapter and pass it to every package in this
// module (see internal/adapter for a reference implementation).
package callback

import (
	"context"
	"net/http"
)

// HashAlg identifies a digest algorithm used for PKCE, DPoP ath, and
// JWK thumbprints.
type HashAlg string

const (
	SHA256 HashAlg = "sha-256"
	SHA384 HashAlg = "sha-384"
	SHA512 HashAlg = "sha-512"
)

// SignerKind discriminates the JWT Signer tagged variant of spec.md §3.
type SignerKind string

const (
	SignerDID    SignerKind = "did"
	SignerJWK    SignerKind = "jwk"
	SignerX5C    SignerKind = "x5c"
	SignerCustom SignerKind = "custom"
)

// Signer is the tagged-variant description of a signing key. Exactly
// one of the kind-specific fields is populated, matching Kind.
type Signer struct {
	Kind SignerKind

	// SignerDID
	DIDUrl string
	// SignerJWK
	PublicJWK map[string]any
	// SignerX5C
	CertificateChain [][]byte // DER-encoded, leaf first

	// Alg applies to DID, JWK, and X5C kinds. Custom signers populate
	// their own header entirely and ignore this field.
	Alg string

	// KeyID is an opaque handle the adapter uses to find the private
	// key material; the core never inspects it.
	KeyID string
}

// SignInput is the header/payload pair handed to SignJWT. The core
// populates kid/jwk/x5c in Header according to the Signer variant
// before calling; the callback only needs to serialize and sign.
type SignInput struct {
	Header  map[string]any
	Payload map[string]any
}

// VerifyInput is handed to VerifyJWT: the compact JWT plus the already
// decoded header/payload, so the callback doesn't need to re-parse.
type VerifyInput struct {
	Compact string
	Header  map[string]any
	Payload map[string]any
}

// VerifyResult reports whether a JWT's signature is valid and, when it
// is, the JWK that verified it (so the caller can bind a credential or
// access token to that key).
type VerifyResult struct {
	Valid     bool
	SignerJWK map[string]any
}

// ClientAuthRequest describes an outgoing token/PAR/challenge request
// before client authentication has been applied.
type ClientAuthRequest struct {
	Method string
	URL    string
	Form   map[string]string
	Header http.Header
}

// Callbacks is the full set of collaborators the core requires. nil
// fields are only acceptable for flows that never reach them (e.g. a
// resource server never needs SignJWT).
type Callbacks struct {
	// Hash digests data with the named algorithm.
	Hash func(ctx context.Context, data []byte, alg HashAlg) ([]byte, error)

	// GenerateRandom returns n cryptographically strong random bytes.
	GenerateRandom func(ctx context.Context, n int) ([]byte, error)

	// SignJWT signs a header/payload pair and returns a compact JWT.
	// The core has already populated header fields (kid/jwk/x5c/alg)
	// appropriate to signer.Kind.
	SignJWT func(ctx context.Context, signer Signer, in SignInput) (string, error)

	// VerifyJWT checks a compact JWT's signature against signer (or,
	// for did/x5c signers the caller resolved out of band, whatever
	// key material the adapter determines applies).
	VerifyJWT func(ctx context.Context, signer Signer, in VerifyInput) (VerifyResult, error)

	// Fetch performs an HTTP request. Implementations should honor
	// ctx cancellation and standard HTTP semantics; the core installs
	// no timeouts of its own (spec.md §5).
	Fetch func(ctx context.Context, req *http.Request) (*http.Response, error)

	// ClientAuthentication adjusts an outgoing token/PAR/challenge
	// request to add client credentials (none, client_secret_basic,
	// client_secret_post, private_key_jwt, attest_jwt_client_auth).
	ClientAuthentication func(ctx context.Context, req *ClientAuthRequest) error
}
