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

// Package adapter is a reference implementation of callback.Callbacks
// built on github.com/lestrrat-go/jwx/v2, the way
// nuts-foundation/nuts-node's auth package wires jwx into its own
// oauth/DPoP handling. It owns an in-memory key ring keyed by kid so
// the demo CLI (cmd/oid4vcictl) can sign and verify without a real KMS.
package adapter

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/dominikschlosser/oid4vci-core/callback"
)

// KeyRing holds ephemeral signing keys indexed by key ID, for the demo
// CLI's wallet/issuer roles. Not safe for concurrent Generate calls
// with the same kid; each role generates its own key once at startup.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]jwk.Key // kid -> private key
}

// NewKeyRing returns an empty ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]jwk.Key)}
}

// Generate creates a fresh P-256 key under kid and returns its public
// JWK as a plain map (the shape callback.Signer.PublicJWK expects).
func (r *KeyRing) Generate(kid string) (map[string]any, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	key, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, fmt.Errorf("importing key into jwk: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.keys[kid] = key
	r.mu.Unlock()

	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	return jwkToMap(pub)
}

func (r *KeyRing) get(kid string) (jwk.Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[kid]
	return k, ok
}

// Callbacks builds the reference callback.Callbacks backed by ring for
// signing/verification and http.DefaultClient for transport.
func Callbacks(ring *KeyRing, client *http.Client) callback.Callbacks {
	if client == nil {
		client = http.DefaultClient
	}
	return callback.Callbacks{
		Hash:           hashFn,
		GenerateRandom: generateRandomFn,
		SignJWT:        signJWTFn(ring),
		VerifyJWT:      verifyJWTFn(),
		Fetch:          fetchFn(client),
	}
}

func hashFn(_ context.Context, data []byte, alg callback.HashAlg) ([]byte, error) {
	switch alg {
	case callback.SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case callback.SHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case callback.SHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("adapter: unsupported hash algorithm %q", alg)
	}
}

func generateRandomFn(_ context.Context, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

func signJWTFn(ring *KeyRing) func(context.Context, callback.Signer, callback.SignInput) (string, error) {
	return func(_ context.Context, signer callback.Signer, in callback.SignInput) (string, error) {
		kid := signer.KeyID
		if kid == "" {
			kid = signer.DIDUrl
		}
		key, ok := ring.get(kid)
		if !ok {
			return "", fmt.Errorf("adapter: no key registered for kid %q", kid)
		}

		headers := jws.NewHeaders()
		for k, v := range in.Header {
			if k == "jwk" {
				raw, err := json.Marshal(v)
				if err != nil {
					return "", fmt.Errorf("marshaling jwk header: %w", err)
				}
				parsed, err := jwk.ParseKey(raw)
				if err != nil {
					return "", fmt.Errorf("parsing jwk header: %w", err)
				}
				v = parsed
			}
			if err := headers.Set(k, v); err != nil {
				return "", fmt.Errorf("setting header %q: %w", k, err)
			}
		}

		payload, err := json.Marshal(in.Payload)
		if err != nil {
			return "", fmt.Errorf("marshaling payload: %w", err)
		}

		// Sign with the raw private key: jws.Sign copies a jwk.Key's kid
		// into the protected header, which would add a kid the core did
		// not set next to a jwk or x5c header.
		var rawKey ecdsa.PrivateKey
		if err := key.Raw(&rawKey); err != nil {
			return "", fmt.Errorf("exporting private key: %w", err)
		}
		signed, err := jws.Sign(payload, jws.WithKey(jwa.ES256, &rawKey, jws.WithProtectedHeaders(headers)))
		if err != nil {
			return "", fmt.Errorf("signing jwt: %w", err)
		}
		return string(signed), nil
	}
}

func verifyJWTFn() func(context.Context, callback.Signer, callback.VerifyInput) (callback.VerifyResult, error) {
	return func(_ context.Context, signer callback.Signer, in callback.VerifyInput) (callback.VerifyResult, error) {
		if signer.Kind != callback.SignerJWK {
			return callback.VerifyResult{}, fmt.Errorf("adapter: VerifyJWT only supports jwk signers, got %q", signer.Kind)
		}
		raw, err := json.Marshal(signer.PublicJWK)
		if err != nil {
			return callback.VerifyResult{}, fmt.Errorf("marshaling public jwk: %w", err)
		}
		key, err := jwk.ParseKey(raw)
		if err != nil {
			return callback.VerifyResult{}, fmt.Errorf("parsing public jwk: %w", err)
		}

		alg := jwa.SignatureAlgorithm(signer.Alg)
		if alg == "" {
			alg = jwa.ES256
		}
		if _, err := jws.Verify([]byte(in.Compact), jws.WithKey(alg, key)); err != nil {
			return callback.VerifyResult{Valid: false}, nil
		}
		return callback.VerifyResult{Valid: true, SignerJWK: signer.PublicJWK}, nil
	}
}

func fetchFn(client *http.Client) func(context.Context, *http.Request) (*http.Response, error) {
	return func(_ context.Context, req *http.Request) (*http.Response, error) {
		return client.Do(req)
	}
}

func jwkToMap(key jwk.Key) (map[string]any, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
