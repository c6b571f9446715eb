// Copyright 2026 Dominik Schlosser
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

// Package mock produces signing keys, key sets and signed identity tokens for
// local testing of the verifier and the login flow.
package mock

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/PaloAltoNetworks/a3s/internal/format"
)

// GenerateKey creates an ephemeral P-256 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// KeyID derives a stable key id from the public point, the way an issuer
// names keys in its JWKS.
func KeyID(key *ecdsa.PublicKey) string {
	x, y := coordinates(key)
	sum := sha256.Sum256(append(x, y...))
	return fmt.Sprintf("%X", sum[:10])
}

// PublicJWK returns the JWK members of a P-256 public key.
func PublicJWK(key *ecdsa.PublicKey, kid string) map[string]string {
	x, y := coordinates(key)
	return map[string]string{
		"kty": "EC",
		"crv": "P-256",
		"kid": kid,
		"use": "sign",
		"x":   format.EncodeBase64URL(x),
		"y":   format.EncodeBase64URL(y),
	}
}

// JWKS returns a JSON Web Key Set document holding the given public keys,
// each named by KeyID.
func JWKS(keys ...*ecdsa.PublicKey) []byte {
	set := struct {
		Keys []map[string]string `json:"keys"`
	}{Keys: []map[string]string{}}
	for _, k := range keys {
		set.Keys = append(set.Keys, PublicJWK(k, KeyID(k)))
	}
	b, _ := json.MarshalIndent(set, "", "  ")
	return b
}

func coordinates(key *ecdsa.PublicKey) ([]byte, []byte) {
	size := (key.Curve.Params().BitSize + 7) / 8
	return padToSize(key.X.Bytes(), size), padToSize(key.Y.Bytes(), size)
}

func padToSize(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}
