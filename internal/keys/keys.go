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

// Package keys loads issuer verification keys from PEM, JWK and JWKS documents.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrKeyNotFound is returned when no JWKS entry carries the requested key id.
var ErrKeyNotFound = errors.New("no matching key")

// LoadPublicKey loads a public key from a PEM, JWK or JWKS file.
// kid selects the entry when the file holds a key set.
func LoadPublicKey(path, kid string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return ParsePublicKey(data, kid)
}

// ParsePublicKey parses a public key from PEM, JWK or JWKS bytes.
func ParsePublicKey(data []byte, kid string) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block != nil {
		return parsePEMBlock(block)
	}

	var probe struct {
		Keys json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("not a valid PEM, JWK or JWKS: %w", err)
	}
	if probe.Keys != nil {
		entry, err := FindJWK(data, kid)
		if err != nil {
			return nil, err
		}
		return ParseJWK(entry)
	}
	return ParseJWK(data)
}

func parsePEMBlock(block *pem.Block) (crypto.PublicKey, error) {
	switch block.Type {
	case "PUBLIC KEY", "EC PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}
}

// FindJWK returns the raw JWKS entry whose kid equals kid. Entries are
// matched before being parsed so a set mixing key types the engine cannot
// use still yields the entry it can.
func FindJWK(set []byte, kid string) (json.RawMessage, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(set, &doc); err != nil {
		return nil, fmt.Errorf("parsing key set: %w", err)
	}

	for _, entry := range doc.Keys {
		var id struct {
			Kid string `json:"kid"`
		}
		if err := json.Unmarshal(entry, &id); err != nil {
			continue
		}
		if id.Kid == kid {
			return entry, nil
		}
	}
	return nil, ErrKeyNotFound
}

// ParseJWK parses a single JWK into its public key. Private members, when
// present, are dropped.
func ParseJWK(data []byte) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parsing JWK: %w", err)
	}

	pub := jwk.Public()
	if !pub.Valid() {
		return nil, fmt.Errorf("JWK %q holds no usable public key", jwk.KeyID)
	}
	return pub.Key, nil
}

// LoadPrivateKey loads a P-256 signing key from a PEM (SEC 1 or PKCS #8) or
// JWK file.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var key any
	if block, _ := pem.Decode(data); block != nil {
		switch block.Type {
		case "EC PRIVATE KEY":
			key, err = x509.ParseECPrivateKey(block.Bytes)
		case "PRIVATE KEY":
			key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		default:
			return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
	} else {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("not a valid PEM or JWK: %w", err)
		}
		key = jwk.Key
	}

	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok || ec.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("key must be a P-256 EC private key")
	}
	return ec, nil
}
