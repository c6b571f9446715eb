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

package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func ecJWK(t *testing.T, key *ecdsa.PrivateKey, kid string) map[string]string {
	t.Helper()
	x := make([]byte, 32)
	y := make([]byte, 32)
	key.X.FillBytes(x)
	key.Y.FillBytes(y)
	return map[string]string{
		"kty": "EC",
		"crv": "P-256",
		"kid": kid,
		"x":   base64.RawURLEncoding.EncodeToString(x),
		"y":   base64.RawURLEncoding.EncodeToString(y),
	}
}

func TestParsePublicKey_PEM(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	pub, err := ParsePublicKey(data, "")
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("expected *ecdsa.PublicKey, got %T", pub)
	}
	if !ec.Equal(&key.PublicKey) {
		t.Error("parsed key differs from original")
	}
}

func TestParsePublicKey_UnsupportedPEM(t *testing.T) {
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	if _, err := ParsePublicKey(data, ""); err == nil {
		t.Fatal("expected error for PRIVATE KEY block")
	}
}

func TestParsePublicKey_JWK(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	data, _ := json.Marshal(ecJWK(t, key, "k1"))

	pub, err := ParsePublicKey(data, "")
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	if ec, ok := pub.(*ecdsa.PublicKey); !ok || !ec.Equal(&key.PublicKey) {
		t.Errorf("unexpected key %T", pub)
	}
}

func TestParsePublicKey_JWKS(t *testing.T) {
	k1, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	k2, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	data, _ := json.Marshal(map[string]any{
		"keys": []any{
			map[string]string{"kty": "oct", "kid": "sym", "k": "c2VjcmV0"},
			ecJWK(t, k1, "one"),
			ecJWK(t, k2, "two"),
		},
	})

	pub, err := ParsePublicKey(data, "two")
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	if ec, ok := pub.(*ecdsa.PublicKey); !ok || !ec.Equal(&k2.PublicKey) {
		t.Error("selected the wrong key")
	}

	_, err = ParsePublicKey(data, "three")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestParsePublicKey_Garbage(t *testing.T) {
	if _, err := ParsePublicKey([]byte("not a key"), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseJWK_RSA(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	data, _ := json.Marshal(map[string]string{
		"kty": "RSA",
		"kid": "r",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   "AQAB",
	})
	pub, err := ParseJWK(data)
	if err != nil {
		t.Fatalf("ParseJWK() error: %v", err)
	}
	if _, ok := pub.(*rsa.PublicKey); !ok {
		t.Errorf("expected *rsa.PublicKey, got %T", pub)
	}
}

func TestLoadPublicKey(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	data, _ := json.Marshal(ecJWK(t, key, "file"))
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	pub, err := LoadPublicKey(path, "")
	if err != nil {
		t.Fatalf("LoadPublicKey() error: %v", err)
	}
	if ec, ok := pub.(*ecdsa.PublicKey); !ok || !ec.Equal(&key.PublicKey) {
		t.Error("loaded key differs from original")
	}

	if _, err := LoadPublicKey(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	sec1, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	rsaDER, _ := x509.MarshalPKCS8PrivateKey(rsaKey)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"sec1", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: sec1}), false},
		{"pkcs8", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), false},
		{"rsa", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: rsaDER}), true},
		{"public jwk", mustJSON(t, ecJWK(t, key, "k")), true},
		{"garbage", []byte("nope"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "key")
			if err := os.WriteFile(path, tt.data, 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := LoadPrivateKey(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadPrivateKey() error: %v", err)
			}
			if !got.Equal(key) {
				t.Error("loaded key differs from original")
			}
		})
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
