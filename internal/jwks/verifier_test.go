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

package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PaloAltoNetworks/a3s/internal/format"
	"github.com/PaloAltoNetworks/a3s/internal/mock"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

var testNow = time.Unix(1700000000, 0)

type issuer struct {
	srv  *httptest.Server
	hits atomic.Int32
	set  []byte
}

func newIssuer(t *testing.T, set []byte) *issuer {
	t.Helper()
	is := &issuer{set: set}
	is.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.hits.Add(1)
		if r.URL.Path != WellKnownPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(is.set)
	}))
	t.Cleanup(is.srv.Close)
	return is
}

func signed(t *testing.T, key *ecdsa.PrivateKey, iss string, expiresIn time.Duration) *token.Token {
	t.Helper()
	raw, err := mock.SignToken(mock.TokenConfig{
		Issuer:    iss,
		Identity:  []string{"org=acme"},
		ExpiresIn: expiresIn,
		Key:       key,
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	tok, err := token.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestVerify_Expired(t *testing.T) {
	key, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&key.PublicKey))
	tok := signed(t, key, is.srv.URL, time.Minute)

	res := NewVerifier(nil).Verify(context.Background(), tok, testNow.Add(2*time.Minute))
	if res.Verified || res.Reason != ReasonExpired {
		t.Errorf("got %v, want expired", res)
	}
	if n := is.hits.Load(); n != 0 {
		t.Errorf("expected no network call, got %d", n)
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	key, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&key.PublicKey))
	tok := signed(t, key, is.srv.URL, time.Minute)

	res := NewVerifier(nil).Verify(context.Background(), tok, testNow.Add(time.Minute))
	if !res.Verified {
		t.Errorf("token at exact expiry should still verify, got %v", res)
	}
}

func TestVerify_Verified(t *testing.T) {
	key, _ := mock.GenerateKey()
	other, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&other.PublicKey, &key.PublicKey))
	tok := signed(t, key, is.srv.URL+"/", time.Hour)

	res := NewVerifier(is.srv.Client()).Verify(context.Background(), tok, testNow)
	if !res.Verified {
		t.Fatalf("expected verified, got %v (%v)", res, res.Err)
	}
	if is.hits.Load() != 1 {
		t.Errorf("expected one fetch, got %d", is.hits.Load())
	}
}

func TestVerify_FlippedSignatureByte(t *testing.T) {
	key, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&key.PublicKey))
	tok := signed(t, key, is.srv.URL, time.Hour)
	v := NewVerifier(nil)

	input, _ := token.SigningInput(tok.Raw)
	sig, _ := token.SignatureBytes(tok.Raw)

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x01
		tampered, err := token.Decode(string(input) + "." + format.EncodeBase64URL(flipped))
		if err != nil {
			t.Fatal(err)
		}
		res := v.Verify(context.Background(), tampered, testNow)
		if res.Verified || res.Reason != ReasonSignatureMismatch {
			t.Fatalf("byte %d: got %v, want signature mismatch", i, res)
		}
	}
}

func TestVerify_DoesNotMutateToken(t *testing.T) {
	key, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&key.PublicKey))
	tok := signed(t, key, is.srv.URL, time.Hour)
	raw := tok.Raw

	NewVerifier(nil).Verify(context.Background(), tok, testNow)
	if tok.Raw != raw {
		t.Error("token was mutated")
	}
}

func TestVerify_FetchFailed(t *testing.T) {
	key, _ := mock.GenerateKey()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tok := signed(t, key, srv.URL, time.Hour)
	res := NewVerifier(nil).Verify(context.Background(), tok, testNow)
	if res.Reason != ReasonFetchFailed {
		t.Fatalf("got %v, want jwks fetch failed", res)
	}
	var fe *FetchError
	if !errors.As(res.Err, &fe) || fe.Status != http.StatusServiceUnavailable {
		t.Errorf("expected FetchError with status 503, got %v", res.Err)
	}
}

func TestVerify_FetchFailedCases(t *testing.T) {
	key, _ := mock.GenerateKey()

	tests := []struct {
		name string
		iss  func(t *testing.T) string
	}{
		{"no issuer", func(t *testing.T) string { return "" }},
		{"unreachable", func(t *testing.T) string {
			srv := httptest.NewServer(http.NotFoundHandler())
			srv.Close()
			return srv.URL
		}},
		{"not json", func(t *testing.T) string {
			return newIssuer(t, []byte("<html>")).srv.URL
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := signed(t, key, tt.iss(t), time.Hour)
			res := NewVerifier(nil).Verify(context.Background(), tok, testNow)
			if res.Reason != ReasonFetchFailed {
				t.Errorf("got %v, want jwks fetch failed", res)
			}
		})
	}
}

func TestVerify_NoMatchingKey(t *testing.T) {
	key, _ := mock.GenerateKey()
	other, _ := mock.GenerateKey()
	is := newIssuer(t, mock.JWKS(&other.PublicKey))
	tok := signed(t, key, is.srv.URL, time.Hour)

	res := NewVerifier(nil).Verify(context.Background(), tok, testNow)
	if res.Reason != ReasonNoMatchingKey {
		t.Errorf("got %v, want no matching key", res)
	}
}

// forge builds a token with an arbitrary header against a key set entry.
func forge(t *testing.T, iss string, header map[string]any) *token.Token {
	t.Helper()
	raw, err := token.Encode(header, map[string]any{"iss": iss, "identity": []string{"a"}}, make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	tok, err := token.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestVerify_UnsupportedAlgorithm(t *testing.T) {
	key, _ := mock.GenerateKey()
	kid := mock.KeyID(&key.PublicKey)
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	set, _ := json.Marshal(map[string]any{
		"keys": []any{
			mock.PublicJWK(&key.PublicKey, kid),
			map[string]string{
				"kty": "RSA",
				"kid": "rsa",
				"n":   base64.RawURLEncoding.EncodeToString(rsaKey.N.Bytes()),
				"e":   "AQAB",
			},
		},
	})
	is := newIssuer(t, set)

	tests := []struct {
		name   string
		header map[string]any
	}{
		{"RS256 header", map[string]any{"alg": "RS256", "kid": kid}},
		{"none header", map[string]any{"alg": "none", "kid": kid}},
		{"RSA key", map[string]any{"alg": "ES256", "kid": "rsa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewVerifier(nil).Verify(context.Background(), forge(t, is.srv.URL, tt.header), testNow)
			if res.Reason != ReasonUnsupportedAlgorithm {
				t.Errorf("got %v, want unsupported algorithm", res)
			}
		})
	}
}

func TestVerify_InvalidKey(t *testing.T) {
	set := []byte(`{"keys":[{"kty":"EC","crv":"P-256","kid":"bad","x":"AAAA","y":"AAAA"}]}`)
	is := newIssuer(t, set)

	res := NewVerifier(nil).Verify(context.Background(), forge(t, is.srv.URL, map[string]any{"alg": "ES256", "kid": "bad"}), testNow)
	if res.Reason != ReasonInvalidKey {
		t.Errorf("got %v, want invalid key", res)
	}
}

func TestVerifyWithKey(t *testing.T) {
	key, _ := mock.GenerateKey()
	other, _ := mock.GenerateKey()
	tok := signed(t, key, "https://offline.example", time.Hour)

	if res := VerifyWithKey(tok, &key.PublicKey, testNow); !res.Verified {
		t.Errorf("expected verified, got %v", res)
	}
	if res := VerifyWithKey(tok, &other.PublicKey, testNow); res.Reason != ReasonSignatureMismatch {
		t.Errorf("got %v, want signature mismatch", res)
	}
	if res := VerifyWithKey(tok, &key.PublicKey, testNow.Add(2*time.Hour)); res.Reason != ReasonExpired {
		t.Errorf("got %v, want expired", res)
	}
}

func TestResultString(t *testing.T) {
	if got := verified().String(); got != "verified" {
		t.Errorf("String() = %q", got)
	}
	if got := unverified(ReasonExpired, nil).String(); !strings.Contains(got, "expired") {
		t.Errorf("String() = %q", got)
	}
}

func TestVerify_CancelledCallerDoesNotFailOthers(t *testing.T) {
	key, _ := mock.GenerateKey()
	set := mock.JWKS(&key.PublicKey)

	var hits atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		arrived <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write(set)
	}))
	t.Cleanup(srv.Close)
	var releaseOnce atomic.Bool
	t.Cleanup(func() {
		if releaseOnce.CompareAndSwap(false, true) {
			close(release)
		}
	})

	v := NewVerifier(srv.Client())
	tok := signed(t, key, srv.URL, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Result, 1)
	go func() { first <- v.Verify(ctx, tok, testNow) }()

	<-arrived
	cancel()
	res := <-first
	if res.Verified || res.Reason != ReasonFetchFailed || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("cancelled caller: got %v (%v)", res, res.Err)
	}

	second := make(chan Result, 1)
	go func() { second <- v.Verify(context.Background(), tok, testNow) }()

	time.Sleep(50 * time.Millisecond)
	releaseOnce.Store(true)
	close(release)

	select {
	case res := <-second:
		if !res.Verified {
			t.Fatalf("waiting caller: got %v (%v)", res, res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting caller did not finish")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected the shared request only, got %d fetches", n)
	}
}
