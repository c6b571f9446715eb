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

// Package jwks verifies a3s identity tokens against the public keys the
// issuer publishes under /.well-known/jwks.json.
package jwks

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/PaloAltoNetworks/a3s/internal/keys"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// Reasons reported by an unverified Result.
const (
	ReasonExpired              = "expired"
	ReasonFetchFailed          = "jwks fetch failed"
	ReasonNoMatchingKey        = "no matching key"
	ReasonUnsupportedAlgorithm = "unsupported algorithm"
	ReasonInvalidKey           = "invalid key"
	ReasonSignatureMismatch    = "signature mismatch"
)

// WellKnownPath is appended to the issuer URL to locate its key set.
const WellKnownPath = "/.well-known/jwks.json"

// FetchError describes why the issuer key set could not be retrieved.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome of a verification. An unverified token is a normal
// result, not an error; Err only carries detail for the reason.
type Result struct {
	Verified bool
	Reason   string
	Err      error
}

func verified() Result { return Result{Verified: true} }

func unverified(reason string, err error) Result {
	return Result{Reason: reason, Err: err}
}

func (r Result) String() string {
	if r.Verified {
		return "verified"
	}
	return "unverified: " + r.Reason
}

// Verifier fetches issuer key sets and checks ES256 signatures. It holds no
// per-token state and is safe for concurrent use.
type Verifier struct {
	client *http.Client
	group  singleflight.Group
}

// NewVerifier returns a Verifier using client, or a client with a 15 second
// timeout when client is nil.
func NewVerifier(client *http.Client) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Verifier{client: client}
}

// Verify checks tok against the key set published by its issuer. now is the
// reference time for expiry; expired tokens are rejected before any fetch.
func (v *Verifier) Verify(ctx context.Context, tok *token.Token, now time.Time) Result {
	if expired(tok, now) {
		return unverified(ReasonExpired, nil)
	}

	set, err := v.fetch(ctx, tok.Claims.Issuer)
	if err != nil {
		log.Printf("[JWKS] %v", err)
		return unverified(ReasonFetchFailed, err)
	}

	entry, err := keys.FindJWK(set, tok.Header.Kid)
	if err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			return unverified(ReasonNoMatchingKey, nil)
		}
		return unverified(ReasonFetchFailed, &FetchError{URL: jwksURL(tok.Claims.Issuer), Err: err})
	}

	if tok.Header.Alg != jwt.SigningMethodES256.Alg() {
		return unverified(ReasonUnsupportedAlgorithm, fmt.Errorf("alg %q", tok.Header.Alg))
	}

	pub, err := keys.ParseJWK(entry)
	if err != nil {
		return unverified(ReasonInvalidKey, err)
	}
	return checkSignature(tok, pub)
}

// VerifyWithKey checks tok against a pinned public key without fetching
// anything.
func VerifyWithKey(tok *token.Token, pub crypto.PublicKey, now time.Time) Result {
	if expired(tok, now) {
		return unverified(ReasonExpired, nil)
	}
	if tok.Header.Alg != jwt.SigningMethodES256.Alg() {
		return unverified(ReasonUnsupportedAlgorithm, fmt.Errorf("alg %q", tok.Header.Alg))
	}
	return checkSignature(tok, pub)
}

func checkSignature(tok *token.Token, pub crypto.PublicKey) Result {
	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok || ec.Curve != elliptic.P256() {
		return unverified(ReasonUnsupportedAlgorithm, fmt.Errorf("key type %T is not a P-256 key", pub))
	}

	input, err := token.SigningInput(tok.Raw)
	if err != nil {
		return unverified(ReasonSignatureMismatch, err)
	}
	sig, err := token.SignatureBytes(tok.Raw)
	if err != nil {
		return unverified(ReasonSignatureMismatch, err)
	}

	if err := jwt.SigningMethodES256.Verify(string(input), sig, ec); err != nil {
		return unverified(ReasonSignatureMismatch, err)
	}
	return verified()
}

func expired(tok *token.Token, now time.Time) bool {
	exp := tok.Claims.Expiry()
	return !exp.IsZero() && exp.Before(now)
}

func jwksURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + WellKnownPath
}

// fetch retrieves the raw key set. Concurrent fetches for the same issuer
// share one request; nothing is cached once it completes. The shared request
// outlives any single caller: a caller whose ctx ends stops waiting without
// failing the others.
func (v *Verifier) fetch(ctx context.Context, issuer string) ([]byte, error) {
	if issuer == "" {
		return nil, &FetchError{URL: WellKnownPath, Err: errors.New("token has no issuer")}
	}
	url := jwksURL(issuer)
	shared := context.WithoutCancel(ctx)

	ch := v.group.DoChan(url, func() (any, error) {
		return v.get(shared, url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, &FetchError{URL: url, Err: ctx.Err()}
	}
}

func (v *Verifier) get(ctx context.Context, url string) ([]byte, error) {
	log.Printf("[JWKS] GET %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("reading response: %w", err)}
	}
	return data, nil
}
