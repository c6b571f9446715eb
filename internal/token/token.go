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

// Package token decodes compact a3s identity tokens without verifying them.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaloAltoNetworks/a3s/internal/format"
)

// ErrMalformed is matched by every MalformedError.
var ErrMalformed = errors.New("malformed token")

// MalformedError reports a structural decode failure.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed token: %s: %v", e.Reason, e.Err)
	}
	return "malformed token: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Header holds the JOSE header fields the engine cares about.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// Claims holds the decoded payload. Extra carries every claim not mapped to a field.
type Claims struct {
	Issuer    string
	Audience  []string
	ExpiresAt int64
	Identity  []string
	Extra     map[string]any
}

// Expiry returns the exp claim as a time, or the zero time when absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// Token is a decoded, unverified compact token. It is never mutated after Decode.
type Token struct {
	Raw        string
	Header     Header
	Claims     Claims
	RawHeader  map[string]any
	RawPayload map[string]any
}

// Decode splits a compact token into header and payload. The signature is not checked:
// callers must not treat the result as authenticated.
func Decode(raw string) (*Token, error) {
	parts, err := split(raw)
	if err != nil {
		return nil, err
	}

	headerBytes, err := format.DecodeBase64URL(parts[0])
	if err != nil {
		return nil, &MalformedError{Reason: "decoding header", Err: err}
	}
	payloadBytes, err := format.DecodeBase64URL(parts[1])
	if err != nil {
		return nil, &MalformedError{Reason: "decoding payload", Err: err}
	}
	if _, err := format.DecodeBase64URL(parts[2]); err != nil {
		return nil, &MalformedError{Reason: "decoding signature", Err: err}
	}

	t := &Token{Raw: raw}
	if err := json.Unmarshal(headerBytes, &t.RawHeader); err != nil {
		return nil, &MalformedError{Reason: "unmarshaling header", Err: err}
	}
	if err := json.Unmarshal(payloadBytes, &t.RawPayload); err != nil {
		return nil, &MalformedError{Reason: "unmarshaling payload", Err: err}
	}
	if t.RawHeader == nil || t.RawPayload == nil {
		return nil, &MalformedError{Reason: "header and payload must be JSON objects"}
	}

	t.Header = headerFrom(t.RawHeader)
	t.Claims = claimsFrom(t.RawPayload)
	return t, nil
}

// SigningInput returns the bytes covered by the signature: the first two
// segments joined by a dot, exactly as they appear in raw.
func SigningInput(raw string) ([]byte, error) {
	parts, err := split(raw)
	if err != nil {
		return nil, err
	}
	return []byte(parts[0] + "." + parts[1]), nil
}

// SignatureBytes returns the decoded third segment.
func SignatureBytes(raw string) ([]byte, error) {
	parts, err := split(raw)
	if err != nil {
		return nil, err
	}
	sig, err := format.DecodeBase64URL(parts[2])
	if err != nil {
		return nil, &MalformedError{Reason: "decoding signature", Err: err}
	}
	return sig, nil
}

// Encode builds a compact token from a header, a payload and raw signature bytes.
func Encode(header, payload map[string]any, sig []byte) (string, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshaling header: %w", err)
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	return format.EncodeBase64URL(h) + "." + format.EncodeBase64URL(p) + "." + format.EncodeBase64URL(sig), nil
}

func split(raw string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return nil, &MalformedError{Reason: fmt.Sprintf("expected 3 parts separated by '.', got %d", len(parts))}
	}
	for i, p := range parts {
		if p == "" {
			return nil, &MalformedError{Reason: fmt.Sprintf("segment %d is empty", i+1)}
		}
	}
	return parts, nil
}

func headerFrom(m map[string]any) Header {
	var h Header
	h.Alg, _ = m["alg"].(string)
	h.Typ, _ = m["typ"].(string)
	h.Kid, _ = m["kid"].(string)
	return h
}

func claimsFrom(m map[string]any) Claims {
	c := Claims{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "iss":
			c.Issuer, _ = v.(string)
		case "aud":
			c.Audience = stringList(v)
		case "exp":
			if f, ok := v.(float64); ok {
				c.ExpiresAt = int64(f)
			}
		case "identity":
			c.Identity = stringList(v)
		default:
			c.Extra[k] = v
		}
	}
	return c
}

// stringList accepts a single string or an array of strings; non-string entries are skipped.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
