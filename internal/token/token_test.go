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

package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func makeToken(header, payload map[string]any, sig string) string {
	h, _ := json.Marshal(header)
	p, _ := json.Marshal(payload)
	return base64.RawURLEncoding.EncodeToString(h) + "." +
		base64.RawURLEncoding.EncodeToString(p) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(sig))
}

func TestDecode_Valid(t *testing.T) {
	raw := makeToken(
		map[string]any{"alg": "ES256", "typ": "JWT", "kid": "k1"},
		map[string]any{
			"iss":      "https://a3s.example",
			"aud":      []any{"https://api.example", "https://other.example"},
			"exp":      float64(1700000000),
			"identity": []any{"org=acme", "@source:type=ldap"},
			"opaque":   map[string]any{"team": "blue"},
		},
		"test-sig",
	)

	tok, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Header.Alg != "ES256" || tok.Header.Typ != "JWT" || tok.Header.Kid != "k1" {
		t.Errorf("header = %+v", tok.Header)
	}
	if tok.Claims.Issuer != "https://a3s.example" {
		t.Errorf("iss = %q", tok.Claims.Issuer)
	}
	if !reflect.DeepEqual(tok.Claims.Audience, []string{"https://api.example", "https://other.example"}) {
		t.Errorf("aud = %v", tok.Claims.Audience)
	}
	if tok.Claims.ExpiresAt != 1700000000 {
		t.Errorf("exp = %d", tok.Claims.ExpiresAt)
	}
	if !reflect.DeepEqual(tok.Claims.Identity, []string{"org=acme", "@source:type=ldap"}) {
		t.Errorf("identity = %v", tok.Claims.Identity)
	}
	if _, ok := tok.Claims.Extra["opaque"]; !ok {
		t.Error("expected opaque in extra claims")
	}
	if _, ok := tok.Claims.Extra["iss"]; ok {
		t.Error("iss should not be duplicated in extra claims")
	}
	if tok.Raw != raw {
		t.Error("raw token must be preserved")
	}
}

func TestDecode_StringAudience(t *testing.T) {
	raw := makeToken(map[string]any{"alg": "ES256"}, map[string]any{"aud": "https://api.example"}, "s")
	tok, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tok.Claims.Audience, []string{"https://api.example"}) {
		t.Errorf("aud = %v", tok.Claims.Audience)
	}
	if !tok.Claims.Expiry().IsZero() {
		t.Error("expected zero expiry without exp claim")
	}
}

func TestDecode_LeftInverseOfEncode(t *testing.T) {
	cases := []struct {
		header  map[string]any
		payload map[string]any
	}{
		{
			map[string]any{"alg": "ES256", "kid": "abc"},
			map[string]any{"iss": "https://a3s", "identity": []any{"a:1", "b:2"}},
		},
		{
			map[string]any{"alg": "none", "typ": "JWT"},
			map[string]any{"nested": map[string]any{"k": "v"}, "n": float64(3), "ok": true},
		},
		{
			map[string]any{"alg": "ES256", "x": "ünïcødé"},
			map[string]any{},
		},
	}

	for i, tc := range cases {
		raw, err := Encode(tc.header, tc.payload, []byte{0x01, 0xfe, 0xff})
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		tok, err := Decode(raw)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if !reflect.DeepEqual(tok.RawHeader, tc.header) {
			t.Errorf("case %d: header = %v, want %v", i, tok.RawHeader, tc.header)
		}
		if !reflect.DeepEqual(tok.RawPayload, tc.payload) {
			t.Errorf("case %d: payload = %v, want %v", i, tok.RawPayload, tc.payload)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	h, _ := json.Marshal(map[string]any{"alg": "ES256"})
	p, _ := json.Marshal(map[string]any{"sub": "test"})
	hb := base64.RawURLEncoding.EncodeToString(h)
	pb := base64.RawURLEncoding.EncodeToString(p)
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	array := base64.RawURLEncoding.EncodeToString([]byte("[1,2]"))

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"one part", hb},
		{"two parts", hb + "." + pb},
		{"four parts", hb + "." + pb + ".c2ln.extra"},
		{"empty signature", hb + "." + pb + "."},
		{"empty header", "." + pb + ".c2ln"},
		{"header not base64url", "!!!." + pb + ".c2ln"},
		{"payload not base64url", hb + ".!!!.c2ln"},
		{"signature not base64url", hb + "." + pb + ".!!!"},
		{"signature in std alphabet", hb + "." + pb + ".ab+c"},
		{"padded signature", hb + "." + pb + ".c2ln" + "=="},
		{"header not json", notJSON + "." + pb + ".c2ln"},
		{"payload not json", hb + "." + notJSON + ".c2ln"},
		{"payload not an object", hb + "." + array + ".c2ln"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Errorf("expected *MalformedError, got %T", err)
			}
		})
	}
}

func TestSigningInputAndSignatureBytes(t *testing.T) {
	raw := makeToken(map[string]any{"alg": "ES256"}, map[string]any{"iss": "x"}, "\x00\x01sig")
	parts := strings.Split(raw, ".")

	input, err := SigningInput(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(input) != parts[0]+"."+parts[1] {
		t.Errorf("SigningInput = %q", input)
	}

	sig, err := SignatureBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(sig) != "\x00\x01sig" {
		t.Errorf("SignatureBytes = %q", sig)
	}

	if _, err := SigningInput("a.b"); !errors.Is(err, ErrMalformed) {
		t.Errorf("SigningInput(a.b) error = %v", err)
	}
	if _, err := SignatureBytes("a.b.!!!"); !errors.Is(err, ErrMalformed) {
		t.Errorf("SignatureBytes(a.b.!!!) error = %v", err)
	}
}
