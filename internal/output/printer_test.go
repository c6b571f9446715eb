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

package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/PaloAltoNetworks/a3s/internal/claimreq"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// captureOutput captures all terminal output (both fmt and color) during fn execution.
func captureOutput(fn func()) string {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	r, w, _ := os.Pipe()

	oldStdout := os.Stdout
	oldOutput := color.Output
	os.Stdout = w
	color.Output = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		done <- buf.Bytes()
	}()

	fn()

	w.Close()
	os.Stdout = oldStdout
	color.Output = oldOutput
	return string(<-done)
}

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func withFixedNow(t *testing.T) {
	t.Helper()
	timeNow = func() time.Time { return fixedNow }
	t.Cleanup(func() { timeNow = time.Now })
}

func testToken(t *testing.T, exp time.Time) *token.Token {
	t.Helper()
	raw, err := token.Encode(
		map[string]any{"alg": "ES256", "typ": "JWT", "kid": "k1"},
		map[string]any{
			"iss":      "https://a3s.example",
			"aud":      []string{"https://api.example"},
			"exp":      exp.Unix(),
			"identity": []string{"org=acme", "@source:type=ldap"},
			"opaque":   map[string]string{"k": "v"},
		},
		[]byte("sig"),
	)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := token.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRelativeTime(t *testing.T) {
	withFixedNow(t)
	tests := []struct {
		at   time.Time
		want string
	}{
		{fixedNow.Add(90 * time.Minute), "in 1 hour"},
		{fixedNow.Add(-3 * time.Hour), "3 hours ago"},
		{fixedNow.Add(72 * time.Hour), "in 3 days"},
		{fixedNow.Add(30 * time.Second), "in 1 minute"},
		{fixedNow.Add(-25 * time.Hour), "1 day ago"},
		{fixedNow.Add(10 * time.Minute), "in 10 minutes"},
	}
	for _, tt := range tests {
		if got := relativeTime(tt.at); got != tt.want {
			t.Errorf("relativeTime(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestPrintToken(t *testing.T) {
	withFixedNow(t)
	tok := testToken(t, fixedNow.Add(2*time.Hour))

	out := captureOutput(func() { PrintToken(tok, Options{}) })
	for _, want := range []string{
		"a3s Identity Token",
		"Issuer: https://a3s.example",
		"Audience: https://api.example",
		"Expires: 2026-01-01T14:00:00Z (in 2 hours)",
		"Identity (2)",
		"org=acme",
		"@source:type=ldap",
		"kid: k1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Other Claims") {
		t.Error("extra claims shown without verbose")
	}

	verbose := captureOutput(func() { PrintToken(tok, Options{Verbose: true}) })
	if !strings.Contains(verbose, "Other Claims") || !strings.Contains(verbose, "opaque") {
		t.Error("extra claims missing in verbose mode")
	}
}

func TestPrintToken_Expired(t *testing.T) {
	withFixedNow(t)
	out := captureOutput(func() { PrintToken(testToken(t, fixedNow.Add(-time.Hour)), Options{}) })
	if !strings.Contains(out, "⚠ Expired") {
		t.Errorf("expected expired warning:\n%s", out)
	}
}

func TestPrintToken_JSON(t *testing.T) {
	tok := testToken(t, fixedNow)
	out := captureOutput(func() { PrintToken(tok, Options{JSON: true}) })

	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	ids, _ := m["identities"].([]any)
	if len(ids) != 1 || ids[0] != "org=acme" {
		t.Errorf("identities = %v", m["identities"])
	}
	if _, ok := m["verification"]; ok {
		t.Error("verification present without result")
	}
}

func TestPrintVerifyResult(t *testing.T) {
	tok := testToken(t, fixedNow)

	ok := captureOutput(func() { PrintVerifyResult(tok, jwks.Result{Verified: true}, Options{}) })
	if !strings.Contains(ok, "✓ Signature valid") || !strings.Contains(ok, "Key ID: k1") {
		t.Errorf("unexpected output:\n%s", ok)
	}

	res := jwks.Result{Reason: jwks.ReasonSignatureMismatch, Err: errors.New("ecdsa failure")}
	bad := captureOutput(func() { PrintVerifyResult(tok, res, Options{}) })
	if !strings.Contains(bad, "✗ Unverified: signature mismatch") {
		t.Errorf("unexpected output:\n%s", bad)
	}
	if strings.Contains(bad, "ecdsa failure") {
		t.Error("detail shown without verbose")
	}

	js := captureOutput(func() { PrintVerifyResult(tok, res, Options{JSON: true}) })
	var m map[string]any
	if err := json.Unmarshal([]byte(js), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	v := m["verification"].(map[string]any)
	if v["verified"] != false || v["reason"] != "signature mismatch" || v["detail"] != "ecdsa failure" {
		t.Errorf("verification = %v", v)
	}
}

func TestPrintQR(t *testing.T) {
	bm, err := qr.Encode("hello")
	if err != nil {
		t.Fatal(err)
	}
	out := captureOutput(func() { PrintQR(bm, "Scan me") })
	if !strings.Contains(out, "Scan me") || !strings.Contains(out, "█") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPrintClaimRequest(t *testing.T) {
	doc := &claimreq.Document{Claims: []string{"@org=acme"}, Message: "Show your org"}
	out := captureOutput(func() { PrintClaimRequest(doc, Options{}) })
	for _, want := range []string{"Message: Show your org", "@org=acme*", "any issuer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEntries(t *testing.T) {
	empty := captureOutput(func() { PrintEntries(nil, Options{}) })
	if !strings.Contains(empty, "No request entries") {
		t.Errorf("unexpected output: %s", empty)
	}

	entries := []claimreq.Entry{{ID: "id-1", Name: "employees", Description: "staff only", Claims: []string{"@org=acme", "group="}}}
	out := captureOutput(func() { PrintEntries(entries, Options{}) })
	for _, want := range []string{"employees", "id-1", "staff only", "claims: @org=acme, group="} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{float64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{nil, "null"},
		{[]any{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
