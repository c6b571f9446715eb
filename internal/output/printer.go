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

// Package output renders tokens, verification results, QR codes and claim
// requests for the terminal, in color or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/PaloAltoNetworks/a3s/internal/claimreq"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// Options control how results are printed.
type Options struct {
	JSON    bool
	Verbose bool
}

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	valueColor   = color.New(color.FgWhite)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)

	// timeNow is the function used to get the current time. Override in tests.
	timeNow = time.Now
)

// relativeTime returns a human-readable relative duration string for t.
// Future times return "in X units", past times return "X units ago".
func relativeTime(t time.Time) string {
	d := t.Sub(timeNow())
	if d < 0 {
		return formatDuration(-d) + " ago"
	}
	return "in " + formatDuration(d)
}

func formatDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= 2*day:
		return fmt.Sprintf("%d days", int(d/day))
	case d >= day:
		return "1 day"
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= time.Hour:
		return "1 hour"
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "1 minute"
	}
}

// BuildTokenJSON returns the JSON-serializable map for a decoded token and,
// when res is not nil, its verification outcome.
func BuildTokenJSON(tok *token.Token, res *jwks.Result) map[string]any {
	out := map[string]any{
		"header":     tok.RawHeader,
		"payload":    tok.RawPayload,
		"identities": token.DisplayIdentities(tok.Claims.Identity),
	}
	if exp := tok.Claims.Expiry(); !exp.IsZero() {
		out["expiresAt"] = exp.UTC().Format(time.RFC3339)
	}
	if res != nil {
		v := map[string]any{"verified": res.Verified}
		if !res.Verified {
			v["reason"] = res.Reason
			if res.Err != nil {
				v["detail"] = res.Err.Error()
			}
		}
		out["verification"] = v
	}
	return out
}

// PrintToken prints a decoded token to the terminal.
func PrintToken(tok *token.Token, opts Options) {
	if opts.JSON {
		PrintJSON(BuildTokenJSON(tok, nil))
		return
	}

	headerColor.Println("a3s Identity Token")
	headerColor.Println(strings.Repeat("─", 50))

	printSection("Header")
	printMap(tok.RawHeader, 1)

	printSection("Token")
	if tok.Claims.Issuer != "" {
		printKV("Issuer", tok.Claims.Issuer, 1)
	}
	if len(tok.Claims.Audience) > 0 {
		printKV("Audience", strings.Join(tok.Claims.Audience, ", "), 1)
	}
	printExpiry(tok.Claims.Expiry())

	printSection(fmt.Sprintf("Identity (%d)", len(tok.Claims.Identity)))
	printIdentities(tok.Claims.Identity)

	if opts.Verbose && len(tok.Claims.Extra) > 0 {
		printSection("Other Claims")
		printMap(tok.Claims.Extra, 1)
	}
}

func printIdentities(claims []string) {
	for _, c := range claims {
		if token.IsSourceTag(c) {
			dimColor.Printf("  %s\n", c)
			continue
		}
		valueColor.Printf("  %s\n", c)
	}
}

func printExpiry(exp time.Time) {
	if exp.IsZero() {
		dimColor.Println("  no expiry")
		return
	}
	rel := dimColor.Sprintf(" (%s)", relativeTime(exp))
	if exp.Before(timeNow()) {
		warnColor.Printf("  ⚠ Expired: %s%s\n", exp.UTC().Format(time.RFC3339), rel)
		return
	}
	printKV("Expires", exp.UTC().Format(time.RFC3339)+rel, 1)
}

// PrintVerifyResult prints the outcome of a signature verification.
func PrintVerifyResult(tok *token.Token, res jwks.Result, opts Options) {
	if opts.JSON {
		PrintJSON(BuildTokenJSON(tok, &res))
		return
	}

	printSection("Signature Verification")
	if res.Verified {
		successColor.Println("  ✓ Signature valid")
	} else {
		errorColor.Printf("  ✗ Unverified: %s\n", res.Reason)
		if res.Err != nil && opts.Verbose {
			dimColor.Printf("    %v\n", res.Err)
		}
	}
	printKV("Algorithm", tok.Header.Alg, 1)
	if tok.Header.Kid != "" {
		printKV("Key ID", tok.Header.Kid, 1)
	}
}

// PrintQR prints a QR code with a caption.
func PrintQR(bm *qr.Bitmap, caption string) {
	fmt.Println()
	if caption != "" {
		headerColor.Println(caption)
	}
	fmt.Print(bm.Terminal())
}

// PrintClaimRequest prints a claim request document.
func PrintClaimRequest(doc *claimreq.Document, opts Options) {
	if opts.JSON {
		PrintJSON(doc)
		return
	}

	headerColor.Println("Claim Request")
	headerColor.Println(strings.Repeat("─", 50))
	if doc.Message != "" {
		printKV("Message", doc.Message, 1)
	}
	printSection("Requested Claims")
	for _, c := range doc.Claims {
		valueColor.Printf("  %s*\n", c)
	}
	printSection("Trusted Issuers")
	if len(doc.Issuers) == 0 {
		dimColor.Println("  any issuer")
	}
	for _, iss := range doc.Issuers {
		valueColor.Printf("  %s\n", iss)
	}
}

// PrintEntries lists saved claim request entries.
func PrintEntries(entries []claimreq.Entry, opts Options) {
	if opts.JSON {
		PrintJSON(entries)
		return
	}
	if len(entries) == 0 {
		dimColor.Println("No request entries.")
		return
	}
	for _, e := range entries {
		labelColor.Printf("%s", e.Name)
		dimColor.Printf("  %s\n", e.ID)
		if e.Description != "" {
			fmt.Printf("  %s\n", e.Description)
		}
		dimColor.Printf("  claims: %s\n", strings.Join(e.Claims, ", "))
	}
}

// PrintSelection prints the numbered claims offered for cloaking.
func PrintSelection(claims []string) {
	printSection("Select the claims to keep")
	for i, c := range claims {
		dimColor.Printf("  [%d] ", i+1)
		valueColor.Println(c)
	}
}

// PrintSuccess prints a confirmation line.
func PrintSuccess(msg string) {
	successColor.Printf("✓ %s\n", msg)
}

func printSection(title string) {
	fmt.Println()
	headerColor.Printf("┌ %s\n", title)
}

func printKV(key, value string, indent int) {
	prefix := strings.Repeat("  ", indent)
	labelColor.Printf("%s%s: ", prefix, key)
	valueColor.Println(value)
}

func printMap(m map[string]any, indent int) {
	prefix := strings.Repeat("  ", indent)
	for _, k := range sortedKeys(m) {
		labelColor.Printf("%s%s: ", prefix, k)
		fmt.Println(formatValue(m[k]))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case map[string]any:
		b, _ := json.MarshalIndent(val, "    ", "  ")
		return string(b)
	case []any:
		if isSimpleArray(val) {
			b, _ := json.Marshal(val)
			return string(b)
		}
		b, _ := json.MarshalIndent(val, "    ", "  ")
		return string(b)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func isSimpleArray(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		PrintError(fmt.Sprintf("encoding JSON: %v", err))
	}
}

// PrintError prints an error message to stderr.
func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorColor.Sprint("Error:"), msg)
}
