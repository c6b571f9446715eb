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

// Package claimreq handles claim request documents: what a verifier shows as
// a QR code to ask a holder for claims matching some prefixes.
package claimreq

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is written into the meta block of every generated document.
const Version = "0.0.0"

// Meta describes the document schema.
type Meta struct {
	Version string `json:"version"`
}

// Document asks for claims starting with one of Claims, issued by one of
// Issuers.
type Document struct {
	Meta    Meta     `json:"meta"`
	Claims  []string `json:"claims"`
	Issuers []string `json:"issuers,omitempty"`
	Message string   `json:"message,omitempty"`
}

// ScanParseError reports a scanned payload that is not a usable claim
// request. Scanning continues after it.
type ScanParseError struct {
	Reason string
	Err    error
}

func (e *ScanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid claim request: %s: %v", e.Reason, e.Err)
	}
	return "invalid claim request: " + e.Reason
}

func (e *ScanParseError) Unwrap() error { return e.Err }

// Parse decodes payload as JSON and checks it carries at least one claim
// prefix and a schema version.
func Parse(payload string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &doc); err != nil {
		return nil, &ScanParseError{Reason: "not JSON", Err: err}
	}
	if doc.Meta.Version == "" {
		return nil, &ScanParseError{Reason: "missing meta.version"}
	}
	if len(doc.Claims) == 0 {
		return nil, &ScanParseError{Reason: "no claims requested"}
	}
	for _, c := range doc.Claims {
		if c == "" {
			return nil, &ScanParseError{Reason: "empty claim prefix"}
		}
	}
	return &doc, nil
}

// Encode returns the compact JSON form carried in the QR code.
func (d *Document) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshaling claim request: %w", err)
	}
	return string(data), nil
}

// AcceptsIssuer reports whether tokens from iss satisfy the document. A
// document without issuers accepts any issuer.
func (d *Document) AcceptsIssuer(iss string) bool {
	if len(d.Issuers) == 0 {
		return true
	}
	iss = strings.TrimRight(iss, "/")
	for _, want := range d.Issuers {
		if strings.TrimRight(want, "/") == iss {
			return true
		}
	}
	return false
}
