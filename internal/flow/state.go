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

package flow

import (
	"github.com/PaloAltoNetworks/a3s/internal/claimreq"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// State is one of Idle, AwaitingOIDCRedirect, ClaimSelection,
// ClaimRequestScan, ClaimRequestReceived, TokenDisplay or JWTInspect.
// Every variant carries the message of the last failure that happened in it.
type State interface {
	// Name identifies the variant.
	Name() string
	// Failure returns the in-place failure message, or "".
	Failure() string

	withErr(msg string) State
}

// Idle is both the initial state and where closing any view leads.
type Idle struct {
	Err string
}

// AwaitingOIDCRedirect is entered once the user was sent to the identity
// provider. The process normally ends here and resumes through Resume.
type AwaitingOIDCRedirect struct {
	AuthURL string
	Err     string
}

// ClaimSelection offers the claims of a freshly issued token for cloaking.
// Cookie and RedirectURL belong to the login attempt that issued the token
// and decide how the cloaked token is delivered.
type ClaimSelection struct {
	PendingToken    string
	AvailableClaims []string
	Cookie          bool
	RedirectURL     string
	Err             string
}

// ClaimRequestScan waits for a claim request QR code.
type ClaimRequestScan struct {
	Err string
}

// ClaimRequestReceived holds a scanned claim request awaiting an answer.
type ClaimRequestReceived struct {
	Document *claimreq.Document
	Err      string
}

// TokenDisplay shows an issued token, typically as a QR code.
type TokenDisplay struct {
	Token string
	Err   string
}

// JWTInspect shows a scanned token next to its verification outcome,
// whatever that outcome is.
type JWTInspect struct {
	Token   *token.Token
	Header  map[string]any
	Payload map[string]any
	Result  jwks.Result
	Err     string
}

func (Idle) Name() string                 { return "Idle" }
func (AwaitingOIDCRedirect) Name() string { return "AwaitingOIDCRedirect" }
func (ClaimSelection) Name() string       { return "ClaimSelection" }
func (ClaimRequestScan) Name() string     { return "ClaimRequestScan" }
func (ClaimRequestReceived) Name() string { return "ClaimRequestReceived" }
func (TokenDisplay) Name() string         { return "TokenDisplay" }
func (JWTInspect) Name() string           { return "JWTInspect" }

func (s Idle) Failure() string                 { return s.Err }
func (s AwaitingOIDCRedirect) Failure() string { return s.Err }
func (s ClaimSelection) Failure() string       { return s.Err }
func (s ClaimRequestScan) Failure() string     { return s.Err }
func (s ClaimRequestReceived) Failure() string { return s.Err }
func (s TokenDisplay) Failure() string         { return s.Err }
func (s JWTInspect) Failure() string           { return s.Err }

func (s Idle) withErr(msg string) State                 { s.Err = msg; return s }
func (s AwaitingOIDCRedirect) withErr(msg string) State { s.Err = msg; return s }
func (s ClaimSelection) withErr(msg string) State       { s.Err = msg; return s }
func (s ClaimRequestScan) withErr(msg string) State     { s.Err = msg; return s }
func (s ClaimRequestReceived) withErr(msg string) State { s.Err = msg; return s }
func (s TokenDisplay) withErr(msg string) State         { s.Err = msg; return s }
func (s JWTInspect) withErr(msg string) State           { s.Err = msg; return s }

// Terminal reports whether s ends a login: only Close leaves it.
func Terminal(s State) bool {
	switch s.(type) {
	case TokenDisplay, JWTInspect:
		return true
	case Idle, AwaitingOIDCRedirect, ClaimSelection, ClaimRequestScan, ClaimRequestReceived:
		return false
	}
	return false
}
