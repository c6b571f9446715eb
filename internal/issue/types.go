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

package issue

import "fmt"

// SourceType selects the identity source an issue request authenticates against.
type SourceType string

const (
	SourceLDAP SourceType = "LDAP"
	SourceMTLS SourceType = "MTLS"
	SourceOIDC SourceType = "OIDC"
	// SourceA3S exchanges an existing a3s token, used for cloaking.
	SourceA3S SourceType = "A3S"
)

// Request is the body of POST /issue.
type Request struct {
	SourceType      SourceType `json:"sourceType"`
	SourceNamespace string     `json:"sourceNamespace,omitempty"`
	SourceName      string     `json:"sourceName,omitempty"`

	InputLDAP *InputLDAP `json:"inputLDAP,omitempty"`
	InputOIDC *InputOIDC `json:"inputOIDC,omitempty"`
	InputA3S  *InputA3S  `json:"inputA3S,omitempty"`

	Cookie       bool     `json:"cookie,omitempty"`
	CookieDomain string   `json:"cookieDomain,omitempty"`
	Audience     []string `json:"audience,omitempty"`
	Cloak        []string `json:"cloak,omitempty"`

	Validity              string            `json:"validity,omitempty"`
	Opaque                map[string]string `json:"opaque,omitempty"`
	RestrictedNamespace   string            `json:"restrictedNamespace,omitempty"`
	RestrictedNetworks    []string          `json:"restrictedNetworks,omitempty"`
	RestrictedPermissions []string          `json:"restrictedPermissions,omitempty"`
}

// InputLDAP carries LDAP bind credentials.
type InputLDAP struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// InputOIDC carries either the redirect parameters of the first OIDC
// phase or the callback parameters of the second.
type InputOIDC struct {
	RedirectURL      string `json:"redirectURL,omitempty"`
	RedirectErrorURL string `json:"redirectErrorURL,omitempty"`
	NoAuthRedirect   bool   `json:"noAuthRedirect,omitempty"`
	State            string `json:"state,omitempty"`
	Code             string `json:"code,omitempty"`
	AuthURL          string `json:"authURL,omitempty"`
}

// InputA3S carries the token being exchanged.
type InputA3S struct {
	Token string `json:"token"`
}

// Response is the body the issue endpoint returns in token mode and in the
// first OIDC phase.
type Response struct {
	Token     string     `json:"token,omitempty"`
	InputOIDC *InputOIDC `json:"inputOIDC,omitempty"`
}

// FailedError reports a non-2xx answer from the issue endpoint.
type FailedError struct {
	Status int
	Body   string
}

func (e *FailedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("issuance failed (%d)", e.Status)
	}
	return fmt.Sprintf("issuance failed (%d): %s", e.Status, e.Body)
}
