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

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// OptAudience sets the audience requested for every issued token.
func OptAudience(aud ...string) Option {
	return func(c *Client) { c.audience = aud }
}

// OptCookieDomain sets the domain of the session cookie in cookie mode.
func OptCookieDomain(domain string) Option {
	return func(c *Client) { c.cookieDomain = domain }
}

// OptHTTPClient replaces the HTTP client.
func OptHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// OptTLSConfig sets the TLS configuration, including the client
// certificate presented for MTLS sources.
func OptTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.http.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: cfg,
		}
	}
}

// OptTimeout sets the per-request timeout.
func OptTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// IssueOption tunes a single issue request.
type IssueOption func(*Request)

// OptCloak restricts the identity claims of the issued token to those
// starting with one of prefixes.
func OptCloak(prefixes ...string) IssueOption {
	return func(r *Request) { r.Cloak = prefixes }
}

// OptValidity requests a token lifetime, as a duration string ("1h").
func OptValidity(v time.Duration) IssueOption {
	return func(r *Request) {
		if v > 0 {
			r.Validity = v.String()
		}
	}
}

// OptOpaque attaches opaque data to the issued token.
func OptOpaque(opaque map[string]string) IssueOption {
	return func(r *Request) { r.Opaque = opaque }
}

// OptRestrictNamespace restricts the token to a namespace.
func OptRestrictNamespace(ns string) IssueOption {
	return func(r *Request) { r.RestrictedNamespace = ns }
}

// OptRestrictNetworks restricts the token to the given CIDRs.
func OptRestrictNetworks(networks ...string) IssueOption {
	return func(r *Request) { r.RestrictedNetworks = networks }
}

// OptRestrictPermissions restricts the token to the given permissions.
func OptRestrictPermissions(perms ...string) IssueOption {
	return func(r *Request) { r.RestrictedPermissions = perms }
}
