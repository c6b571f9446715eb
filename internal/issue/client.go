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

// Package issue sends token issuance requests to an a3s server and
// classifies the responses.
package issue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Result is a successful issuance. In cookie mode Token is empty and the
// server-set cookies are in Cookies.
type Result struct {
	Status  int
	Token   string
	Cookies []*http.Cookie
}

// Client talks to the issue endpoint of one a3s API. Every call sends
// exactly one request and is never retried.
type Client struct {
	apiBase      string
	http         *http.Client
	audience     []string
	cookieDomain string
}

// NewClient returns a Client for the API at apiBase.
func NewClient(apiBase string, opts ...Option) *Client {
	c := &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueLDAP authenticates username and password against an LDAP source.
func (c *Client) IssueLDAP(ctx context.Context, ns, name, username, password string, cookie bool, opts ...IssueOption) (*Result, error) {
	return c.issue(ctx, c.newRequest(Request{
		SourceType:      SourceLDAP,
		SourceNamespace: ns,
		SourceName:      name,
		InputLDAP:       &InputLDAP{Username: username, Password: password},
		Cookie:          cookie,
	}, opts))
}

// IssueMTLS authenticates with the client certificate of the transport.
func (c *Client) IssueMTLS(ctx context.Context, ns, name string, cookie bool, opts ...IssueOption) (*Result, error) {
	return c.issue(ctx, c.newRequest(Request{
		SourceType:      SourceMTLS,
		SourceNamespace: ns,
		SourceName:      name,
		Cookie:          cookie,
	}, opts))
}

// BeginOIDC starts an OIDC login and returns the identity provider URL the
// user must be sent to. The provider redirects back to returnURL with
// state and code parameters.
func (c *Client) BeginOIDC(ctx context.Context, ns, name, returnURL string) (string, error) {
	returnURL = strings.TrimSuffix(returnURL, "/")
	resp, _, err := c.post(ctx, &Request{
		SourceType:      SourceOIDC,
		SourceNamespace: ns,
		SourceName:      name,
		InputOIDC: &InputOIDC{
			RedirectURL:      returnURL,
			RedirectErrorURL: returnURL,
			NoAuthRedirect:   true,
		},
	})
	if err != nil {
		return "", err
	}

	var body Response
	if err := json.Unmarshal(resp, &body); err != nil {
		return "", fmt.Errorf("parsing OIDC response: %w", err)
	}
	if body.InputOIDC == nil || body.InputOIDC.AuthURL == "" {
		return "", fmt.Errorf("no authURL in OIDC response")
	}
	log.Printf("[Issue] OIDC auth URL: %s", body.InputOIDC.AuthURL)
	return body.InputOIDC.AuthURL, nil
}

// CompleteOIDC finishes an OIDC login with the callback parameters.
func (c *Client) CompleteOIDC(ctx context.Context, ns, name, state, code string, cookie bool, opts ...IssueOption) (*Result, error) {
	return c.issue(ctx, c.newRequest(Request{
		SourceType:      SourceOIDC,
		SourceNamespace: ns,
		SourceName:      name,
		InputOIDC:       &InputOIDC{State: state, Code: code},
		Cookie:          cookie,
	}, opts))
}

// IssueCloak exchanges tok for a token holding only the identity claims
// that start with one of the cloak prefixes.
func (c *Client) IssueCloak(ctx context.Context, tok string, cloak []string, cookie bool, opts ...IssueOption) (*Result, error) {
	req := c.newRequest(Request{
		SourceType: SourceA3S,
		InputA3S:   &InputA3S{Token: tok},
		Cookie:     cookie,
	}, opts)
	req.Cloak = cloak
	return c.issue(ctx, req)
}

func (c *Client) newRequest(base Request, opts []IssueOption) *Request {
	req := base
	req.Audience = c.audience
	if req.Cookie {
		req.CookieDomain = c.cookieDomain
	}
	for _, opt := range opts {
		opt(&req)
	}
	return &req
}

func (c *Client) issue(ctx context.Context, req *Request) (*Result, error) {
	body, resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Status: resp.StatusCode}
	if req.Cookie {
		result.Cookies = resp.Cookies()
		return result, nil
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing issue response: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("no token in issue response")
	}
	result.Token = out.Token
	return result, nil
}

func (c *Client) post(ctx context.Context, req *Request) ([]byte, *http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.apiBase + "/issue"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Printf("[Issue] POST %s sourceType=%s namespace=%q name=%q cookie=%t", url, req.SourceType, req.SourceNamespace, req.SourceName, req.Cookie)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("issue request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading issue response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[Issue] failed with HTTP %d", resp.StatusCode)
		return nil, nil, &FailedError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, resp, nil
}
