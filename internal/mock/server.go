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

package mock

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// CookieName is the session cookie set in cookie mode.
const CookieName = "x-a3s-token"

// Server is a minimal a3s issuer: it serves POST /issue for every source
// type and publishes its key under /.well-known/jwks.json. Issuer must be
// set to the URL the server is reachable at.
type Server struct {
	Key      *ecdsa.PrivateKey
	Issuer   string
	Identity []string
	// Users maps LDAP usernames to passwords.
	Users map[string]string
	// AuthURL is returned by the first OIDC phase, with the state appended.
	AuthURL   string
	ExpiresIn time.Duration

	mu       sync.Mutex
	requests []map[string]any
}

// Requests returns the decoded bodies of every /issue request received.
func (s *Server) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.requests...)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/issue", s.handleIssue)
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(JWKS(&s.Key.PublicKey))
	})
	mux.HandleFunc("/authorize", s.handleAuthorize)
	return mux
}

// handleAuthorize stands in for the identity provider: it sends the user
// straight back with a code.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	back := redirect.Query()
	back.Set("state", q.Get("state"))
	back.Set("code", "mock-code")
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	sourceType, _ := req["sourceType"].(string)
	ns, _ := req["sourceNamespace"].(string)
	name, _ := req["sourceName"].(string)
	log.Printf("[Mock] issue request sourceType=%s namespace=%q name=%q", sourceType, ns, name)

	var identity []string
	switch sourceType {
	case "LDAP":
		in, _ := req["inputLDAP"].(map[string]any)
		user, _ := in["username"].(string)
		pass, _ := in["password"].(string)
		if want, ok := s.Users[user]; !ok || want != pass {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		identity = s.sourceIdentity("ldap", ns, name, "username="+user)

	case "MTLS":
		var extra []string
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			extra = append(extra, "commonname="+r.TLS.PeerCertificates[0].Subject.CommonName)
		}
		identity = s.sourceIdentity("mtls", ns, name, extra...)

	case "OIDC":
		in, _ := req["inputOIDC"].(map[string]any)
		if redirect, _ := in["redirectURL"].(string); redirect != "" {
			s.writeJSON(w, map[string]any{"inputOIDC": map[string]any{"authURL": s.authURL(redirect)}})
			return
		}
		state, _ := in["state"].(string)
		code, _ := in["code"].(string)
		if state == "" || code == "" {
			http.Error(w, "missing state or code", http.StatusBadRequest)
			return
		}
		identity = s.sourceIdentity("oidc", ns, name)

	case "A3S":
		in, _ := req["inputA3S"].(map[string]any)
		raw, _ := in["token"].(string)
		tok, err := s.verify(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		identity = tok.Claims.Identity

	default:
		http.Error(w, "unsupported source type", http.StatusBadRequest)
		return
	}

	if cloak := stringSlice(req["cloak"]); len(cloak) > 0 {
		identity = token.Cloak(identity, cloak)
	}

	expiresIn := s.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}
	signed, err := SignToken(TokenConfig{
		Issuer:    s.Issuer,
		Audience:  stringSlice(req["audience"]),
		Identity:  identity,
		ExpiresIn: expiresIn,
		Key:       s.Key,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if cookie, _ := req["cookie"].(bool); cookie {
		domain, _ := req["cookieDomain"].(string)
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    signed,
			Domain:   domain,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
		})
		w.WriteHeader(http.StatusOK)
		return
	}
	s.writeJSON(w, map[string]any{"token": signed})
}

func (s *Server) sourceIdentity(kind, ns, name string, extra ...string) []string {
	out := append([]string(nil), s.Identity...)
	out = append(out, extra...)
	return append(out,
		"@source:type="+kind,
		"@source:namespace="+ns,
		"@source:name="+name,
	)
}

func (s *Server) authURL(redirect string) string {
	base := s.AuthURL
	if base == "" {
		base = strings.TrimRight(s.Issuer, "/") + "/authorize"
	}
	q := url.Values{}
	q.Set("state", "mock-state")
	q.Set("redirect_uri", redirect)
	return base + "?" + q.Encode()
}

func (s *Server) verify(raw string) (*token.Token, error) {
	tok, err := token.Decode(raw)
	if err != nil {
		return nil, err
	}
	input, err := token.SigningInput(raw)
	if err != nil {
		return nil, err
	}
	sig, err := token.SignatureBytes(raw)
	if err != nil {
		return nil, err
	}
	if err := jwt.SigningMethodES256.Verify(string(input), sig, &s.Key.PublicKey); err != nil {
		return nil, fmt.Errorf("token signature: %w", err)
	}
	if exp := tok.Claims.Expiry(); !exp.IsZero() && exp.Before(time.Now()) {
		return nil, fmt.Errorf("token expired")
	}
	return tok, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
