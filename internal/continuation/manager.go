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

// Package continuation carries a pending OIDC login across the trip to the
// identity provider and back.
package continuation

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"
)

// PendingKey is the store key of the pending OIDC context.
const PendingKey = "pendingOIDC"

// Pending is what must be remembered to complete an OIDC login once the
// provider redirects back.
type Pending struct {
	SourceNamespace string    `json:"sourceNamespace"`
	SourceName      string    `json:"sourceName"`
	Cookie          bool      `json:"cookie"`
	RedirectURL     string    `json:"redirectURL,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Manager persists and resumes the pending context. Only one OIDC attempt
// is pending at a time: starting another overwrites it.
type Manager struct {
	store Store
}

// NewManager returns a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// BeforeRedirect persists p. Call it before sending the user to the
// identity provider.
func (m *Manager) BeforeRedirect(p Pending) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pending context: %w", err)
	}
	if err := m.store.Set(PendingKey, string(data)); err != nil {
		return fmt.Errorf("saving pending context: %w", err)
	}
	log.Printf("[OIDC] pending login saved for %s/%s", p.SourceNamespace, p.SourceName)
	return nil
}

// TryResume returns the pending context when params carry both state and
// code, deleting it before returning whatever the outcome of the login.
// Without callback parameters, or once the context was consumed, it
// returns nil and leaves the store alone.
func (m *Manager) TryResume(params url.Values) (*Pending, error) {
	if params.Get("state") == "" || params.Get("code") == "" {
		return nil, nil
	}

	raw, ok, err := m.store.Get(PendingKey)
	if err != nil {
		return nil, fmt.Errorf("reading pending context: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if err := m.store.Delete(PendingKey); err != nil {
		return nil, fmt.Errorf("deleting pending context: %w", err)
	}

	var p Pending
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parsing pending context: %w", err)
	}
	log.Printf("[OIDC] resuming login for %s/%s", p.SourceNamespace, p.SourceName)
	return &p, nil
}

// Peek returns the pending context without consuming it.
func (m *Manager) Peek() (*Pending, error) {
	raw, ok, err := m.store.Get(PendingKey)
	if err != nil || !ok {
		return nil, err
	}
	var p Pending
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parsing pending context: %w", err)
	}
	return &p, nil
}
