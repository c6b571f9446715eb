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

package claimreq

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/PaloAltoNetworks/a3s/internal/continuation"
)

// EntriesKey is the store key of the saved request entries.
const EntriesKey = "requestEntries"

// ErrEntryNotFound is returned for an unknown entry id or name.
var ErrEntryNotFound = errors.New("request entry not found")

// Entry is a named claim request a verifier keeps around to show again.
type Entry struct {
	ID          string   `json:"ID"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Claims      []string `json:"claims"`
	Issuers     []string `json:"issuers,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// Document returns the claim request shown for the entry.
func (e *Entry) Document() *Document {
	return &Document{
		Meta:    Meta{Version: Version},
		Claims:  e.Claims,
		Issuers: e.Issuers,
		Message: e.Message,
	}
}

// Entries keeps request entries, in insertion order, in a Store.
type Entries struct {
	store continuation.Store
}

// NewEntries returns the entries held in store.
func NewEntries(store continuation.Store) *Entries {
	return &Entries{store: store}
}

// List returns every entry.
func (s *Entries) List() ([]Entry, error) {
	raw, ok, err := s.store.Get(EntriesKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parsing request entries: %w", err)
	}
	return entries, nil
}

// Get returns the entry whose ID or name is ref.
func (s *Entries) Get(ref string) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if i := find(entries, ref); i >= 0 {
		return &entries[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, ref)
}

// Save adds e, assigning a new ID when it has none, or replaces the entry
// with the same ID.
func (s *Entries) Save(e Entry) (*Entry, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("request entry needs a name")
	}
	if len(e.Claims) == 0 {
		return nil, fmt.Errorf("request entry needs at least one claim prefix")
	}

	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
		entries = append(entries, e)
	} else if i := find(entries, e.ID); i >= 0 {
		entries[i] = e
	} else {
		entries = append(entries, e)
	}
	if err := s.write(entries); err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes the entry whose ID or name is ref.
func (s *Entries) Delete(ref string) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	i := find(entries, ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, ref)
	}
	return s.write(append(entries[:i], entries[i+1:]...))
}

func (s *Entries) write(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling request entries: %w", err)
	}
	return s.store.Set(EntriesKey, string(data))
}

func find(entries []Entry, ref string) int {
	for i, e := range entries {
		if e.ID == ref {
			return i
		}
	}
	for i, e := range entries {
		if e.Name == ref {
			return i
		}
	}
	return -1
}
