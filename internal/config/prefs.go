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

package config

import (
	"github.com/PaloAltoNetworks/a3s/internal/continuation"
)

// Preference keys.
const (
	PrefSourceType      = "sourceType"
	PrefSourceNamespace = "sourceNamespace"
	PrefSourceName      = "sourceName"
)

// Prefs remembers the last used source so it does not have to be typed
// again.
type Prefs struct {
	store continuation.Store
}

// NewPrefs returns preferences held in store.
func NewPrefs(store continuation.Store) *Prefs {
	return &Prefs{store: store}
}

// Get returns the value of key, or def when unset or unreadable.
func (p *Prefs) Get(key, def string) string {
	v, ok, err := p.store.Get(key)
	if err != nil || !ok || v == "" {
		return def
	}
	return v
}

// Remember stores the source of a login. Empty values are skipped.
func (p *Prefs) Remember(sourceType, ns, name string) error {
	for k, v := range map[string]string{
		PrefSourceType:      sourceType,
		PrefSourceNamespace: ns,
		PrefSourceName:      name,
	} {
		if v == "" {
			continue
		}
		if err := p.store.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}
