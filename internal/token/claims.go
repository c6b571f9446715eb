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

package token

import "strings"

// SourceTagPrefix marks identity claims the issuer adds to describe the
// authentication source. They are never offered for selection and survive cloaking.
const SourceTagPrefix = "@source"

// IsSourceTag reports whether claim describes the authentication source.
func IsSourceTag(claim string) bool {
	return strings.HasPrefix(claim, SourceTagPrefix)
}

// HasPrefix reports whether claim starts with one of prefixes.
func HasPrefix(claim string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(claim, p) {
			return true
		}
	}
	return false
}

// DisplayIdentities returns the claims a holder may pick from: duplicates and
// source tags removed, first-seen order kept.
func DisplayIdentities(claims []string) []string {
	seen := make(map[string]bool, len(claims))
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		if seen[c] || IsSourceTag(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Cloak keeps the claims starting with one of the allowed prefixes. Source
// tags are kept as the issuer re-adds them to every token it signs.
func Cloak(claims, allow []string) []string {
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		if IsSourceTag(c) || HasPrefix(c, allow) {
			out = append(out, c)
		}
	}
	return out
}

// CheckCloaked returns the claims of a cloaked token that fall outside the
// allowlist. An empty result means the token honours the allowlist.
func CheckCloaked(claims, allow []string) []string {
	var extra []string
	for _, c := range claims {
		if IsSourceTag(c) || HasPrefix(c, allow) {
			continue
		}
		extra = append(extra, c)
	}
	return extra
}

// Intersect returns the claims of selected that start with one of the requested prefixes.
func Intersect(selected, requested []string) []string {
	var out []string
	for _, c := range selected {
		if HasPrefix(c, requested) {
			out = append(out, c)
		}
	}
	return out
}
