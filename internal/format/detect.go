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

package format

import (
	"encoding/json"
	"strings"
)

// PayloadKind classifies a string received over an out-of-band channel.
type PayloadKind string

const (
	KindClaimRequest PayloadKind = "claim-request"
	KindToken        PayloadKind = "token"
	KindUnknown      PayloadKind = "unknown"
)

// Detect classifies a QR or clipboard payload.
//
// JSON objects are tried first since a JSON document may contain dots and
// would otherwise look like a compact token. Only objects carrying a claims
// list are reported as claim requests; the full schema check belongs to the
// claimreq package.
func Detect(input string) PayloadKind {
	input = strings.TrimSpace(input)
	if input == "" {
		return KindUnknown
	}

	if strings.HasPrefix(input, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(input), &m); err != nil {
			return KindUnknown
		}
		if _, ok := m["claims"].([]any); ok {
			return KindClaimRequest
		}
		return KindUnknown
	}

	parts := strings.Split(input, ".")
	if len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "" {
		return KindToken
	}

	return KindUnknown
}
