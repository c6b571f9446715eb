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
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeBase64URL decodes an unpadded base64url string. Characters of the
// standard alphabet and padding are rejected.
func DecodeBase64URL(s string) ([]byte, error) {
	if i := strings.IndexAny(s, "+/="); i >= 0 {
		return nil, fmt.Errorf("illegal base64url character %q at offset %d", s[i], i)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// EncodeBase64URL encodes bytes as base64url without padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
