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
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/PaloAltoNetworks/a3s/internal/format"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

// TokenConfig holds options for generating a signed identity token.
type TokenConfig struct {
	Issuer    string
	Audience  []string
	Identity  []string
	ExpiresIn time.Duration
	Key       *ecdsa.PrivateKey
	// KeyID overrides the kid header; KeyID(&Key.PublicKey) is used when empty.
	KeyID  string
	Claims map[string]any
	Now    func() time.Time
}

// SignToken creates an ES256 compact token carrying identity claims.
func SignToken(cfg TokenConfig) (string, error) {
	if cfg.Key == nil {
		return "", fmt.Errorf("signing key is required")
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	kid := cfg.KeyID
	if kid == "" {
		kid = KeyID(&cfg.Key.PublicKey)
	}

	payload := map[string]any{}
	for k, v := range cfg.Claims {
		payload[k] = v
	}
	payload["iss"] = cfg.Issuer
	payload["iat"] = now().Unix()
	if cfg.ExpiresIn != 0 {
		payload["exp"] = now().Add(cfg.ExpiresIn).Unix()
	}
	if len(cfg.Audience) > 0 {
		payload["aud"] = cfg.Audience
	}
	identity := cfg.Identity
	if identity == nil {
		identity = []string{}
	}
	payload["identity"] = identity

	header := map[string]any{
		"alg": "ES256",
		"typ": "JWT",
		"kid": kid,
	}

	unsigned, err := token.Encode(header, payload, []byte{0})
	if err != nil {
		return "", err
	}
	input, err := token.SigningInput(unsigned)
	if err != nil {
		return "", err
	}

	sig, err := jwt.SigningMethodES256.Sign(string(input), cfg.Key)
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}

	return string(input) + "." + format.EncodeBase64URL(sig), nil
}
