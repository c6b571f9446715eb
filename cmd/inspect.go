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

package cmd

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/a3s/internal/flow"
	"github.com/PaloAltoNetworks/a3s/internal/format"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/keys"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

var (
	inspectKeyPath string
	inspectQRImage string
	inspectScreen  bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Decode a token and verify its signature",
	Long:  "Decodes an identity token and verifies it against the keys its issuer publishes under /.well-known/jwks.json, or against a pinned key with --key. Input can be a token, a file path, a URL, piped via stdin, or read from a QR code image or the screen.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectKeyPath, "key", "", "Verify against this public key (PEM, JWK or JWKS) instead of fetching the issuer keys")
	inspectCmd.Flags().StringVar(&inspectQRImage, "qr", "", "Read the token from a QR code image")
	inspectCmd.Flags().BoolVar(&inspectScreen, "screen", false, "Read the token from a QR code on screen (macOS)")
}

// pinnedKey verifies every token against one known key.
type pinnedKey struct {
	key crypto.PublicKey
}

func (p pinnedKey) Verify(_ context.Context, tok *token.Token, now time.Time) jwks.Result {
	return jwks.VerifyWithKey(tok, p.key, now)
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := scannedInput(args, inspectQRImage, inspectScreen)
	if err != nil {
		return err
	}

	var verifier flow.TokenVerifier = jwks.NewVerifier(nil)
	if inspectKeyPath != "" {
		kid := ""
		if tok, err := token.Decode(raw); err == nil {
			kid = tok.Header.Kid
		}
		pub, err := keys.LoadPublicKey(inspectKeyPath, kid)
		if err != nil {
			return fmt.Errorf("loading key: %w", err)
		}
		verifier = pinnedKey{key: pub}
	}

	o := newFlow(nil, verifier, nil, flow.Options{})
	st, err := o.ScanToken(cmd.Context(), raw)
	if err != nil {
		return err
	}
	if err := render(st, false); err != nil {
		return err
	}
	if s, ok := st.(flow.JWTInspect); ok && !s.Result.Verified {
		return fmt.Errorf("token not verified: %s", s.Result.Reason)
	}
	return nil
}

// scannedInput reads a payload from a QR image, the screen, or the
// argument / stdin.
func scannedInput(args []string, image string, screen bool) (string, error) {
	switch {
	case image != "":
		return qr.ScanFile(image)
	case screen:
		return qr.ScanScreen()
	}
	input := ""
	if len(args) > 0 {
		input = args[0]
	}
	return format.ReadInput(input)
}
