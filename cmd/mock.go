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
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/a3s/internal/keys"
	"github.com/PaloAltoNetworks/a3s/internal/mock"
)

var (
	mockKeyPath  string
	mockIssuer   string
	mockAudience []string
	mockIdentity []string
	mockExpires  time.Duration
	mockAddr     string
	mockUsers    []string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Generate test tokens or run a local issuer",
}

var mockTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed test token and the matching key set",
	RunE:  runMockToken,
}

var mockServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /issue and /.well-known/jwks.json for local testing",
	Long:  "Runs a minimal issuer accepting LDAP, MTLS, OIDC and A3S sources. Its /authorize endpoint plays the identity provider and redirects straight back with a code.",
	RunE:  runMockServe,
}

func init() {
	rootCmd.AddCommand(mockCmd)
	mockCmd.AddCommand(mockTokenCmd, mockServeCmd)

	pf := mockCmd.PersistentFlags()
	pf.StringVar(&mockKeyPath, "key", "", "Private key file (PEM or JWK); ephemeral P-256 if omitted")
	pf.StringSliceVar(&mockIdentity, "identity", []string{"org=acme", "group=dev"}, "Identity claims")
	pf.DurationVar(&mockExpires, "exp", 24*time.Hour, "Token lifetime")

	mockTokenCmd.Flags().StringVar(&mockIssuer, "iss", "https://127.0.0.1:44443", "Issuer URL")
	mockTokenCmd.Flags().StringSliceVar(&mockAudience, "aud", nil, "Audience")

	mockServeCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:44480", "Listen address")
	mockServeCmd.Flags().StringSliceVar(&mockUsers, "user", []string{"alice:secret"}, "LDAP user as name:password (repeatable)")
}

func loadOrGenerateKey() (*ecdsa.PrivateKey, error) {
	if mockKeyPath != "" {
		return keys.LoadPrivateKey(mockKeyPath)
	}
	key, err := mock.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	return key, nil
}

func runMockToken(cmd *cobra.Command, args []string) error {
	key, err := loadOrGenerateKey()
	if err != nil {
		return err
	}
	raw, err := mock.SignToken(mock.TokenConfig{
		Issuer:    mockIssuer,
		Audience:  mockAudience,
		Identity:  mockIdentity,
		ExpiresIn: mockExpires,
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}

	set := mock.JWKS(&key.PublicKey)
	if jsonOutput {
		fmt.Printf("{\"token\": %q, \"jwks\": %s}\n", raw, set)
		return nil
	}
	fmt.Println(raw)
	fmt.Fprintln(os.Stderr, "Signing key set:")
	fmt.Fprintln(os.Stderr, string(set))
	return nil
}

func parseUsers(list []string) (map[string]string, error) {
	users := make(map[string]string, len(list))
	for _, u := range list {
		name, pass, ok := strings.Cut(u, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --user %q, want name:password", u)
		}
		users[name] = pass
	}
	return users, nil
}

func runMockServe(cmd *cobra.Command, args []string) error {
	key, err := loadOrGenerateKey()
	if err != nil {
		return err
	}
	users, err := parseUsers(mockUsers)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", mockAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", mockAddr, err)
	}
	base := "http://" + ln.Addr().String()

	issuer := &mock.Server{
		Key:       key,
		Issuer:    base,
		Identity:  mockIdentity,
		Users:     users,
		ExpiresIn: mockExpires,
	}
	srv := &http.Server{Handler: issuer.Handler(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	fmt.Printf("Mock issuer listening on %s (key id %s)\n", base, mock.KeyID(&key.PublicKey))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
