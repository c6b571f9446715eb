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
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/a3s/internal/config"
	"github.com/PaloAltoNetworks/a3s/internal/continuation"
	"github.com/PaloAltoNetworks/a3s/internal/flow"
	"github.com/PaloAltoNetworks/a3s/internal/issue"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/output"
)

const oidcTimeout = 5 * time.Minute

var (
	loginNamespace    string
	loginName         string
	loginCloak        bool
	loginKeep         []string
	loginCookie       bool
	loginRedirect     string
	loginValidity     time.Duration
	loginRestrictNS   string
	loginRestrictNets []string
	loginRestrictPerm []string
	loginQR           bool
	loginNoBrowser    bool
	loginUsername     string
	loginPassword     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an identity token from an authentication source",
	Long:  "Authenticate against an a3s source and print the issued token. With --cloak the claims of the token are offered for selection first, and a second token carrying only the selected claims is issued.",
}

var loginLDAPCmd = &cobra.Command{
	Use:   "ldap",
	Short: "Log in with LDAP credentials",
	RunE:  runLoginLDAP,
}

var loginMTLSCmd = &cobra.Command{
	Use:   "mtls",
	Short: "Log in with the configured client certificate",
	RunE:  runLoginMTLS,
}

var loginOIDCCmd = &cobra.Command{
	Use:   "oidc",
	Short: "Log in through an OIDC identity provider",
	Long:  "Sends you to the identity provider in the browser and waits for it to redirect back to a local callback server. If this process does not survive the redirect, finish the login with 'login resume'.",
	RunE:  runLoginOIDC,
}

var loginResumeCmd = &cobra.Command{
	Use:   "resume <callback-url>",
	Short: "Finish a pending OIDC login from the provider callback URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoginResume,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.AddCommand(loginLDAPCmd, loginMTLSCmd, loginOIDCCmd, loginResumeCmd)

	pf := loginCmd.PersistentFlags()
	pf.StringVar(&loginNamespace, "namespace", "", "Namespace of the source (defaults to the last one used)")
	pf.StringVar(&loginName, "source", "", "Name of the source (defaults to the last one used)")
	pf.BoolVar(&loginCloak, "cloak", false, "Select the identity claims to keep before the final token is issued")
	pf.StringSliceVar(&loginKeep, "keep", nil, "Claim prefixes to keep when cloaking, instead of prompting")
	pf.BoolVar(&loginCookie, "cookie", false, "Ask for a session cookie instead of a token")
	pf.StringVar(&loginRedirect, "redirect", "", "URL opened after a cookie login")
	pf.DurationVar(&loginValidity, "validity", 0, "Requested token validity (e.g. 1h)")
	pf.StringVar(&loginRestrictNS, "restrict-namespace", "", "Restrict the token to a namespace")
	pf.StringSliceVar(&loginRestrictNets, "restrict-network", nil, "Restrict the token to networks (CIDR)")
	pf.StringSliceVar(&loginRestrictPerm, "restrict-permission", nil, "Restrict the token to permissions")
	pf.BoolVar(&loginQR, "qr", false, "Show the issued token as a QR code")

	loginLDAPCmd.Flags().StringVar(&loginUsername, "username", "", "LDAP username (prompted when omitted)")
	loginLDAPCmd.Flags().StringVar(&loginPassword, "password", "", "LDAP password (prompted when omitted)")
	loginOIDCCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the provider URL instead of opening a browser")
}

func loginOptions() flow.Options {
	validity := cfg.Validity
	if loginValidity > 0 {
		validity = loginValidity
	}
	redirect := cfg.RedirectURL
	if loginRedirect != "" {
		redirect = loginRedirect
	}

	opts := []issue.IssueOption{issue.OptValidity(validity)}
	if loginRestrictNS != "" {
		opts = append(opts, issue.OptRestrictNamespace(loginRestrictNS))
	}
	if len(loginRestrictNets) > 0 {
		opts = append(opts, issue.OptRestrictNetworks(loginRestrictNets...))
	}
	if len(loginRestrictPerm) > 0 {
		opts = append(opts, issue.OptRestrictPermissions(loginRestrictPerm...))
	}

	return flow.Options{
		Cloak:        loginCloak || cfg.Cloak || len(loginKeep) > 0,
		Cookie:       loginCookie || cfg.Cookie,
		RedirectURL:  redirect,
		IssueOptions: opts,
	}
}

// source returns the namespace and name to log in with, falling back to the
// remembered ones.
func source(sourceType string) (string, string, error) {
	p := prefs()
	ns := loginNamespace
	if ns == "" {
		ns = p.Get(config.PrefSourceNamespace, "/")
	}
	name := loginName
	if name == "" && p.Get(config.PrefSourceType, "") == sourceType {
		name = p.Get(config.PrefSourceName, "")
	}
	if name == "" {
		return "", "", fmt.Errorf("--source is required")
	}
	return ns, name, nil
}

func loginFlow(nav flow.Navigator, returnURL string) (*flow.Orchestrator, flow.Options, error) {
	client, err := newIssueClient()
	if err != nil {
		return nil, flow.Options{}, err
	}
	opts := loginOptions()
	opts.ReturnURL = returnURL
	return newFlow(client, jwks.NewVerifier(nil), nav, opts), opts, nil
}

// finish drives the claim selection, if any, and prints the outcome. cookie
// is the delivery mode of the login attempt.
func finish(ctx context.Context, o *flow.Orchestrator, cookie bool, st flow.State, sourceType, ns, name string) error {
	for {
		sel, ok := st.(flow.ClaimSelection)
		if !ok {
			break
		}
		if f := sel.Failure(); f != "" {
			output.PrintError(f)
			if len(loginKeep) > 0 {
				o.Close()
				return fmt.Errorf("cloaking failed: %s", f)
			}
		}
		selected, err := chooseClaims(sel.AvailableClaims, loginKeep)
		if err != nil {
			o.Close()
			return err
		}
		if st, err = o.ConfirmClaims(ctx, selected); err != nil {
			return err
		}
	}

	if err := render(st, loginQR); err != nil {
		return err
	}

	switch st.(type) {
	case flow.TokenDisplay:
	case flow.Idle:
		if !cookie {
			return nil
		}
		if !jsonOutput {
			output.PrintSuccess("Session cookie set")
		}
	default:
		return nil
	}
	if sourceType != "" {
		if err := prefs().Remember(sourceType, ns, name); err != nil {
			output.PrintError(fmt.Sprintf("saving preferences: %v", err))
		}
	}
	return nil
}

func runLoginLDAP(cmd *cobra.Command, args []string) error {
	ns, name, err := source(string(issue.SourceLDAP))
	if err != nil {
		return err
	}
	username := loginUsername
	if username == "" {
		if username, err = promptLine("Username: ", false); err != nil {
			return err
		}
	}
	password := loginPassword
	if password == "" {
		if password, err = promptLine("Password: ", true); err != nil {
			return err
		}
	}

	o, opts, err := loginFlow(browser(false), "")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := o.SubmitLDAP(ctx, ns, name, username, password)
	if err != nil {
		return err
	}
	return finish(ctx, o, opts.Cookie, st, string(issue.SourceLDAP), ns, name)
}

func runLoginMTLS(cmd *cobra.Command, args []string) error {
	ns, name, err := source(string(issue.SourceMTLS))
	if err != nil {
		return err
	}
	if cfg.Cert == "" {
		return fmt.Errorf("an MTLS login needs cert and key in %s", configDir)
	}

	o, opts, err := loginFlow(browser(false), "")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := o.SubmitMTLS(ctx, ns, name)
	if err != nil {
		return err
	}
	return finish(ctx, o, opts.Cookie, st, string(issue.SourceMTLS), ns, name)
}

func runLoginOIDC(cmd *cobra.Command, args []string) error {
	ns, name, err := source(string(issue.SourceOIDC))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, oidcTimeout)
	defer cancel()

	srv := continuation.NewCallbackServer(cfg.CallbackAddr)
	returnURL, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	defer srv.Stop()

	o, opts, err := loginFlow(browser(loginNoBrowser), returnURL)
	if err != nil {
		return err
	}
	st, err := o.SubmitOIDC(ctx, ns, name)
	if err != nil {
		return err
	}
	if err := render(st, false); err != nil {
		return err
	}
	if _, ok := st.(flow.AwaitingOIDCRedirect); !ok {
		return nil
	}

	cb, err := srv.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for the identity provider: %w", err)
	}
	st, err = o.Resume(ctx, cb.Params())
	if err != nil {
		return err
	}
	return finish(ctx, o, opts.Cookie, st, string(issue.SourceOIDC), ns, name)
}

func runLoginResume(cmd *cobra.Command, args []string) error {
	cb, err := continuation.ParseCallbackURL(args[0])
	if err != nil {
		return err
	}
	pending, err := continuation.NewManager(stateStore()).Peek()
	if err != nil {
		return err
	}
	if pending == nil {
		return fmt.Errorf("no pending OIDC login")
	}

	o, _, err := loginFlow(browser(false), "")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := o.Resume(ctx, cb.Params())
	if err != nil {
		return err
	}
	return finish(ctx, o, pending.Cookie, st, string(issue.SourceOIDC), pending.SourceNamespace, pending.SourceName)
}
