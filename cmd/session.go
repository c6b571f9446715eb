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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/PaloAltoNetworks/a3s/internal/config"
	"github.com/PaloAltoNetworks/a3s/internal/continuation"
	"github.com/PaloAltoNetworks/a3s/internal/flow"
	"github.com/PaloAltoNetworks/a3s/internal/issue"
	"github.com/PaloAltoNetworks/a3s/internal/output"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

var errCancelled = errors.New("cancelled")

func newIssueClient() (*issue.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}

	var opts []issue.Option
	if tlsCfg != nil {
		opts = append(opts, issue.OptTLSConfig(tlsCfg))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, issue.OptTimeout(cfg.Timeout))
	}
	if len(cfg.Audience) > 0 {
		opts = append(opts, issue.OptAudience(cfg.Audience...))
	}
	if cfg.CookieDomain != "" {
		opts = append(opts, issue.OptCookieDomain(cfg.CookieDomain))
	}
	return issue.NewClient(cfg.API, opts...), nil
}

func stateStore() continuation.Store {
	return continuation.NewFileStore(config.StatePath(configDir))
}

func prefs() *config.Prefs {
	return config.NewPrefs(continuation.NewFileStore(config.PrefsPath(configDir)))
}

func newFlow(issuer flow.Issuer, verifier flow.TokenVerifier, nav flow.Navigator, opts flow.Options) *flow.Orchestrator {
	return flow.New(issuer, continuation.NewManager(stateStore()), verifier, nav, opts)
}

// browser opens URLs in the default browser unless disabled, in which case
// the orchestrator reports the URL to open by hand.
func browser(disabled bool) flow.Navigator {
	return flow.NavigatorFunc(func(url string) error {
		if disabled {
			return errors.New("browser disabled")
		}
		return continuation.OpenBrowser(url)
	})
}

// render prints a state and returns its failure as an error.
func render(st flow.State, showQR bool) error {
	switch s := st.(type) {
	case flow.TokenDisplay:
		if err := printIssuedToken(s.Token, showQR); err != nil {
			return err
		}
	case flow.AwaitingOIDCRedirect:
		printf("Continue the login in your browser:\n  %s\n", s.AuthURL)
		if f := s.Failure(); f != "" {
			output.PrintError(f)
		}
		return nil
	case flow.JWTInspect:
		if !jsonOutput {
			output.PrintToken(s.Token, outputOptions())
		}
		output.PrintVerifyResult(s.Token, s.Result, outputOptions())
	case flow.ClaimRequestReceived:
		output.PrintClaimRequest(s.Document, outputOptions())
	}
	if f := st.Failure(); f != "" {
		return errors.New(f)
	}
	return nil
}

func printIssuedToken(raw string, showQR bool) error {
	if jsonOutput {
		output.PrintJSON(map[string]string{"token": raw})
		return nil
	}
	fmt.Println(raw)
	if verbose {
		if tok, err := token.Decode(raw); err == nil {
			fmt.Println()
			output.PrintToken(tok, outputOptions())
		}
	}
	if showQR {
		bm, err := qr.Encode(raw)
		if err != nil {
			return fmt.Errorf("rendering QR code: %w", err)
		}
		output.PrintQR(bm, "Scan to share this token")
	}
	return nil
}

// chooseClaims returns the claims matching keep, or asks for a selection
// when keep is empty.
func chooseClaims(available, keep []string) ([]string, error) {
	if len(keep) > 0 {
		var out []string
		for _, c := range available {
			if token.HasPrefix(c, keep) {
				out = append(out, c)
			}
		}
		return out, nil
	}
	if len(available) == 0 {
		return nil, errors.New("no claims to select from")
	}

	output.PrintSelection(available)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "claims (e.g. 1,3-4 or all)> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil, errCancelled
		} else if err != nil {
			return nil, fmt.Errorf("readline error: %w", err)
		}
		selected, err := parseSelection(line, available)
		if err != nil {
			output.PrintError(err.Error())
			continue
		}
		return selected, nil
	}
}

// parseSelection turns "1,3-4" or "all" into the matching claims.
func parseSelection(input string, claims []string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("select at least one claim")
	}
	if strings.EqualFold(input, "all") {
		return append([]string(nil), claims...), nil
	}

	picked := make(map[int]bool)
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' })
	for _, f := range fields {
		lo, hi, isRange := strings.Cut(f, "-")
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", f)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid selection %q", f)
			}
		}
		if start < 1 || end > len(claims) || start > end {
			return nil, fmt.Errorf("selection %q out of range 1-%d", f, len(claims))
		}
		for i := start; i <= end; i++ {
			picked[i-1] = true
		}
	}

	var out []string
	for i, c := range claims {
		if picked[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

// promptLine reads one line, or a hidden one when secret is set.
func promptLine(prompt string, secret bool) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	if secret {
		b, err := rl.ReadPassword(prompt)
		if err != nil {
			return "", errCancelled
		}
		return string(b), nil
	}
	line, err := rl.Readline()
	if err != nil {
		return "", errCancelled
	}
	return strings.TrimSpace(line), nil
}
