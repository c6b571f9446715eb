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
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/a3s/internal/config"
	"github.com/PaloAltoNetworks/a3s/internal/output"
)

var (
	jsonOutput bool
	noColor    bool
	verbose    bool
	configDir  string
	apiURL     string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "a3s-login",
	Short: "Obtain, cloak, share and inspect a3s identity tokens",
	Long:  "A client for the a3s issue endpoint. Logs in through LDAP, MTLS or OIDC sources, restricts tokens to selected identity claims, answers claim requests shown as QR codes, and verifies scanned tokens against the issuer's published keys.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if !verbose {
			log.SetOutput(io.Discard)
		}

		loaded, err := config.Load(configDir)
		if err != nil {
			return err
		}
		if apiURL != "" {
			loaded.API = apiURL
		}
		cfg = loaded
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir(), "Directory holding config.yaml and saved state")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "a3s API URL (overrides config.yaml)")
}

func outputOptions() output.Options {
	return output.Options{
		JSON:    jsonOutput,
		Verbose: verbose,
	}
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		return err
	}
	return nil
}

func printf(format string, a ...any) {
	if !jsonOutput {
		fmt.Printf(format, a...)
	}
}
