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
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/a3s/internal/claimreq"
	"github.com/PaloAltoNetworks/a3s/internal/flow"
	"github.com/PaloAltoNetworks/a3s/internal/format"
	"github.com/PaloAltoNetworks/a3s/internal/output"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

var (
	requestName        string
	requestDescription string
	requestClaims      []string
	requestIssuers     []string
	requestMessage     string
	requestPNG         string

	respondToken   string
	respondRequest string
	respondImage   string
	respondScreen  bool
	respondKeep    []string
	respondTimeout time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create, show and answer claim requests",
	Long:  "A claim request is a QR code asking the holder of a token for the identity claims starting with given prefixes. Saved requests can be shown again by name.",
}

var requestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Save a claim request and show it as a QR code",
	RunE:  runRequestCreate,
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved claim requests",
	Args:  cobra.NoArgs,
	RunE:  runRequestList,
}

var requestShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show a saved claim request as a QR code",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestShow,
}

var requestDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a saved claim request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestDelete,
}

var requestRespondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Answer a claim request with a cloaked token",
	Long:  "Reads a claim request from --request, a QR code image or the screen, and issues a token restricted to the claims of --token that the request asks for. The answer is shown as a QR code.",
	Args:  cobra.NoArgs,
	RunE:  runRequestRespond,
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestCreateCmd, requestListCmd, requestShowCmd, requestDeleteCmd, requestRespondCmd)

	requestCreateCmd.Flags().StringVar(&requestName, "name", "", "Name of the request")
	requestCreateCmd.Flags().StringVar(&requestDescription, "description", "", "Description shown in the list")
	requestCreateCmd.Flags().StringSliceVar(&requestClaims, "claim", nil, "Requested claim prefix (repeatable)")
	requestCreateCmd.Flags().StringSliceVar(&requestIssuers, "issuer", nil, "Trusted issuer (repeatable, any when omitted)")
	requestCreateCmd.Flags().StringVar(&requestMessage, "message", "", "Message shown to the holder")
	requestCreateCmd.Flags().StringVar(&requestPNG, "png", "", "Also write the QR code to this PNG file")
	requestShowCmd.Flags().StringVar(&requestPNG, "png", "", "Also write the QR code to this PNG file")

	f := requestRespondCmd.Flags()
	f.StringVar(&respondToken, "token", "", "Token to answer with (raw, file, URL or - for stdin)")
	f.StringVar(&respondRequest, "request", "", "Claim request document (raw JSON or file)")
	f.StringVar(&respondImage, "qr", "", "Scan the claim request from a QR code image")
	f.BoolVar(&respondScreen, "screen", false, "Scan the screen for a claim request (macOS)")
	f.StringSliceVar(&respondKeep, "keep", nil, "Claim prefixes to share, instead of prompting")
	f.DurationVar(&respondTimeout, "timeout", 2*time.Minute, "How long to scan for a claim request")
	_ = requestRespondCmd.MarkFlagRequired("token")
}

func entries() *claimreq.Entries {
	return claimreq.NewEntries(stateStore())
}

func runRequestCreate(cmd *cobra.Command, args []string) error {
	e, err := entries().Save(claimreq.Entry{
		Name:        requestName,
		Description: requestDescription,
		Claims:      requestClaims,
		Issuers:     requestIssuers,
		Message:     requestMessage,
	})
	if err != nil {
		return err
	}
	if !jsonOutput {
		output.PrintSuccess(fmt.Sprintf("Saved request %q (%s)", e.Name, e.ID))
	}
	return showDocument(e.Document())
}

func runRequestList(cmd *cobra.Command, args []string) error {
	list, err := entries().List()
	if err != nil {
		return err
	}
	output.PrintEntries(list, outputOptions())
	return nil
}

func runRequestShow(cmd *cobra.Command, args []string) error {
	e, err := entries().Get(args[0])
	if err != nil {
		return err
	}
	return showDocument(e.Document())
}

func runRequestDelete(cmd *cobra.Command, args []string) error {
	if err := entries().Delete(args[0]); err != nil {
		return err
	}
	if !jsonOutput {
		output.PrintSuccess("Deleted " + args[0])
	}
	return nil
}

func showDocument(doc *claimreq.Document) error {
	payload, err := doc.Encode()
	if err != nil {
		return err
	}
	if jsonOutput {
		output.PrintJSON(doc)
		return nil
	}

	bm, err := qr.Encode(payload)
	if err != nil {
		return fmt.Errorf("rendering QR code: %w", err)
	}
	output.PrintClaimRequest(doc, outputOptions())
	output.PrintQR(bm, "Scan to answer this request")

	if requestPNG != "" {
		f, err := os.Create(requestPNG)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := bm.WritePNG(f, 8); err != nil {
			return fmt.Errorf("writing %s: %w", requestPNG, err)
		}
	}
	return nil
}

func runRequestRespond(cmd *cobra.Command, args []string) error {
	raw, err := format.ReadInput(respondToken)
	if err != nil {
		return err
	}
	held, err := token.Decode(raw)
	if err != nil {
		return err
	}
	client, err := newIssueClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	received := make(chan struct{}, 1)
	o := newFlow(client, nil, nil, flow.Options{
		OnChange: func(st flow.State) {
			switch s := st.(type) {
			case flow.ClaimRequestReceived:
				select {
				case received <- struct{}{}:
				default:
				}
			case flow.ClaimRequestScan:
				if s.Err != "" {
					log.Printf("[QR] %s", s.Err)
				}
			}
		},
	})
	defer o.Close()

	if err := awaitRequest(ctx, o, received); err != nil {
		return err
	}
	rec, ok := o.State().(flow.ClaimRequestReceived)
	if !ok {
		return fmt.Errorf("no claim request received")
	}
	if err := render(rec, false); err != nil {
		return err
	}

	var offered []string
	for _, c := range token.DisplayIdentities(held.Claims.Identity) {
		if token.HasPrefix(c, rec.Document.Claims) {
			offered = append(offered, c)
		}
	}
	if len(offered) == 0 {
		return fmt.Errorf("the token carries none of the requested claims")
	}
	selected, err := chooseClaims(offered, respondKeep)
	if err != nil {
		return err
	}

	st, err := o.RespondToRequest(ctx, raw, selected)
	if err != nil {
		return err
	}
	return render(st, true)
}

// awaitRequest moves the flow to ClaimRequestReceived, either from the
// --request document or by scanning frames until one decodes.
func awaitRequest(ctx context.Context, o *flow.Orchestrator, received <-chan struct{}) error {
	var src qr.FrameSource
	switch {
	case respondImage != "":
		src = &qr.FileSource{Path: respondImage}
	case respondScreen:
		s, err := qr.NewScreenSource()
		if err != nil {
			return err
		}
		src = s
	}

	if _, err := o.StartRequestScan(ctx, src); err != nil {
		return err
	}

	if src == nil {
		payload, err := format.ReadInput(respondRequest)
		if err != nil {
			return err
		}
		if o.RequestScanned(payload) {
			return fmt.Errorf("%s", o.State().Failure())
		}
		return nil
	}

	printf("Scanning for a claim request...\n")
	ctx, cancel := context.WithTimeout(ctx, respondTimeout)
	defer cancel()
	select {
	case <-received:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no claim request found: %w", ctx.Err())
	}
}
