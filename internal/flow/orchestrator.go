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

// Package flow drives the login flow: identity source selection, issuance,
// cloaking, OIDC continuation and QR exchange of tokens and claim requests.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/PaloAltoNetworks/a3s/internal/claimreq"
	"github.com/PaloAltoNetworks/a3s/internal/continuation"
	"github.com/PaloAltoNetworks/a3s/internal/format"
	"github.com/PaloAltoNetworks/a3s/internal/issue"
	"github.com/PaloAltoNetworks/a3s/internal/jwks"
	"github.com/PaloAltoNetworks/a3s/internal/qr"
	"github.com/PaloAltoNetworks/a3s/internal/token"
)

var (
	// ErrBusy is returned when an issuance is already in flight.
	ErrBusy = errors.New("an issuance is already in progress")
	// ErrInvalidTransition is returned for an event the current state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Issuer is implemented by *issue.Client.
type Issuer interface {
	IssueLDAP(ctx context.Context, ns, name, username, password string, cookie bool, opts ...issue.IssueOption) (*issue.Result, error)
	IssueMTLS(ctx context.Context, ns, name string, cookie bool, opts ...issue.IssueOption) (*issue.Result, error)
	BeginOIDC(ctx context.Context, ns, name, returnURL string) (string, error)
	CompleteOIDC(ctx context.Context, ns, name, state, code string, cookie bool, opts ...issue.IssueOption) (*issue.Result, error)
	IssueCloak(ctx context.Context, tok string, cloak []string, cookie bool, opts ...issue.IssueOption) (*issue.Result, error)
}

// TokenVerifier is implemented by *jwks.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, tok *token.Token, now time.Time) jwks.Result
}

// Navigator sends the user somewhere else: the identity provider, or the
// post-login destination in cookie mode.
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// Options tune the flow.
type Options struct {
	// Cloak offers the claims of the issued token for selection before the
	// final token is issued.
	Cloak bool
	// Cookie asks the server to set a session cookie instead of returning
	// the token.
	Cookie bool
	// RedirectURL is where cookie mode navigates after a login.
	RedirectURL string
	// ReturnURL is where the identity provider sends the user back.
	ReturnURL string
	// IssueOptions are applied to every issue request.
	IssueOptions []issue.IssueOption
	// Scanner samples claim request frames; qr.NewScanner() when nil.
	Scanner *qr.Scanner
	// OnChange is called after every transition, outside the lock.
	OnChange func(State)
	Now      func() time.Time
}

// Orchestrator is the login state machine. Events are serialized; at most
// one issuance request is in flight at any time.
type Orchestrator struct {
	mu       sync.Mutex
	state    State
	inflight *semaphore.Weighted
	scan     *qr.Scan

	issuer   Issuer
	cont     *continuation.Manager
	verifier TokenVerifier
	nav      Navigator
	opts     Options
}

// New returns an Orchestrator in the Idle state.
func New(issuer Issuer, cont *continuation.Manager, verifier TokenVerifier, nav Navigator, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Scanner == nil {
		opts.Scanner = qr.NewScanner()
	}
	return &Orchestrator{
		state:    Idle{},
		inflight: semaphore.NewWeighted(1),
		issuer:   issuer,
		cont:     cont,
		verifier: verifier,
		nav:      nav,
		opts:     opts,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SubmitLDAP issues a token from an LDAP source.
func (o *Orchestrator) SubmitLDAP(ctx context.Context, ns, name, username, password string) (State, error) {
	return o.issuance(ctx, "SubmitLDAP", isIdle, func() (*issue.Result, error) {
		return o.issuer.IssueLDAP(ctx, ns, name, username, password, o.firstCookie(o.opts.Cookie), o.opts.IssueOptions...)
	}, o.opts.Cookie, o.opts.RedirectURL)
}

// SubmitMTLS issues a token from an MTLS source.
func (o *Orchestrator) SubmitMTLS(ctx context.Context, ns, name string) (State, error) {
	return o.issuance(ctx, "SubmitMTLS", isIdle, func() (*issue.Result, error) {
		return o.issuer.IssueMTLS(ctx, ns, name, o.firstCookie(o.opts.Cookie), o.opts.IssueOptions...)
	}, o.opts.Cookie, o.opts.RedirectURL)
}

// SubmitOIDC starts an OIDC login: the pending context is saved and the
// user is sent to the identity provider.
func (o *Orchestrator) SubmitOIDC(ctx context.Context, ns, name string) (State, error) {
	if !o.inflight.TryAcquire(1) {
		return o.State(), ErrBusy
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	st, err := o.submitOIDC(ctx, ns, name)
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

func (o *Orchestrator) submitOIDC(ctx context.Context, ns, name string) (State, error) {
	if !isIdle(o.state) {
		return o.state, o.invalid("SubmitOIDC")
	}

	authURL, err := o.issuer.BeginOIDC(ctx, ns, name, o.opts.ReturnURL)
	if err != nil {
		return o.fail(Idle{}, err), nil
	}

	pending := continuation.Pending{
		SourceNamespace: ns,
		SourceName:      name,
		Cookie:          o.opts.Cookie,
		RedirectURL:     o.opts.RedirectURL,
		CreatedAt:       o.opts.Now(),
	}
	if err := o.cont.BeforeRedirect(pending); err != nil {
		return o.fail(Idle{}, err), nil
	}

	o.state = AwaitingOIDCRedirect{AuthURL: authURL}
	if err := o.nav.Navigate(authURL); err != nil {
		o.state = o.state.withErr(fmt.Sprintf("open %s manually: %v", authURL, err))
	}
	return o.state, nil
}

// Resume completes a pending OIDC login when params carry the provider
// callback. Without a pending login the state is left unchanged.
func (o *Orchestrator) Resume(ctx context.Context, params url.Values) (State, error) {
	if !o.inflight.TryAcquire(1) {
		return o.State(), ErrBusy
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	st, err := o.resume(ctx, params)
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

func (o *Orchestrator) resume(ctx context.Context, params url.Values) (State, error) {
	switch o.state.(type) {
	case Idle, AwaitingOIDCRedirect:
	default:
		return o.state, o.invalid("Resume")
	}

	if e := params.Get("error"); e != "" {
		msg := "identity provider returned " + e
		if d := params.Get("error_description"); d != "" {
			msg += ": " + d
		}
		o.state = Idle{Err: msg}
		return o.state, nil
	}

	pending, err := o.cont.TryResume(params)
	if err != nil {
		return o.fail(Idle{}, err), nil
	}
	if pending == nil {
		if _, ok := o.state.(AwaitingOIDCRedirect); ok {
			o.state = Idle{}
		}
		return o.state, nil
	}

	redirect := pending.RedirectURL
	if redirect == "" {
		redirect = o.opts.RedirectURL
	}
	res, err := o.issuer.CompleteOIDC(ctx, pending.SourceNamespace, pending.SourceName,
		params.Get("state"), params.Get("code"), o.firstCookie(pending.Cookie), o.opts.IssueOptions...)
	return o.issued(Idle{}, res, err, pending.Cookie, redirect), nil
}

// ConfirmClaims issues the final token restricted to the selected claims.
func (o *Orchestrator) ConfirmClaims(ctx context.Context, selected []string) (State, error) {
	if !o.inflight.TryAcquire(1) {
		return o.State(), ErrBusy
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	st, err := o.confirmClaims(ctx, selected)
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

func (o *Orchestrator) confirmClaims(ctx context.Context, selected []string) (State, error) {
	sel, ok := o.state.(ClaimSelection)
	if !ok {
		return o.state, o.invalid("ConfirmClaims")
	}
	sel.Err = ""

	if len(selected) == 0 {
		o.state = sel.withErr("select at least one claim")
		return o.state, nil
	}
	for _, c := range selected {
		if !contains(sel.AvailableClaims, c) {
			o.state = sel.withErr(fmt.Sprintf("claim %q is not available", c))
			return o.state, nil
		}
	}

	res, err := o.issuer.IssueCloak(ctx, sel.PendingToken, selected, sel.Cookie, o.opts.IssueOptions...)
	if err != nil {
		return o.fail(sel, err), nil
	}
	if sel.Cookie {
		return o.navigateAway(sel, sel.RedirectURL), nil
	}
	if err := checkCloaked(res.Token, selected); err != nil {
		return o.fail(sel, err), nil
	}
	o.state = TokenDisplay{Token: res.Token}
	return o.state, nil
}

// StartRequestScan waits for a claim request. When src is not nil frames
// are sampled from it until a valid request arrives or the state is left.
func (o *Orchestrator) StartRequestScan(ctx context.Context, src qr.FrameSource) (State, error) {
	o.mu.Lock()
	if !isIdle(o.state) {
		st := o.state
		o.mu.Unlock()
		if src != nil {
			src.Close()
		}
		return st, o.invalid("StartRequestScan")
	}
	o.state = ClaimRequestScan{}
	if src != nil {
		o.scan = o.opts.Scanner.Start(ctx, src, func(payload string) bool {
			return o.requestScanned(payload, true)
		})
	}
	st := o.state
	o.mu.Unlock()
	o.changed(st, nil)
	return st, nil
}

// RequestScanned offers a scanned payload as a claim request. It reports
// whether to keep scanning: an unusable payload is recorded on the state and
// scanning goes on.
func (o *Orchestrator) RequestScanned(payload string) bool {
	return o.requestScanned(payload, false)
}

func (o *Orchestrator) requestScanned(payload string, fromScan bool) bool {
	o.mu.Lock()
	if _, ok := o.state.(ClaimRequestScan); !ok {
		o.mu.Unlock()
		return false
	}

	doc, err := claimreq.Parse(payload)
	if err != nil {
		log.Printf("[Flow] ignoring scanned payload: %v", err)
		o.state = ClaimRequestScan{Err: err.Error()}
		st := o.state
		o.mu.Unlock()
		o.changed(st, nil)
		return true
	}

	o.state = ClaimRequestReceived{Document: doc}
	scan := o.scan
	o.scan = nil
	st := o.state
	o.mu.Unlock()

	// The scan loop ends by itself once its callback returns false.
	if !fromScan && scan != nil {
		scan.Stop()
	}
	o.changed(st, nil)
	return false
}

// RespondToRequest answers the received claim request with a token cloaked
// to the selected claims that match the requested prefixes.
func (o *Orchestrator) RespondToRequest(ctx context.Context, raw string, selected []string) (State, error) {
	if !o.inflight.TryAcquire(1) {
		return o.State(), ErrBusy
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	st, err := o.respondToRequest(ctx, raw, selected)
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

func (o *Orchestrator) respondToRequest(ctx context.Context, raw string, selected []string) (State, error) {
	rec, ok := o.state.(ClaimRequestReceived)
	if !ok {
		return o.state, o.invalid("RespondToRequest")
	}
	rec.Err = ""

	tok, err := token.Decode(raw)
	if err != nil {
		return o.fail(rec, err), nil
	}
	if !rec.Document.AcceptsIssuer(tok.Claims.Issuer) {
		o.state = rec.withErr(fmt.Sprintf("issuer %q is not trusted by this request", tok.Claims.Issuer))
		return o.state, nil
	}

	cloak := token.Intersect(selected, rec.Document.Claims)
	if len(cloak) == 0 {
		o.state = rec.withErr("none of the selected claims match the request")
		return o.state, nil
	}

	res, err := o.issuer.IssueCloak(ctx, raw, cloak, false, o.opts.IssueOptions...)
	if err != nil {
		return o.fail(rec, err), nil
	}
	if err := checkCloaked(res.Token, cloak); err != nil {
		return o.fail(rec, err), nil
	}
	o.state = TokenDisplay{Token: res.Token}
	return o.state, nil
}

// ScanToken inspects a scanned payload. A token is decoded and verified
// and always shown with its outcome; a claim request payload is taken as
// received.
func (o *Orchestrator) ScanToken(ctx context.Context, payload string) (State, error) {
	o.mu.Lock()
	st, err := o.scanToken(ctx, payload)
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

func (o *Orchestrator) scanToken(ctx context.Context, payload string) (State, error) {
	if !isIdle(o.state) {
		return o.state, o.invalid("ScanToken")
	}

	if format.Detect(payload) == format.KindClaimRequest {
		if doc, err := claimreq.Parse(payload); err == nil {
			o.state = ClaimRequestReceived{Document: doc}
			return o.state, nil
		}
	}

	tok, err := token.Decode(payload)
	if err != nil {
		return o.fail(Idle{}, err), nil
	}
	res := o.verifier.Verify(ctx, tok, o.opts.Now())
	log.Printf("[Flow] scanned token from %s: %s", tok.Claims.Issuer, res)

	o.state = JWTInspect{
		Token:   tok,
		Header:  tok.RawHeader,
		Payload: tok.RawPayload,
		Result:  res,
	}
	return o.state, nil
}

// Close returns to Idle from any state, stopping a running scan before it
// returns.
func (o *Orchestrator) Close() State {
	o.mu.Lock()
	scan := o.scan
	o.scan = nil
	o.state = Idle{}
	st := o.state
	o.mu.Unlock()

	if scan != nil {
		scan.Stop()
	}
	o.changed(st, nil)
	return st
}

func (o *Orchestrator) issuance(ctx context.Context, event string, accept func(State) bool, call func() (*issue.Result, error), cookie bool, redirect string) (State, error) {
	if !o.inflight.TryAcquire(1) {
		return o.State(), ErrBusy
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	var st State
	var err error
	if !accept(o.state) {
		st, err = o.state, o.invalid(event)
	} else {
		from := o.state.withErr("")
		res, callErr := call()
		st = o.issued(from, res, callErr, cookie, redirect)
	}
	o.mu.Unlock()
	o.changed(st, err)
	return st, err
}

// issued applies the outcome of a first issuance: cloak selection, cookie
// navigation or token display.
func (o *Orchestrator) issued(from State, res *issue.Result, err error, cookie bool, redirect string) State {
	if err != nil {
		return o.fail(from, err)
	}

	if o.opts.Cloak {
		tok, err := token.Decode(res.Token)
		if err != nil {
			return o.fail(from, err)
		}
		o.state = ClaimSelection{
			PendingToken:    res.Token,
			AvailableClaims: token.DisplayIdentities(tok.Claims.Identity),
			Cookie:          cookie,
			RedirectURL:     redirect,
		}
		return o.state
	}
	if cookie {
		return o.navigateAway(from, redirect)
	}
	o.state = TokenDisplay{Token: res.Token}
	return o.state
}

func (o *Orchestrator) navigateAway(from State, redirect string) State {
	if redirect != "" {
		if err := o.nav.Navigate(redirect); err != nil {
			return o.fail(from, err)
		}
	}
	o.state = Idle{}
	return o.state
}

// firstCookie is the response mode of the first issuance: a token is
// needed to offer claims when cloaking.
func (o *Orchestrator) firstCookie(cookie bool) bool {
	return cookie && !o.opts.Cloak
}

func (o *Orchestrator) fail(from State, err error) State {
	log.Printf("[Flow] %s: %v", from.Name(), err)
	o.state = from.withErr(err.Error())
	return o.state
}

func (o *Orchestrator) invalid(event string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, o.state.Name())
}

func (o *Orchestrator) changed(st State, err error) {
	if err == nil && o.opts.OnChange != nil {
		o.opts.OnChange(st)
	}
}

func checkCloaked(raw string, allow []string) error {
	tok, err := token.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding cloaked token: %w", err)
	}
	if extra := token.CheckCloaked(tok.Claims.Identity, allow); len(extra) > 0 {
		return fmt.Errorf("cloaked token carries unexpected claims: %s", strings.Join(extra, ", "))
	}
	return nil
}

func isIdle(s State) bool {
	_, ok := s.(Idle)
	return ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
