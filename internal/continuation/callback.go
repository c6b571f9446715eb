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

package continuation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCallbackAddr is where the identity provider sends the browser back.
const DefaultCallbackAddr = "localhost:65333"

// Callback holds the query parameters of the provider redirect.
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// Params returns the callback as URL query values.
func (c *Callback) Params() url.Values {
	v := url.Values{}
	for k, s := range map[string]string{
		"state":             c.State,
		"code":              c.Code,
		"error":             c.Error,
		"error_description": c.ErrorDescription,
	} {
		if s != "" {
			v.Set(k, s)
		}
	}
	return v
}

// ParseCallbackURL extracts the callback parameters from the URL the
// browser landed on.
func ParseCallbackURL(raw string) (*Callback, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing callback URL: %w", err)
	}
	q := u.Query()
	return &Callback{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}, nil
}

// CallbackServer is a loopback HTTP server that receives one provider
// redirect and hands it to Wait.
type CallbackServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	resultCh chan *Callback
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer returns a server for addr, or DefaultCallbackAddr when
// addr is empty.
func NewCallbackServer(addr string) *CallbackServer {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	return &CallbackServer{
		addr:     addr,
		resultCh: make(chan *Callback, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start listens and returns the URL to use as the OIDC return URL. The
// server stops when ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", s.addr, err)
	}
	s.listener = listener

	host, _, _ := net.SplitHostPort(s.addr)
	if host == "" {
		host = "localhost"
	}
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return fmt.Sprintf("http://%s:%d", host, port), nil
}

// Wait blocks until the callback arrives or ctx ends.
func (s *CallbackServer) Wait(ctx context.Context) (*Callback, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") == "" && q.Get("error") == "" {
		http.NotFound(w, r)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		cb := &Callback{
			State:            q.Get("state"),
			Code:             q.Get("code"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		}
		log.Printf("[OIDC] callback received (error=%q)", cb.Error)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if cb.Error != "" {
			fmt.Fprintf(w, "<html><body><h1>Login failed</h1><p>%s</p></body></html>", html.EscapeString(cb.Error+": "+cb.ErrorDescription))
		} else {
			fmt.Fprint(w, "<html><body><h1>Login complete</h1><p>You can close this window.</p></body></html>")
		}

		select {
		case s.resultCh <- cb:
		default:
		}
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
