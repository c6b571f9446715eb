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

package qr

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"
)

// DefaultInterval is the frame sampling period of a Scanner.
const DefaultInterval = 250 * time.Millisecond

// ErrSourceClosed is returned by a FrameSource that can produce no more
// frames. It ends the scan.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource yields the frames a scan samples. Any error other than
// ErrSourceClosed is treated as a missed frame.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Scanner samples a FrameSource and surfaces decoded payloads.
type Scanner struct {
	Interval time.Duration
	// Decode defaults to the package Decode function.
	Decode func(image.Image) (string, error)
}

// NewScanner returns a Scanner sampling every DefaultInterval.
func NewScanner() *Scanner {
	return &Scanner{Interval: DefaultInterval, Decode: Decode}
}

// Scan is the handle of a running scan. Every Start must be paired with a
// Stop, including on error paths.
type Scan struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last string
	err  error
}

// Start begins sampling src until onResult returns false, ctx is cancelled
// or Stop is called. onResult runs on the scan goroutine and is invoked at
// most once per decoded payload that differs from the previous one. It
// reports whether to keep scanning; while it does, that payload is not
// offered again until a different one is seen or Reset is called.
func (s *Scanner) Start(ctx context.Context, src FrameSource, onResult func(string) bool) *Scan {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	decode := s.Decode
	if decode == nil {
		decode = Decode
	}

	ctx, cancel := context.WithCancel(ctx)
	sc := &Scan{cancel: cancel, done: make(chan struct{})}
	go sc.run(ctx, src, interval, decode, onResult)
	return sc
}

// Stop ends the scan and waits for the scan goroutine to exit and release
// its source. No callback runs after Stop returns. Stop must not be called
// from inside onResult.
func (sc *Scan) Stop() {
	sc.cancel()
	<-sc.done
}

// Done is closed once the scan has finished and released its source.
func (sc *Scan) Done() <-chan struct{} {
	return sc.done
}

// Err reports why the scan ended on its own, if it did so with an error.
func (sc *Scan) Err() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.err
}

// Reset forgets the last surfaced payload so it is offered again.
func (sc *Scan) Reset() {
	sc.mu.Lock()
	sc.last = ""
	sc.mu.Unlock()
}

func (sc *Scan) run(ctx context.Context, src FrameSource, interval time.Duration, decode func(image.Image) (string, error), onResult func(string) bool) {
	defer close(sc.done)
	defer src.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if sc.sample(ctx, src, decode, onResult) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample processes one frame and reports whether the scan should end.
func (sc *Scan) sample(ctx context.Context, src FrameSource, decode func(image.Image) (string, error), onResult func(string) bool) bool {
	frame, err := src.Frame(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceClosed) {
			sc.mu.Lock()
			sc.err = err
			sc.mu.Unlock()
			return true
		}
		return ctx.Err() != nil
	}

	payload, err := decode(frame)
	if err != nil || payload == "" {
		return false
	}

	sc.mu.Lock()
	changed := payload != sc.last
	sc.last = payload
	sc.mu.Unlock()
	if !changed || ctx.Err() != nil {
		return ctx.Err() != nil
	}

	log.Printf("[QR] decoded payload (%d bytes)", len(payload))
	return !onResult(payload)
}
