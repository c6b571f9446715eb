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
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// ImageSource replays a fixed list of frames, repeating the last one.
type ImageSource struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

// NewImageSource returns a source over frames.
func NewImageSource(frames ...image.Image) *ImageSource {
	return &ImageSource{frames: frames}
}

func (s *ImageSource) Frame(context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	img := s.frames[s.next]
	if s.next < len(s.frames)-1 {
		s.next++
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *ImageSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FileSource re-reads an image file on every frame, for snapshot tools
// that keep overwriting the same path with the latest camera frame.
type FileSource struct {
	Path string
}

func (s *FileSource) Frame(context.Context) (image.Image, error) {
	return readImage(s.Path)
}

func (s *FileSource) Close() error { return nil }

// ScreenSource captures the whole screen on every frame. macOS only.
type ScreenSource struct {
	dir string
}

// NewScreenSource prepares a scratch directory for captures.
func NewScreenSource() (*ScreenSource, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("screen scanning is only supported on macOS")
	}
	dir, err := os.MkdirTemp("", "a3s-login-screen-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	return &ScreenSource{dir: dir}, nil
}

func (s *ScreenSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, "frame.png")
	if err := screencapture(path, "-x"); err != nil {
		return nil, err
	}
	return readImage(path)
}

func (s *ScreenSource) Close() error {
	return os.RemoveAll(s.dir)
}
