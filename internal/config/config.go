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

// Package config loads the a3s-login configuration file and resolves the
// paths of the local state files.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PaloAltoNetworks/a3s/internal/continuation"
)

const (
	dirName        = ".a3s-login"
	configFileName = "config.yaml"
	stateFileName  = "state.json"
	prefsFileName  = "prefs.json"
)

// Config is the content of config.yaml. Command line flags override it.
type Config struct {
	API          string        `yaml:"api"`
	Audience     []string      `yaml:"audience,omitempty"`
	CookieDomain string        `yaml:"cookieDomain,omitempty"`
	RedirectURL  string        `yaml:"redirectURL,omitempty"`
	Cloak        bool          `yaml:"cloak,omitempty"`
	Cookie       bool          `yaml:"cookie,omitempty"`
	CallbackAddr string        `yaml:"callbackAddr,omitempty"`
	Validity     time.Duration `yaml:"validity,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`

	// Client certificate used for MTLS sources, and the CA bundle trusted
	// for the API.
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
	CA   string `yaml:"ca,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		API:          "https://127.0.0.1:44443",
		CallbackAddr: continuation.DefaultCallbackAddr,
		Timeout:      30 * time.Second,
	}
}

// DefaultDir returns ~/.a3s-login, or .a3s-login when the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// Load reads config.yaml from dir on top of the defaults. A missing file
// yields the defaults.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[Config] no config file at %s, using defaults", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	log.Printf("[Config] loaded configuration from %s", path)
	return cfg, nil
}

// Save writes cfg to dir/config.yaml.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0600)
}

// Validate checks the values a login needs.
func (c Config) Validate() error {
	if c.API == "" {
		return fmt.Errorf("api must be set")
	}
	u, err := url.Parse(c.API)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api %q is not an absolute URL", c.API)
	}
	if (c.Cert == "") != (c.Key == "") {
		return fmt.Errorf("cert and key must be set together")
	}
	if c.Validity < 0 {
		return fmt.Errorf("validity must not be negative")
	}
	return nil
}

// TLSConfig builds the client TLS configuration from Cert, Key and CA. It
// returns nil when none of them is set.
func (c Config) TLSConfig() (*tls.Config, error) {
	if c.Cert == "" && c.CA == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.Cert != "" {
		pair, err := tls.LoadX509KeyPair(c.Cert, c.Key)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	if c.CA != "" {
		pem, err := os.ReadFile(c.CA)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CA)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// StatePath is the store holding the pending OIDC login and saved claim
// request entries.
func StatePath(dir string) string {
	return filepath.Join(dir, stateFileName)
}

// PrefsPath is the store holding the last used source selection.
func PrefsPath(dir string) string {
	return filepath.Join(dir, prefsFileName)
}
