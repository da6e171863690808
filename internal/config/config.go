// Package config loads termwright's session policy defaults: the
// environment-injection and query-emulation toggles a session starts
// with, and the default grid size and write/kill timings. The grid size
// and the two toggles can be overridden per session with command-line
// flags; the timings and TERM come from the config file only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is termwright's on-disk configuration, loaded from
// ~/.termwright/config.yaml.
type Config struct {
	Session SessionDefaults `yaml:"session"`
}

// SessionDefaults holds the per-session policy flags (no_default_env,
// no_osc_emulation) plus the grid and timing defaults a session is
// spawned with when a client doesn't override them.
type SessionDefaults struct {
	Rows int    `yaml:"rows"`
	Cols int    `yaml:"cols"`
	Term string `yaml:"term"`

	NoDefaultEnv   bool `yaml:"no_default_env"`
	NoOSCEmulation bool `yaml:"no_osc_emulation"`

	WriteTimeoutMS int `yaml:"write_timeout_ms"`
	KillGraceMS    int `yaml:"kill_grace_ms"`

	DefaultWaitTimeoutMS int `yaml:"default_wait_timeout_ms"`
}

// WriteTimeout returns the configured PTY write timeout, or a sane
// default if unset.
func (d SessionDefaults) WriteTimeout() time.Duration {
	if d.WriteTimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(d.WriteTimeoutMS) * time.Millisecond
}

// KillGrace returns the SIGTERM-to-SIGKILL grace period, or a sane
// default if unset.
func (d SessionDefaults) KillGrace() time.Duration {
	if d.KillGraceMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(d.KillGraceMS) * time.Millisecond
}

// DefaultWaitTimeout returns the daemon protocol's default timeout_ms:
// 30000 when a wait request omits it.
func (d SessionDefaults) DefaultWaitTimeout() time.Duration {
	if d.DefaultWaitTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.DefaultWaitTimeoutMS) * time.Millisecond
}

// defaults fills in the zero-value fallbacks a freshly parsed Config
// needs before it is handed to a session.
func defaults() SessionDefaults {
	return SessionDefaults{
		Rows:                 24,
		Cols:                 80,
		Term:                 "xterm-256color",
		WriteTimeoutMS:       2000,
		KillGraceMS:          3000,
		DefaultWaitTimeoutMS: 30000,
	}
}

// ConfigDir returns termwright's configuration directory (~/.termwright/).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".termwright")
	}
	return filepath.Join(home, ".termwright")
}

// Load reads termwright's config from ~/.termwright/config.yaml. If the
// file does not exist, it returns a Config filled with built-in
// defaults and no error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(ConfigDir(), "config.yaml"))
}

// LoadFrom reads termwright's config from path. If the file does not
// exist, it returns a Config filled with built-in defaults and no
// error.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{Session: defaults()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Unmarshal over the defaults so a config file that only sets one
	// field (e.g. no_osc_emulation) doesn't zero out the rest.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Session.Rows < 1 || c.Session.Cols < 1 {
		return fmt.Errorf("session: rows and cols must be >= 1, got %dx%d", c.Session.Rows, c.Session.Cols)
	}
	if c.Session.Term == "" {
		return fmt.Errorf("session: term must not be empty")
	}
	return nil
}
