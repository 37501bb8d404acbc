// Package config loads the cdpwatch configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the cdpwatch configuration file.
type Config struct {
	Endpoint EndpointConfig `toml:"endpoint"`
	Session  SessionConfig  `toml:"session"`
	Debugger DebuggerConfig `toml:"debugger"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Debug    bool           `toml:"debug"`
}

// EndpointConfig says where the browser is. URL is either an HTTP discovery
// address or a ws:// URL; Capabilities is a JSON file holding the
// capabilities returned by a Selenium session, used when URL is empty.
type EndpointConfig struct {
	URL          string `toml:"url"`
	Capabilities string `toml:"capabilities"`
	Proxy        string `toml:"proxy"`
	Page         bool   `toml:"page"`
}

// SessionConfig tunes the DevTools session.
type SessionConfig struct {
	CommandTimeoutMs int `toml:"command_timeout_ms"`
}

// DebuggerConfig selects what the Debugger domain does once enabled.
// PauseOnExceptions is one of none, uncaught or all.
type DebuggerConfig struct {
	Enabled           bool         `toml:"enabled"`
	Breakpoints       []Breakpoint `toml:"breakpoints"`
	PauseOnExceptions string       `toml:"pause_on_exceptions"`
	AutoResume        bool         `toml:"auto_resume"`
}

// Breakpoint is set by URL, on a zero-based line.
type Breakpoint struct {
	URL       string `toml:"url"`
	Line      int64  `toml:"line"`
	Condition string `toml:"condition"`
}

// RuntimeConfig controls console reporting.
type RuntimeConfig struct {
	Console bool `toml:"console"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			URL: "http://127.0.0.1:9222",
		},
		Session: SessionConfig{
			CommandTimeoutMs: 30000,
		},
		Debugger: DebuggerConfig{
			Enabled:           true,
			PauseOnExceptions: "none",
		},
		Runtime: RuntimeConfig{
			Console: true,
		},
	}
}

// Load reads the TOML file at path over Default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Endpoint.URL == "" && c.Endpoint.Capabilities == "" {
		return errors.New("endpoint: one of url or capabilities is required")
	}
	if c.Session.CommandTimeoutMs < 0 {
		return fmt.Errorf("session: command_timeout_ms must not be negative, got %d", c.Session.CommandTimeoutMs)
	}
	switch c.Debugger.PauseOnExceptions {
	case "", "none", "uncaught", "all":
	default:
		return fmt.Errorf("debugger: pause_on_exceptions must be none, uncaught or all, got %q", c.Debugger.PauseOnExceptions)
	}
	for i, bp := range c.Debugger.Breakpoints {
		if bp.URL == "" {
			return fmt.Errorf("debugger: breakpoint %d has no url", i)
		}
		if bp.Line < 0 {
			return fmt.Errorf("debugger: breakpoint %d has negative line %d", i, bp.Line)
		}
	}
	return nil
}

// CommandTimeout is the session command timeout; zero means the session
// default.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Session.CommandTimeoutMs) * time.Millisecond
}
