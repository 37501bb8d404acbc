package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdpwatch.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("os.WriteFile() returned error: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) returned error: %v", path, err)
		}
		if diff := cmp.Diff(Default(), cfg); diff != "" {
			t.Errorf("Load(%q) diff (-want/+got):\n%s", path, diff)
		}
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
debug = true

[endpoint]
url = "ws://127.0.0.1:9222/devtools/browser/abc"
proxy = "socks5://127.0.0.1:1080"

[session]
command_timeout_ms = 5000

[debugger]
pause_on_exceptions = "uncaught"
auto_resume = true

[[debugger.breakpoints]]
url = "https://example.com/app.js"
line = 41

[[debugger.breakpoints]]
url = "https://example.com/lib.js"
line = 7
condition = "x > 1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	want := Default()
	want.Debug = true
	want.Endpoint.URL = "ws://127.0.0.1:9222/devtools/browser/abc"
	want.Endpoint.Proxy = "socks5://127.0.0.1:1080"
	want.Session.CommandTimeoutMs = 5000
	want.Debugger.PauseOnExceptions = "uncaught"
	want.Debugger.AutoResume = true
	want.Debugger.Breakpoints = []Breakpoint{
		{URL: "https://example.com/app.js", Line: 41},
		{URL: "https://example.com/lib.js", Line: 7, Condition: "x > 1"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() diff (-want/+got):\n%s", diff)
	}
	if got := cfg.CommandTimeout(); got != 5*time.Second {
		t.Errorf("CommandTimeout() = %v, want 5s", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		desc string
		body string
	}{
		{"not toml", `[endpoint`},
		{"no endpoint", "[endpoint]\nurl = \"\"\n"},
		{"negative timeout", "[session]\ncommand_timeout_ms = -1\n"},
		{"bad pause mode", "[debugger]\npause_on_exceptions = \"sometimes\"\n"},
		{"breakpoint without url", "[[debugger.breakpoints]]\nline = 3\n"},
		{"negative line", "[[debugger.breakpoints]]\nurl = \"a.js\"\nline = -3\n"},
	}
	for _, tc := range tests {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Errorf("%s: Load() returned nil error", tc.desc)
		}
	}
}
