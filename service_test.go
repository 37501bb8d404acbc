package devtools

import (
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestIsDisplay(t *testing.T) {
	tests := []struct {
		desc  string
		in    string
		valid bool
	}{
		{
			desc:  "valid with just display",
			in:    "2",
			valid: true,
		},
		{
			desc:  "valid with display and screen",
			in:    "2.5",
			valid: true,
		},
		{
			desc:  "invalid with non-numeric display",
			in:    "a",
			valid: false,
		},
		{
			desc:  "invalid with display and non-numeric screen",
			in:    "2.b",
			valid: false,
		},
		{
			desc:  "invalid with blank display and blank screen",
			in:    ".",
			valid: false,
		},
		{
			desc:  "blank string is invalid",
			in:    "",
			valid: false,
		},
		{
			desc:  "malformed input",
			in:    "2.5.7",
			valid: false,
		},
	}

	for _, test := range tests {
		if got, want := isDisplay(test.in), test.valid; got != want {
			t.Errorf("%s: isDisplay = %t, want %t", test.desc, got, want)
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() returned error: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func useFakeExec(t *testing.T) {
	t.Helper()
	oldExec, oldInterval := newExecCommand, startupPollInterval
	newExecCommand = fakeExecCommand
	startupPollInterval = 20 * time.Millisecond
	t.Cleanup(func() {
		newExecCommand, startupPollInterval = oldExec, oldInterval
	})
}

func TestChromeService(t *testing.T) {
	useFakeExec(t)
	port := freePort(t)

	s, err := NewChromeService("chrome", port, ExtraArgs("--mute-audio"))
	if err != nil {
		t.Fatalf("NewChromeService() returned error: %v", err)
	}
	profile := s.userDataDir
	if _, err := os.Stat(profile); err != nil {
		t.Errorf("throwaway profile %q missing: %v", profile, err)
	}

	v := s.Version()
	if v == nil || v.Browser != "HeadlessChrome/76.0.3809.0" {
		t.Fatalf("Version() = %+v, want the helper's version", v)
	}
	for _, want := range []string{"--headless", "--mute-audio", "--user-data-dir=" + profile} {
		if !strings.Contains(v.UserAgent, want) {
			t.Errorf("browser args %q lack %q", v.UserAgent, want)
		}
	}
	if got := s.Endpoint(); !strings.HasSuffix(got, ":"+strconv.Itoa(port)) {
		t.Errorf("Endpoint() = %q, want port %d", got, port)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}
	if _, err := os.Stat(profile); !os.IsNotExist(err) {
		t.Errorf("throwaway profile %q survived Stop: %v", profile, err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}

func TestChromeServiceDisplay(t *testing.T) {
	useFakeExec(t)
	dir := t.TempDir()

	s, err := NewChromeService("chrome", freePort(t), Display("7", ""), UserDataDir(dir))
	if err != nil {
		t.Fatalf("NewChromeService() returned error: %v", err)
	}
	defer s.Stop()
	if strings.Contains(s.Version().UserAgent, "--headless") {
		t.Errorf("browser on a display started headless: %q", s.Version().UserAgent)
	}
	s.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("caller's profile %q removed by Stop: %v", dir, err)
	}
}

func TestChromeServiceExitsEarly(t *testing.T) {
	useFakeExec(t)
	if _, err := NewChromeService("crash", freePort(t)); err == nil {
		t.Errorf("NewChromeService() of a crashing browser returned nil error")
	}
}

func TestServiceOptionErrors(t *testing.T) {
	useFakeExec(t)
	for desc, opts := range map[string][]ServiceOption{
		"bad display":    {Display("x", "")},
		"double display": {Display("1", ""), Display("2", "")},
		"empty profile":  {UserDataDir("")},
	} {
		if s, err := NewChromeService("chrome", freePort(t), opts...); err == nil {
			s.Stop()
			t.Errorf("%s: NewChromeService() returned nil error", desc)
		}
	}
}
