package devtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/wanmail/selenium-devtools/chrome"
)

// newExecCommand is replaced in tests.
var newExecCommand = exec.Command

var (
	startupPollInterval = 250 * time.Millisecond
	startupTimeout      = 30 * time.Second
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service) error

// Display specifies the value to which set the DISPLAY environment variable,
// as well as the path to the Xauthority file containing credentials needed to
// write to that X server. It implies a headful browser.
func Display(d, xauthPath string) ServiceOption {
	return func(s *Service) error {
		if s.display != "" {
			return fmt.Errorf("service display already set: %v", s.display)
		}
		if !isDisplay(d) {
			return fmt.Errorf("supplied display %q must be of the format 'x' or 'x.y' where x and y are integers", d)
		}
		s.display = d
		s.xauthPath = xauthPath
		s.headless = false
		return nil
	}
}

// isDisplay validates that the given disp is in the format "x" or "x.y", where
// x and y are both integers.
func isDisplay(disp string) bool {
	ds := strings.Split(disp, ".")
	if len(ds) > 2 {
		return false
	}

	for _, d := range ds {
		if _, err := strconv.Atoi(d); err != nil {
			return false
		}
	}
	return true
}

// Output specifies that the browser should log to the provided writer.
func Output(w io.Writer) ServiceOption {
	return func(s *Service) error {
		s.output = w
		return nil
	}
}

// UserDataDir runs the browser on the given profile directory instead of a
// throwaway one.
func UserDataDir(dir string) ServiceOption {
	return func(s *Service) error {
		if dir == "" {
			return errors.New("empty user data dir")
		}
		s.userDataDir = dir
		return nil
	}
}

// ExtraArgs appends command-line arguments for the browser.
func ExtraArgs(args ...string) ServiceOption {
	return func(s *Service) error {
		s.extraArgs = append(s.extraArgs, args...)
		return nil
	}
}

// Service controls a locally-running browser serving the DevTools protocol.
type Service struct {
	port int
	addr string
	cmd  *exec.Cmd

	display, xauthPath string
	headless           bool
	userDataDir        string
	tempProfile        bool
	extraArgs          []string

	output  io.Writer
	version *VersionInfo
	exited  chan error
}

// NewChromeService starts a Chrome (or Chromium, Edge) binary in the
// background with remote debugging on port, and waits until its DevTools
// endpoint answers.
func NewChromeService(path string, port int, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		port:     port,
		addr:     fmt.Sprintf("http://127.0.0.1:%d", port),
		headless: true,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.userDataDir == "" {
		dir, err := os.MkdirTemp("", "devtools-profile")
		if err != nil {
			return nil, err
		}
		s.userDataDir = dir
		s.tempProfile = true
	}

	args := append(chrome.RemoteDebuggingArgs(port, s.userDataDir, s.headless), s.extraArgs...)
	cmd := newExecCommand(path, args...)
	cmd.Stderr = s.output
	cmd.Stdout = s.output
	cmd.Env = append(os.Environ(), cmd.Env...)
	if s.display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY=:"+s.display)
	}
	if s.xauthPath != "" {
		cmd.Env = append(cmd.Env, "XAUTHORITY="+s.xauthPath)
	}
	s.cmd = cmd

	if err := s.start(); err != nil {
		s.removeProfile()
		return nil, err
	}
	return s, nil
}

func (s *Service) start() error {
	if err := s.cmd.Start(); err != nil {
		return err
	}
	s.exited = make(chan error, 1)
	go func() {
		s.exited <- s.cmd.Wait()
	}()

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-s.exited:
			s.exited <- err
			return fmt.Errorf("browser exited before serving port %d: %v", s.port, err)
		case <-time.After(startupPollInterval):
		}
		ctx, cancel := context.WithTimeout(context.Background(), startupPollInterval*4)
		v, err := FetchVersion(ctx, s.addr)
		cancel()
		if err == nil {
			s.version = v
			debugLog("browser %s is serving DevTools on port %d", v.Browser, s.port)
			return nil
		}
	}
	s.kill()
	return fmt.Errorf("browser did not serve DevTools on port %d", s.port)
}

// Endpoint returns the HTTP address of the DevTools endpoint.
func (s *Service) Endpoint() string {
	return s.addr
}

// Version returns what the endpoint reported at startup.
func (s *Service) Version() *VersionInfo {
	return s.version
}

// Connect opens a session on the browser-wide DevTools websocket.
func (s *Service) Connect(ctx context.Context, dialOpts []DialOption, opts ...SessionOption) (*Session, error) {
	wsURL, err := BrowserWebSocketURL(ctx, s.addr)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, wsURL, dialOpts, opts...)
}

// Stop kills the browser and removes its throwaway profile.
func (s *Service) Stop() error {
	err := s.kill()
	s.removeProfile()
	return err
}

func (s *Service) kill() error {
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	err := <-s.exited
	s.exited <- err
	// A killed browser reports "signal: killed" as an exit error.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

func (s *Service) removeProfile() {
	if s.tempProfile {
		os.RemoveAll(s.userDataDir) // best effort removal; ignore error
	}
}
