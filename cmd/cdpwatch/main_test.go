package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/tidwall/gjson"

	devtools "github.com/wanmail/selenium-devtools"
	"github.com/wanmail/selenium-devtools/internal/config"
	"github.com/wanmail/selenium-devtools/internal/devtoolstest"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newBrowser(t *testing.T) *devtoolstest.Browser {
	t.Helper()
	b := devtoolstest.NewBrowser()
	t.Cleanup(b.Close)
	ok := func(gjson.Result) (string, *devtoolstest.Failure) { return "", nil }
	for _, method := range []string{"Runtime.enable", "Debugger.setPauseOnExceptions", "Debugger.resume"} {
		b.Handle(method, ok)
	}
	b.Handle("Debugger.enable", func(gjson.Result) (string, *devtoolstest.Failure) {
		return `{"debuggerId":"abc"}`, nil
	})
	b.Handle("Debugger.setBreakpointByUrl", func(params gjson.Result) (string, *devtoolstest.Failure) {
		return `{"breakpointId":"bp-` + params.Get("lineNumber").String() + `","locations":[]}`, nil
	})
	return b
}

func writeCaps(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caps.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("os.WriteFile() returned error: %v", err)
	}
	return path
}

func TestResolveEndpoint(t *testing.T) {
	b := newBrowser(t)
	ctx := context.Background()
	host := strings.TrimPrefix(b.URL, "http://")

	tests := []struct {
		desc string
		ec   config.EndpointConfig
		want string
	}{
		{"discovery url", config.EndpointConfig{URL: b.URL}, b.WebSocketURL()},
		{"websocket url", config.EndpointConfig{URL: "ws://grid/cdp"}, "ws://grid/cdp"},
		{"page target", config.EndpointConfig{URL: b.URL, Page: true}, "ws://" + host + "/devtools/page/page-1"},
		{
			"grid capabilities",
			config.EndpointConfig{Capabilities: writeCaps(t, `{"value":{"capabilities":{"se:cdp":"ws://grid/se/cdp"}}}`)},
			"ws://grid/se/cdp",
		},
		{
			"driver capabilities",
			config.EndpointConfig{Capabilities: writeCaps(t, `{"goog:chromeOptions":{"debuggerAddress":"`+host+`"}}`)},
			b.WebSocketURL(),
		},
		{
			"geckodriver capabilities",
			config.EndpointConfig{Capabilities: writeCaps(t, `{"browserName":"firefox","moz:debuggerAddress":"`+host+`"}`)},
			b.WebSocketURL(),
		},
	}
	for _, tc := range tests {
		got, err := resolveEndpoint(ctx, tc.ec)
		if err != nil {
			t.Errorf("%s: resolveEndpoint() returned error: %v", tc.desc, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: resolveEndpoint() = %q, want %q", tc.desc, got, tc.want)
		}
	}

	if _, err := resolveEndpoint(ctx, config.EndpointConfig{Capabilities: writeCaps(t, `{"browserName":"chrome"}`)}); err == nil {
		t.Errorf("resolveEndpoint() without a DevTools capability returned nil error")
	}
}

func TestRun(t *testing.T) {
	b := newBrowser(t)
	cfg := config.Default()
	cfg.Endpoint.URL = b.URL
	cfg.Debugger.AutoResume = true
	cfg.Debugger.Breakpoints = []config.Breakpoint{{URL: "https://example.com/app.js", Line: 41}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := new(syncBuffer)
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, out) }()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s; output so far:\n%s", what, out.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitFor("breakpoint", func() bool { return strings.Contains(out.String(), "breakpoint bp-41 set") })

	if err := b.Emit("Debugger.paused", `{"reason":"other","callFrames":[{"callFrameId":"f0","functionName":"main","url":"https://example.com/app.js","location":{"scriptId":"17","lineNumber":41},"scopeChain":[],"this":{"type":"undefined"}}]}`); err != nil {
		t.Fatalf("Emit() returned error: %v", err)
	}
	if err := b.Emit("Runtime.consoleAPICalled", `{"type":"log","args":[{"type":"string","value":"hi"},{"type":"number","value":3}],"executionContextId":1,"timestamp":1}`); err != nil {
		t.Fatalf("Emit() returned error: %v", err)
	}
	waitFor("pause", func() bool { return strings.Contains(out.String(), "paused (other) in main at https://example.com/app.js:42") })
	waitFor("console", func() bool { return strings.Contains(out.String(), "console.log: hi 3") })
	waitFor("resume", func() bool {
		for _, m := range b.Received() {
			if m == "Debugger.resume" {
				return true
			}
		}
		return false
	})

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run() returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run() did not return after cancel")
	}
}

func TestFormatArgs(t *testing.T) {
	args := []*runtime.RemoteObject{
		{Type: runtime.TypeString, Value: []byte(`"a b"`)},
		{Type: runtime.TypeNumber, UnserializableValue: "NaN"},
		{Type: runtime.TypeObject, Description: "Array(2)"},
		{Type: runtime.TypeUndefined},
		nil,
	}
	if got, want := formatArgs(args), "a b NaN Array(2) undefined undefined"; got != want {
		t.Errorf("formatArgs() = %q, want %q", got, want)
	}
}

type fakeService struct {
	endpoint string
	stopped  int
}

func (s *fakeService) Endpoint() string { return s.endpoint }

func (s *fakeService) Stop() error {
	s.stopped++
	return nil
}

func TestWatchStopsStartedBrowser(t *testing.T) {
	b := newBrowser(t)
	b.Handle("Debugger.setBreakpointByUrl", func(gjson.Result) (string, *devtoolstest.Failure) {
		return "", &devtoolstest.Failure{Code: -32000, Message: "no such script"}
	})

	service := &fakeService{endpoint: b.URL}
	oldStart := startChrome
	startChrome = func(path string, port int) (browserService, error) {
		if path != "chrome" || port != 9333 {
			t.Errorf("startChrome(%q, %d), want (chrome, 9333)", path, port)
		}
		return service, nil
	}
	defer func() { startChrome = oldStart }()

	cfg := config.Default()
	cfg.Endpoint.URL = "http://127.0.0.1:1"
	cfg.Debugger.Breakpoints = []config.Breakpoint{{URL: "https://example.com/app.js", Line: 1}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := watch(ctx, cfg, "chrome", 9333, new(syncBuffer)); err == nil {
		t.Errorf("watch() with a failing breakpoint returned nil error")
	}
	if service.stopped != 1 {
		t.Errorf("browser stopped %d times after watch failed, want 1", service.stopped)
	}

	startChrome = func(string, int) (browserService, error) { return nil, errors.New("no such file") }
	if err := watch(ctx, cfg, "chrome", 9333, new(syncBuffer)); err == nil {
		t.Errorf("watch() with a browser that fails to start returned nil error")
	}
}

func TestProxyDiscovery(t *testing.T) {
	client := devtools.GetHTTPClient()
	old := client.Transport
	defer func() { client.Transport = old }()

	if err := proxyDiscovery("socks5://127.0.0.1:1080"); err != nil {
		t.Fatalf("proxyDiscovery() returned error: %v", err)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("discovery transport = %T, want *http.Transport", client.Transport)
	}
	req, _ := http.NewRequest("GET", "http://127.0.0.1:9222/json/version", nil)
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.String() != "socks5://127.0.0.1:1080" {
		t.Errorf("discovery proxy = %v, %v; want socks5://127.0.0.1:1080", u, err)
	}

	if err := proxyDiscovery("://nope"); err == nil {
		t.Errorf("proxyDiscovery() of an unparsable URL returned nil error")
	}
}
