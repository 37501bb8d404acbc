// Binary cdpwatch attaches to a browser over the DevTools protocol, sets
// breakpoints and prints debugger pauses and console output until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"
	"github.com/golang/glog"

	devtools "github.com/wanmail/selenium-devtools"
	"github.com/wanmail/selenium-devtools/chrome"
	"github.com/wanmail/selenium-devtools/firefox"
	debuggerdomain "github.com/wanmail/selenium-devtools/domains/debugger"
	runtimedomain "github.com/wanmail/selenium-devtools/domains/runtime"
	"github.com/wanmail/selenium-devtools/internal/config"
)

var (
	configPath = flag.String("config", "cdpwatch.toml", "Path to the TOML configuration file. A missing file means defaults.")
	endpoint   = flag.String("endpoint", "", "If set, overrides the configured endpoint URL.")
	chromePath = flag.String("chrome", "", "If set, start this browser binary instead of attaching to a running one.")
	chromePort = flag.Int("port", 9222, "Remote debugging port for the browser started with --chrome.")
	debug      = flag.Bool("debug", false, "If true, log every frame sent and received.")
)

func main() {
	flag.Parse()
	os.Exit(realMain())
}

// realMain returns the exit code, so that deferred cleanup runs before the
// process exits.
func realMain() int {
	defer glog.Flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		glog.Errorf("Error loading configuration: %v", err)
		return 1
	}
	if *endpoint != "" {
		cfg.Endpoint.URL = *endpoint
		cfg.Endpoint.Capabilities = ""
	}
	devtools.SetDebug(cfg.Debug || *debug)
	if cfg.Endpoint.Proxy != "" {
		if err := proxyDiscovery(cfg.Endpoint.Proxy); err != nil {
			glog.Errorf("%v", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := watch(ctx, cfg, *chromePath, *chromePort, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("%v", err)
		return 1
	}
	return 0
}

// proxyDiscovery sends the discovery requests through the same proxy as the
// websocket.
func proxyDiscovery(proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL %q: %v", proxyURL, err)
	}
	devtools.GetHTTPClient().Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return nil
}

type browserService interface {
	Endpoint() string
	Stop() error
}

// startChrome is replaced in tests.
var startChrome = func(path string, port int) (browserService, error) {
	s, err := devtools.NewChromeService(path, port, devtools.Output(os.Stderr))
	if err != nil {
		return nil, err
	}
	glog.Infof("Started %s", s.Version().Browser)
	return s, nil
}

// watch runs the watcher, on a browser started from chromePath when that is
// set. A started browser is stopped before watch returns.
func watch(ctx context.Context, cfg config.Config, chromePath string, port int, out io.Writer) error {
	if chromePath != "" {
		service, err := startChrome(chromePath, port)
		if err != nil {
			return fmt.Errorf("starting %s: %w", chromePath, err)
		}
		defer func() {
			if err := service.Stop(); err != nil {
				glog.Warningf("Stopping %s: %v", chromePath, err)
			}
		}()
		cfg.Endpoint.URL = service.Endpoint()
		cfg.Endpoint.Capabilities = ""
	}
	return run(ctx, cfg, out)
}

// run watches the configured browser until ctx is done or the session ends.
func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	wsURL, err := resolveEndpoint(ctx, cfg.Endpoint)
	if err != nil {
		return err
	}
	var dialOpts []devtools.DialOption
	if cfg.Endpoint.Proxy != "" {
		dialOpts = append(dialOpts, devtools.Proxy(cfg.Endpoint.Proxy))
	}
	var sessOpts []devtools.SessionOption
	if d := cfg.CommandTimeout(); d > 0 {
		sessOpts = append(sessOpts, devtools.CommandTimeout(d))
	}
	s, err := devtools.Connect(ctx, wsURL, dialOpts, sessOpts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}
	defer s.Close()
	glog.Infof("Connected to %s", wsURL)

	w := &watcher{ctx: ctx, out: out, autoResume: cfg.Debugger.AutoResume}
	if cfg.Runtime.Console {
		w.rt = runtimedomain.New(s)
		w.rt.ConsoleAPICalled.Subscribe(w.console)
		w.rt.ExceptionThrown.Subscribe(w.exception)
		if err := w.rt.Enable(ctx); err != nil {
			return fmt.Errorf("enabling Runtime: %w", err)
		}
	}
	if cfg.Debugger.Enabled {
		w.dbg = debuggerdomain.New(s)
		w.dbg.Paused.Subscribe(w.paused)
		w.dbg.BreakpointResolved.Subscribe(w.breakpointResolved)
		if err := w.setupDebugger(ctx, cfg.Debugger); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Done():
		return s.Err()
	}
}

// resolveEndpoint turns the configured endpoint into a websocket URL.
func resolveEndpoint(ctx context.Context, ec config.EndpointConfig) (string, error) {
	addr := ec.URL
	if addr == "" {
		data, err := os.ReadFile(ec.Capabilities)
		if err != nil {
			return "", err
		}
		caps := make(map[string]interface{})
		if err := json.Unmarshal(data, &caps); err != nil {
			return "", fmt.Errorf("%s: %v", ec.Capabilities, err)
		}
		// Selenium servers wrap the capabilities of a new session.
		if v, ok := caps["value"].(map[string]interface{}); ok {
			caps = v
			if c, ok := v["capabilities"].(map[string]interface{}); ok {
				caps = c
			}
		}
		if addr, err = chrome.DevToolsEndpoint(caps); err != nil {
			var ffErr error
			if addr, ffErr = firefox.DevToolsEndpoint(caps); ffErr != nil {
				return "", fmt.Errorf("%v; %v", err, ffErr)
			}
		}
	}
	if ec.Page && !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		return devtools.PageWebSocketURL(ctx, addr)
	}
	return devtools.BrowserWebSocketURL(ctx, addr)
}

type watcher struct {
	ctx        context.Context
	out        io.Writer
	autoResume bool
	dbg        *debuggerdomain.Adapter
	rt         *runtimedomain.Adapter
}

func (w *watcher) setupDebugger(ctx context.Context, dc config.DebuggerConfig) error {
	if _, err := w.dbg.Enable(ctx, nil); err != nil {
		return fmt.Errorf("enabling Debugger: %w", err)
	}
	if dc.PauseOnExceptions != "" {
		state := debugger.ExceptionsState(dc.PauseOnExceptions)
		if err := w.dbg.SetPauseOnExceptions(ctx, debugger.SetPauseOnExceptions(state)); err != nil {
			return fmt.Errorf("setting pause on exceptions: %w", err)
		}
	}
	for _, bp := range dc.Breakpoints {
		params := debugger.SetBreakpointByURL(bp.Line).WithURL(bp.URL)
		if bp.Condition != "" {
			params = params.WithCondition(bp.Condition)
		}
		ret, err := w.dbg.SetBreakpointByURL(ctx, params)
		if err != nil {
			return fmt.Errorf("setting breakpoint at %s:%d: %w", bp.URL, bp.Line, err)
		}
		fmt.Fprintf(w.out, "breakpoint %s set, %d location(s)\n", ret.BreakpointID, len(ret.Locations))
	}
	return nil
}

func (w *watcher) paused(ev *debugger.EventPaused) {
	where := "unknown location"
	if len(ev.CallFrames) > 0 {
		f := ev.CallFrames[0]
		name := f.FunctionName
		if name == "" {
			name = "(anonymous)"
		}
		where = name + " at " + f.URL
		if f.Location != nil {
			where += fmt.Sprintf(":%d", f.Location.LineNumber+1)
		}
	}
	fmt.Fprintf(w.out, "paused (%s) in %s\n", ev.Reason, where)
	if !w.autoResume {
		return
	}
	// Handlers run on the receive path, so the command goes out on its own
	// goroutine.
	go func() {
		if err := w.dbg.Resume(w.ctx, nil); err != nil {
			glog.Warningf("Resume failed: %v", err)
		}
	}()
}

func (w *watcher) breakpointResolved(ev *debugger.EventBreakpointResolved) {
	if ev.Location == nil {
		return
	}
	fmt.Fprintf(w.out, "breakpoint %s resolved in script %s line %d\n", ev.BreakpointID, ev.Location.ScriptID, ev.Location.LineNumber+1)
}

func (w *watcher) console(ev *runtime.EventConsoleAPICalled) {
	fmt.Fprintf(w.out, "console.%s: %s\n", ev.Type, formatArgs(ev.Args))
}

func (w *watcher) exception(ev *runtime.EventExceptionThrown) {
	if ev.ExceptionDetails == nil {
		return
	}
	d := ev.ExceptionDetails
	text := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		text = d.Exception.Description
	}
	fmt.Fprintf(w.out, "uncaught: %s (%s:%d)\n", text, d.URL, d.LineNumber+1)
}

// formatArgs renders console arguments the way a console would: strings
// unquoted, other values by their description.
func formatArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatArg(arg))
	}
	return strings.Join(parts, " ")
}

func formatArg(arg *runtime.RemoteObject) string {
	if arg == nil {
		return "undefined"
	}
	if len(arg.Value) > 0 {
		var s string
		if arg.Type == runtime.TypeString && json.Unmarshal(arg.Value, &s) == nil {
			return s
		}
		return string(arg.Value)
	}
	if arg.UnserializableValue != "" {
		return string(arg.UnserializableValue)
	}
	if arg.Description != "" {
		return arg.Description
	}
	return string(arg.Type)
}
