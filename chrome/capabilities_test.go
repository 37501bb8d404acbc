package chrome

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyCapabilities(t *testing.T) {
	data, err := json.Marshal(Capabilities{})
	if err != nil {
		t.Fatalf("json.Marshal(Capabilities{}) return error: %v", err)
	}
	got, want := string(data), `{"w3c":false}`
	if got != want {
		t.Fatalf("json.Marshal(Capabilities{}) = %q, want %q", got, want)
	}
}

func TestDevToolsEndpoint(t *testing.T) {
	tests := []struct {
		desc    string
		caps    map[string]interface{}
		want    string
		wantErr bool
	}{
		{
			desc: "grid cdp url",
			caps: map[string]interface{}{
				CDPCapabilitiesKey: "ws://grid:4444/session/abc/se/cdp",
				CapabilitiesKey:    map[string]interface{}{"debuggerAddress": "localhost:9222"},
			},
			want: "ws://grid:4444/session/abc/se/cdp",
		},
		{
			desc: "chromedriver debugger address",
			caps: map[string]interface{}{
				"browserName":   "chrome",
				CapabilitiesKey: map[string]interface{}{"debuggerAddress": "localhost:40123"},
			},
			want: "localhost:40123",
		},
		{
			desc: "edge",
			caps: map[string]interface{}{
				EdgeCapabilitiesKey: map[string]interface{}{"debuggerAddress": "localhost:50000"},
			},
			want: "localhost:50000",
		},
		{
			desc: "typed capabilities",
			caps: map[string]interface{}{
				DeprecatedCapabilitiesKey: Capabilities{DebuggerAddr: "127.0.0.1:9333"},
			},
			want: "127.0.0.1:9333",
		},
		{
			desc:    "firefox",
			caps:    map[string]interface{}{"browserName": "firefox"},
			wantErr: true,
		},
		{
			desc:    "malformed options",
			caps:    map[string]interface{}{CapabilitiesKey: map[string]interface{}{"args": "not a list"}},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		got, err := DevToolsEndpoint(tc.caps)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: DevToolsEndpoint() = %q, want error", tc.desc, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: DevToolsEndpoint() returned error: %v", tc.desc, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: DevToolsEndpoint() = %q, want %q", tc.desc, got, tc.want)
		}
	}
}

func TestRemoteDebuggingArgs(t *testing.T) {
	got := RemoteDebuggingArgs(9222, "/tmp/profile", true)
	want := []string{
		"--remote-debugging-port=9222",
		"--no-first-run",
		"--no-default-browser-check",
		"--user-data-dir=/tmp/profile",
		"--headless",
		"--disable-gpu",
		"about:blank",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RemoteDebuggingArgs() returned diff (-want/+got):\n%s", diff)
	}
}
