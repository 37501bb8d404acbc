package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blang/semver"
)

// MinProtocolVersion is the oldest DevTools protocol version this package
// speaks.
var MinProtocolVersion = semver.MustParse("1.3.0")

var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetHTTPClient returns the client used for the discovery endpoints. Callers
// may change it, e.g. to route discovery through a proxy.
func GetHTTPClient() *http.Client {
	return httpClient
}

// VersionInfo is the reply of the /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version,omitempty"`
	WebKitVersion        string `json:"WebKit-Version,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Protocol parses ProtocolVersion, e.g. "1.3".
func (v *VersionInfo) Protocol() (semver.Version, error) {
	return semver.ParseTolerant(v.ProtocolVersion)
}

// BrowserVersion splits Browser, e.g. "HeadlessChrome/76.0.3809.0", into the
// product name and its version. Only the first three version components are
// kept.
func (v *VersionInfo) BrowserVersion() (string, semver.Version, error) {
	name, ver := v.Browser, ""
	if i := strings.IndexByte(v.Browser, '/'); i >= 0 {
		name, ver = v.Browser[:i], v.Browser[i+1:]
	}
	if ver == "" {
		return name, semver.Version{}, fmt.Errorf("no version in browser string %q", v.Browser)
	}
	if parts := strings.Split(ver, "."); len(parts) > 3 {
		ver = strings.Join(parts[:3], ".")
	}
	sv, err := semver.ParseTolerant(ver)
	if err != nil {
		return name, semver.Version{}, fmt.Errorf("browser string %q: %v", v.Browser, err)
	}
	return name, sv, nil
}

// CheckProtocol returns an error if the endpoint speaks a protocol older
// than MinProtocolVersion.
func CheckProtocol(v *VersionInfo) error {
	pv, err := v.Protocol()
	if err != nil {
		return fmt.Errorf("bad protocol version %q: %v", v.ProtocolVersion, err)
	}
	if pv.LT(MinProtocolVersion) {
		return fmt.Errorf("protocol version %s is older than the minimum %s", pv, MinProtocolVersion)
	}
	return nil
}

// Target is one entry of the /json/list endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description,omitempty"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// endpointURL turns "host:port" or "http://host:port" plus a path into a URL.
func endpointURL(endpoint, path string) string {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/") + path
}

func getJSON(ctx context.Context, url string, v interface{}) error {
	debugLog("-> GET %s", url)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	request.Header.Add("Accept", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	buf, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	debugLog("<- %s\n%s", response.Status, buf)
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: bad status %s", url, response.Status)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("GET %s: %v", url, err)
	}
	return nil
}

// FetchVersion queries the /json/version endpoint of a browser started with
// --remote-debugging-port.
func FetchVersion(ctx context.Context, endpoint string) (*VersionInfo, error) {
	v := new(VersionInfo)
	if err := getJSON(ctx, endpointURL(endpoint, "/json/version"), v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListTargets queries the /json/list endpoint.
func ListTargets(ctx context.Context, endpoint string) ([]Target, error) {
	var targets []Target
	if err := getJSON(ctx, endpointURL(endpoint, "/json/list"), &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// BrowserWebSocketURL resolves endpoint to the browser-wide websocket URL.
// Websocket URLs are returned unchanged; HTTP endpoints are asked for their
// version, which must pass CheckProtocol.
func BrowserWebSocketURL(ctx context.Context, endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint, nil
	}
	v, err := FetchVersion(ctx, endpoint)
	if err != nil {
		return "", err
	}
	if err := CheckProtocol(v); err != nil {
		return "", err
	}
	if v.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s reported no webSocketDebuggerUrl", endpoint)
	}
	return v.WebSocketDebuggerURL, nil
}

// PageWebSocketURL returns the websocket URL of the first page target.
func PageWebSocketURL(ctx context.Context, endpoint string) (string, error) {
	targets, err := ListTargets(ctx, endpoint)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("%s has no debuggable page target", endpoint)
}
