// Package chrome locates the DevTools endpoint of Chrome sessions.
package chrome

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CapabilitiesKey is the key in the top-level Capabilities map under which
// ChromeDriver reports the Chrome-specific options.
const CapabilitiesKey = "goog:chromeOptions"

// DeprecatedCapabilitiesKey is the legacy version of CapabilitiesKey.
const DeprecatedCapabilitiesKey = "chromeOptions"

// EdgeCapabilitiesKey is where msedgedriver reports the same options.
const EdgeCapabilitiesKey = "ms:edgeOptions"

// CDPCapabilitiesKey is set by Selenium Grid 4 to the websocket URL of the
// session's DevTools endpoint.
const CDPCapabilitiesKey = "se:cdp"

// Capabilities holds the Chrome-specific capabilities that matter for
// DevTools access.
type Capabilities struct {
	// Path is the file path to the Chrome binary to use.
	Path string `json:"binary,omitempty"`
	// Args are the command-line arguments to pass to the Chrome binary, in
	// addition to the ChromeDriver-supplied ones.
	Args []string `json:"args,omitempty"`
	// DebuggerAddr is the TCP/IP address of a Chrome debugger server to connect
	// to.
	DebuggerAddr string `json:"debuggerAddress,omitempty"`
	// Use W3C mode, if true.
	W3C bool `json:"w3c"`
}

// RemoteDebuggingArgs returns the command-line arguments that make Chrome
// serve the DevTools protocol on port. headless adds --headless.
func RemoteDebuggingArgs(port int, userDataDir string, headless bool) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--no-first-run",
		"--no-default-browser-check",
	}
	if userDataDir != "" {
		args = append(args, "--user-data-dir="+userDataDir)
	}
	if headless {
		args = append(args, "--headless", "--disable-gpu")
	}
	return append(args, "about:blank")
}

// DevToolsEndpoint extracts the DevTools endpoint from the capabilities a
// WebDriver server returned for a new session. A Grid "se:cdp" websocket URL
// wins over a driver-reported debugger address ("host:port").
func DevToolsEndpoint(caps map[string]interface{}) (string, error) {
	if cdp, ok := caps[CDPCapabilitiesKey].(string); ok && cdp != "" {
		return cdp, nil
	}
	for _, key := range []string{CapabilitiesKey, EdgeCapabilitiesKey, DeprecatedCapabilitiesKey} {
		raw, ok := caps[key]
		if !ok {
			continue
		}
		c, err := decode(raw)
		if err != nil {
			return "", fmt.Errorf("capability %q: %v", key, err)
		}
		if c.DebuggerAddr != "" {
			return c.DebuggerAddr, nil
		}
	}
	return "", fmt.Errorf("capabilities carry neither %q nor a debuggerAddress", CDPCapabilitiesKey)
}

// decode accepts a Capabilities value or its generic JSON form.
func decode(raw interface{}) (*Capabilities, error) {
	switch v := raw.(type) {
	case Capabilities:
		return &v, nil
	case *Capabilities:
		return v, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	c := new(Capabilities)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
