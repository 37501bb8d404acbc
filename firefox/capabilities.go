// Package firefox locates the DevTools endpoint of Firefox sessions, which
// serve the protocol through Firefox's remote agent.
package firefox

import (
	"fmt"
	"strconv"
)

// CapabilitiesKey is the name of the Firefox-specific key in the WebDriver
// capabilities object.
const CapabilitiesKey = "moz:firefoxOptions"

// DebuggerAddressKey is the capability that asks geckodriver to enable the
// remote agent. Requested as true, geckodriver answers with the "host:port"
// of the agent.
const DebuggerAddressKey = "moz:debuggerAddress"

// Capabilities provides the Firefox-specific options that matter for
// DevTools access.
type Capabilities struct {
	// Binary is the absolute path of the Firefox binary, e.g. /usr/bin/firefox
	// or /Applications/Firefox.app/Contents/MacOS/firefox. If left undefined,
	// geckodriver will attempt to deduce the default location of Firefox on
	// the current system.
	Binary string `json:"binary,omitempty"`
	// Args are the command line arguments to pass to the Firefox binary. These
	// must include the leading -- where required e.g. ["--devtools"].
	Args []string `json:"args,omitempty"`
	// Map of preference name to preference value, which can be a string, a
	// boolean or an integer.
	Prefs map[string]interface{} `json:"prefs,omitempty"`
}

// RemoteAgentArgs returns the command-line arguments that make Firefox serve
// the DevTools protocol on port with the profile in profileDir.
func RemoteAgentArgs(port int, profileDir string, headless bool) []string {
	args := []string{"--remote-debugging-port=" + strconv.Itoa(port), "--no-remote"}
	if profileDir != "" {
		args = append(args, "--profile", profileDir)
	}
	if headless {
		args = append(args, "--headless")
	}
	return args
}

// remoteAgentPrefs are the preferences the remote agent needs in a fresh
// profile.
var remoteAgentPrefs = map[string]interface{}{
	"remote.enabled":                    true,
	"remote.active-protocols":           2,
	"browser.shell.checkDefaultBrowser": false,
}

// Request returns the capabilities for a new WebDriver session that asks
// geckodriver for the remote agent address. Preferences already set in c are
// kept.
func Request(c Capabilities) map[string]interface{} {
	prefs := make(map[string]interface{}, len(c.Prefs)+len(remoteAgentPrefs))
	for k, v := range remoteAgentPrefs {
		prefs[k] = v
	}
	for k, v := range c.Prefs {
		prefs[k] = v
	}
	c.Prefs = prefs
	return map[string]interface{}{
		"browserName":      "firefox",
		CapabilitiesKey:    c,
		DebuggerAddressKey: true,
	}
}

// DevToolsEndpoint extracts the remote agent address from the capabilities
// geckodriver returned for a new session.
func DevToolsEndpoint(caps map[string]interface{}) (string, error) {
	switch addr := caps[DebuggerAddressKey].(type) {
	case string:
		if addr != "" {
			return addr, nil
		}
	case bool:
		if addr {
			return "", fmt.Errorf("capability %q was requested but not answered with an address", DebuggerAddressKey)
		}
	}
	return "", fmt.Errorf("capabilities carry no %q", DebuggerAddressKey)
}
