/*
Package devtools provides a client session for the Chrome DevTools protocol.

A Session multiplexes commands and events over one connection to a browser or
a page target. Commands are correlated with their responses by id; events are
delivered to subscribers in the order they arrive. Typed access to individual
protocol domains lives in the packages under domains/.

The DevTools endpoint can be a browser started with --remote-debugging-port,
one started with NewChromeService, or the "se:cdp" URL a Selenium Grid returns
for a session (see the chrome package).

Example usage:

	// Print every script the page parses.
	package main

	import (
		"context"
		"fmt"

		cdp "github.com/chromedp/cdproto/debugger"

		"github.com/wanmail/selenium-devtools"
		"github.com/wanmail/selenium-devtools/domains/debugger"
	)

	// Errors are ignored for brevity.

	func main() {
		ctx := context.Background()
		wsURL, _ := devtools.PageWebSocketURL(ctx, "http://127.0.0.1:9222")
		s, _ := devtools.Connect(ctx, wsURL, nil)
		defer s.Close()

		dbg := debugger.New(s)
		dbg.ScriptParsed.Subscribe(func(ev *cdp.EventScriptParsed) {
			fmt.Println(ev.URL)
		})
		dbg.Enable(ctx, nil)

		<-s.Done()
	}
*/
package devtools
