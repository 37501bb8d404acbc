// Package runtime exposes the Runtime domain of the DevTools protocol.
package runtime

import (
	"context"

	cdp "github.com/chromedp/cdproto/runtime"

	devtools "github.com/wanmail/selenium-devtools"
)

// Domain is the protocol domain name.
const Domain = "Runtime"

// Adapter is a typed façade over the Runtime domain of one session.
type Adapter struct {
	domain *devtools.Domain

	ConsoleAPICalled        *devtools.EventSource[cdp.EventConsoleAPICalled]
	ExceptionThrown         *devtools.EventSource[cdp.EventExceptionThrown]
	ExecutionContextCreated *devtools.EventSource[cdp.EventExecutionContextCreated]
}

// New attaches a Runtime adapter to s.
func New(s *devtools.Session) *Adapter {
	d := devtools.NewDomain(s, Domain)
	return &Adapter{
		domain:                  d,
		ConsoleAPICalled:        devtools.RegisterEvent[cdp.EventConsoleAPICalled](d, "consoleAPICalled"),
		ExceptionThrown:         devtools.RegisterEvent[cdp.EventExceptionThrown](d, "exceptionThrown"),
		ExecutionContextCreated: devtools.RegisterEvent[cdp.EventExecutionContextCreated](d, "executionContextCreated"),
	}
}

// Detach stops event delivery to the adapter.
func (a *Adapter) Detach() {
	a.domain.Detach()
}

// Enable starts execution context and console reporting.
func (a *Adapter) Enable(ctx context.Context, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "enable", nil, opts...)
}

// Disable stops reporting.
func (a *Adapter) Disable(ctx context.Context, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "disable", nil, opts...)
}

// Evaluate evaluates an expression in the global object.
func (a *Adapter) Evaluate(ctx context.Context, params *cdp.EvaluateParams, opts ...devtools.CommandOption) (*cdp.EvaluateReturns, error) {
	return devtools.Execute[cdp.EvaluateReturns](ctx, a.domain, "evaluate", params, opts...)
}
