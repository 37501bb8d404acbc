// Package debugger exposes the Debugger domain of the DevTools protocol over
// a devtools.Session, using the generated cdproto types for its messages.
package debugger

import (
	"context"

	cdp "github.com/chromedp/cdproto/debugger"

	devtools "github.com/wanmail/selenium-devtools"
)

// Domain is the protocol domain name.
const Domain = "Debugger"

// Event names of the Debugger domain.
const (
	EventPaused              = "paused"
	EventResumed             = "resumed"
	EventScriptParsed        = "scriptParsed"
	EventScriptFailedToParse = "scriptFailedToParse"
	EventBreakpointResolved  = "breakpointResolved"
)

// Adapter is a typed façade over the Debugger domain of one session.
type Adapter struct {
	domain *devtools.Domain

	// Paused fires when the VM stops on a breakpoint, exception or step.
	Paused *devtools.EventSource[cdp.EventPaused]
	// Resumed fires when the VM resumes execution.
	Resumed *devtools.EventSource[cdp.EventResumed]
	// ScriptParsed fires for each script the VM parses.
	ScriptParsed *devtools.EventSource[cdp.EventScriptParsed]
	// ScriptFailedToParse fires for scripts with syntax errors.
	ScriptFailedToParse *devtools.EventSource[cdp.EventScriptFailedToParse]
	// BreakpointResolved fires when a breakpoint binds to a location.
	BreakpointResolved *devtools.EventSource[cdp.EventBreakpointResolved]
}

// New attaches a Debugger adapter to s. The adapter stops receiving events
// when s closes.
func New(s *devtools.Session) *Adapter {
	d := devtools.NewDomain(s, Domain)
	return &Adapter{
		domain:              d,
		Paused:              devtools.RegisterEvent[cdp.EventPaused](d, EventPaused),
		Resumed:             devtools.RegisterEvent[cdp.EventResumed](d, EventResumed),
		ScriptParsed:        devtools.RegisterEvent[cdp.EventScriptParsed](d, EventScriptParsed),
		ScriptFailedToParse: devtools.RegisterEvent[cdp.EventScriptFailedToParse](d, EventScriptFailedToParse),
		BreakpointResolved:  devtools.RegisterEvent[cdp.EventBreakpointResolved](d, EventBreakpointResolved),
	}
}

// Detach stops event delivery to the adapter.
func (a *Adapter) Detach() {
	a.domain.Detach()
}

// Enable enables the debugger for the target. params may be nil.
func (a *Adapter) Enable(ctx context.Context, params *cdp.EnableParams, opts ...devtools.CommandOption) (*cdp.EnableReturns, error) {
	return devtools.Execute[cdp.EnableReturns](ctx, a.domain, "enable", params, opts...)
}

// Disable disables the debugger.
func (a *Adapter) Disable(ctx context.Context, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "disable", nil, opts...)
}

// Pause stops on the next JavaScript statement.
func (a *Adapter) Pause(ctx context.Context, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "pause", nil, opts...)
}

// Resume resumes execution. params may be nil.
func (a *Adapter) Resume(ctx context.Context, params *cdp.ResumeParams, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "resume", params, opts...)
}

// StepOver steps over the statement. params may be nil.
func (a *Adapter) StepOver(ctx context.Context, params *cdp.StepOverParams, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "stepOver", params, opts...)
}

// StepInto steps into the function call. params may be nil.
func (a *Adapter) StepInto(ctx context.Context, params *cdp.StepIntoParams, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "stepInto", params, opts...)
}

// StepOut steps out of the function call.
func (a *Adapter) StepOut(ctx context.Context, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "stepOut", nil, opts...)
}

// SetBreakpointByURL sets a breakpoint at a location in every script whose
// URL matches, including scripts parsed later.
func (a *Adapter) SetBreakpointByURL(ctx context.Context, params *cdp.SetBreakpointByURLParams, opts ...devtools.CommandOption) (*cdp.SetBreakpointByURLReturns, error) {
	return devtools.Execute[cdp.SetBreakpointByURLReturns](ctx, a.domain, "setBreakpointByUrl", params, opts...)
}

// RemoveBreakpoint removes a breakpoint.
func (a *Adapter) RemoveBreakpoint(ctx context.Context, params *cdp.RemoveBreakpointParams, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "removeBreakpoint", params, opts...)
}

// GetScriptSource returns the source of a parsed script.
func (a *Adapter) GetScriptSource(ctx context.Context, params *cdp.GetScriptSourceParams, opts ...devtools.CommandOption) (*cdp.GetScriptSourceReturns, error) {
	return devtools.Execute[cdp.GetScriptSourceReturns](ctx, a.domain, "getScriptSource", params, opts...)
}

// SetPauseOnExceptions selects which exceptions pause execution.
func (a *Adapter) SetPauseOnExceptions(ctx context.Context, params *cdp.SetPauseOnExceptionsParams, opts ...devtools.CommandOption) error {
	return devtools.Do(ctx, a.domain, "setPauseOnExceptions", params, opts...)
}

// EvaluateOnCallFrame evaluates an expression on a paused call frame.
func (a *Adapter) EvaluateOnCallFrame(ctx context.Context, params *cdp.EvaluateOnCallFrameParams, opts ...devtools.CommandOption) (*cdp.EvaluateOnCallFrameReturns, error) {
	return devtools.Execute[cdp.EvaluateOnCallFrameReturns](ctx, a.domain, "evaluateOnCallFrame", params, opts...)
}
