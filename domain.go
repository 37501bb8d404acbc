package devtools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/mailru/easyjson"
)

// CommandOption adjusts a single domain command.
type CommandOption func(*commandConfig)

type commandConfig struct {
	timeout time.Duration
	throw   bool
}

// WithTimeout overrides the session's command timeout for one command.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *commandConfig) {
		c.timeout = d
	}
}

// IgnoreNoResponse makes a command that times out return an empty result
// instead of an error.
func IgnoreNoResponse() CommandOption {
	return func(c *commandConfig) {
		c.throw = false
	}
}

// Domain is the plumbing shared by protocol domain adapters: it qualifies
// command names and routes the domain's events to typed event sources.
type Domain struct {
	session *Session
	name    string

	mu     sync.RWMutex
	events map[string]func(easyjson.RawMessage) error

	unsubscribe func()
}

// NewDomain attaches a domain named name (e.g. "Debugger") to s.
func NewDomain(s *Session, name string) *Domain {
	d := &Domain{
		session: s,
		name:    name,
		events:  make(map[string]func(easyjson.RawMessage) error),
	}
	d.unsubscribe = s.Subscribe(name, d.dispatch)
	return d
}

// Name returns the protocol domain name.
func (d *Domain) Name() string { return d.name }

// Session returns the session the domain sends commands over.
func (d *Domain) Session() *Session { return d.session }

// Detach stops event delivery to the domain's event sources.
func (d *Domain) Detach() {
	d.unsubscribe()
}

func (d *Domain) dispatch(ev *Event) {
	d.mu.RLock()
	handle, ok := d.events[ev.Name]
	d.mu.RUnlock()
	if !ok {
		// Newer endpoints send events nobody modelled yet.
		debugLog("ignoring unregistered event %s", ev.Method)
		return
	}
	if err := handle(ev.Params); err != nil {
		glog.Warningf("devtools: dropping %s: %v", ev.Method, err)
	}
}

// EventSource delivers one kind of event, decoded into T.
type EventSource[T any] struct {
	mu       sync.RWMutex
	handlers []eventHandler[T]
	lastID   uint64
}

type eventHandler[T any] struct {
	id uint64
	fn func(*T)
}

// Subscribe registers fn. Handlers run on the session's receive goroutine in
// registration order. The returned function removes fn.
func (e *EventSource[T]) Subscribe(fn func(*T)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastID++
	id := e.lastID
	e.handlers = append(e.handlers, eventHandler[T]{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, h := range e.handlers {
			if h.id == id {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

func (e *EventSource[T]) snapshot() []eventHandler[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.handlers) == 0 {
		return nil
	}
	return append([]eventHandler[T](nil), e.handlers...)
}

// RegisterEvent routes the event Domain.name to the returned source, with
// the payload decoded into a fresh T per event.
func RegisterEvent[T any](d *Domain, name string) *EventSource[T] {
	src := &EventSource[T]{}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[name] = func(raw easyjson.RawMessage) error {
		handlers := src.snapshot()
		if handlers == nil {
			return nil
		}
		v := new(T)
		if err := unmarshal(raw, v); err != nil {
			return err
		}
		for _, h := range handlers {
			h.fn(v)
		}
		return nil
	}
	return src
}

// Execute sends the command Domain.verb and decodes its result into a T.
// When the command times out under IgnoreNoResponse, a zero T is returned.
func Execute[T any](ctx context.Context, d *Domain, verb string, params interface{}, opts ...CommandOption) (*T, error) {
	raw, err := d.send(ctx, verb, params, opts)
	if err != nil {
		return nil, err
	}
	res := new(T)
	if raw == nil {
		return res, nil
	}
	if err := unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("devtools: decoding %s.%s result: %w", d.name, verb, err)
	}
	return res, nil
}

// Do sends the command Domain.verb, discarding its result.
func Do(ctx context.Context, d *Domain, verb string, params interface{}, opts ...CommandOption) error {
	_, err := d.send(ctx, verb, params, opts)
	return err
}

func (d *Domain) send(ctx context.Context, verb string, params interface{}, opts []CommandOption) (easyjson.RawMessage, error) {
	cfg := commandConfig{throw: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	cmd := Command{Method: d.name + "." + verb, Params: params}
	return d.session.SendCommand(ctx, cmd, cfg.timeout, cfg.throw)
}
