package devtools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/mailru/easyjson"
)

// DefaultCommandTimeout is how long SendCommand waits for a response when the
// caller passes no timeout of its own.
const DefaultCommandTimeout = 30 * time.Second

// State is the lifecycle state of a Session.
type State int32

// The session states. A session only moves forward through them.
const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SessionOption configures a Session.
type SessionOption func(*Session) error

// CommandTimeout sets the timeout used by SendCommand calls that do not pass
// one.
func CommandTimeout(d time.Duration) SessionOption {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("command timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

type subscriber struct {
	id     uint64
	domain string
	fn     func(*Event)
}

// Session correlates commands with their responses over one Transport and
// fans incoming events out to subscribers.
//
// Any number of goroutines may call SendCommand concurrently. Frames are
// dispatched on the transport's receive goroutine in arrival order; event
// handlers run on that goroutine and must not wait for a command response,
// as the response can only be dispatched once the handler returns.
type Session struct {
	transport Transport
	timeout   time.Duration

	lastID  atomic.Int64
	pending *pendingTable
	state   atomic.Int32

	subMu   sync.RWMutex
	subs    []subscriber
	lastSub uint64

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// NewSession opens a session over an already connected transport.
func NewSession(t Transport, opts ...SessionOption) (*Session, error) {
	if t == nil {
		return nil, errors.New("devtools: nil transport")
	}
	s := &Session{
		transport: t,
		timeout:   DefaultCommandTimeout,
		pending:   newPendingTable(),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(Connecting))
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.state.Store(int32(Open))
	t.Listen(s.Dispatch, s.transportClosed)
	return s, nil
}

// Connect dials a websocket DevTools endpoint and opens a session on it.
func Connect(ctx context.Context, wsURL string, dialOpts []DialOption, opts ...SessionOption) (*Session, error) {
	ws, err := Dial(ctx, wsURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(ws, opts...)
	if err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reached Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session closed: ErrSessionClosed after Close, an error
// wrapping ErrConnectionLost after a transport failure, nil while open.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// SendCommand sends cmd and waits for its response, for timeout (the session
// default when timeout <= 0), or for ctx to be done, whichever comes first.
//
// On success the raw result object is returned. An error response is
// returned as a *ProtocolError. When the timeout expires the call returns an
// error wrapping ErrTimeout if throwIfNoResponse is set and (nil, nil)
// otherwise. Cancelling ctx always returns an error; it only stops the local
// wait, the endpoint may still execute the command.
func (s *Session) SendCommand(ctx context.Context, cmd Command, timeout time.Duration, throwIfNoResponse bool) (easyjson.RawMessage, error) {
	if st := s.State(); st != Open {
		return nil, fmt.Errorf("%s: %w (%v)", cmd.Method, ErrSessionNotOpen, st)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Method, err)
	}
	if timeout <= 0 {
		timeout = s.timeout
	}

	id := s.lastID.Add(1)
	frame, err := Encode(id, cmd)
	if err != nil {
		return nil, err
	}
	call := newPendingCall(id, cmd.Method, time.Now().Add(timeout))
	if err := s.pending.add(call); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	debugLog("-> %s", frame)
	sendCtx, cancelSend := context.WithDeadline(ctx, call.deadline)
	err = s.transport.Send(sendCtx, frame)
	expired := sendCtx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded)
	cancelSend()
	if err != nil && !expired {
		if _, ok := s.pending.take(id); ok {
			return nil, fmt.Errorf("sending %s (id %d): %w", cmd.Method, id, err)
		}
		// The session closed underneath us and already resolved the call.
	}
	// A send cut short by the deadline or ctx is settled by the select below.

	select {
	case o := <-call.done:
		return o.result, o.err
	case <-timer.C:
		if _, ok := s.pending.take(id); !ok {
			// Lost the race against a response or close; honour it.
			o := <-call.done
			return o.result, o.err
		}
		if throwIfNoResponse {
			return nil, fmt.Errorf("%s (id %d) got no response within %v: %w", cmd.Method, id, timeout, ErrTimeout)
		}
		debugLog("%s (id %d) got no response within %v", cmd.Method, id, timeout)
		return nil, nil
	case <-ctx.Done():
		if _, ok := s.pending.take(id); !ok {
			o := <-call.done
			return o.result, o.err
		}
		return nil, fmt.Errorf("%s (id %d): %w", cmd.Method, id, ctx.Err())
	}
}

// Dispatch handles one inbound frame. It is the transport's receive
// callback and never blocks on callers.
func (s *Session) Dispatch(frame []byte) {
	debugLog("<- %s", frame)
	switch f := Decode(frame).(type) {
	case *Response:
		s.resolve(f)
	case *Event:
		s.broadcast(f)
	case *Malformed:
		glog.Warningf("%v", f.Err)
	}
}

func (s *Session) resolve(r *Response) {
	call, ok := s.pending.take(r.ID)
	if !ok {
		if r.ID <= 0 || r.ID > s.lastID.Load() {
			glog.Warningf("devtools: discarding response for id %d, which was never issued", r.ID)
		} else {
			glog.Infof("devtools: discarding late response for id %d, call already completed", r.ID)
		}
		return
	}
	if r.Error != nil {
		r.Error.Method = call.method
		call.resolve(outcome{err: r.Error})
		return
	}
	call.resolve(outcome{result: r.Result})
}

func (s *Session) broadcast(ev *Event) {
	s.subMu.RLock()
	var subs []subscriber
	for _, sub := range s.subs {
		if sub.domain == "" || sub.domain == ev.Domain {
			subs = append(subs, sub)
		}
	}
	s.subMu.RUnlock()

	if len(subs) == 0 {
		debugLog("no subscriber for %s", ev.Method)
		return
	}
	for _, sub := range subs {
		s.deliver(sub, ev)
	}
}

func (s *Session) deliver(sub subscriber, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("devtools: handler for %s panicked: %v\n%s", ev.Method, r, debug.Stack())
		}
	}()
	sub.fn(ev)
}

// Subscribe registers fn for every event of the given domain, or of every
// domain when domain is empty. Handlers are called in registration order.
// The returned function removes the subscription.
func (s *Session) Subscribe(domain string, fn func(*Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.State() >= Closing {
		return func() {}
	}
	s.lastSub++
	id := s.lastSub
	s.subs = append(s.subs, subscriber{id: id, domain: domain, fn: fn})
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Close fails every pending call with ErrSessionClosed, drops all
// subscriptions and releases the transport. Calling Close again is a no-op.
func (s *Session) Close() error {
	return s.shutdown(ErrSessionClosed)
}

func (s *Session) transportClosed(err error) {
	if err == nil {
		err = errors.New("transport closed")
	}
	if s.State() == Open {
		glog.Warningf("devtools: transport failed: %v", err)
	}
	s.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, err))
}

func (s *Session) shutdown(cause error) error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))

		calls := s.pending.close()
		for _, c := range calls {
			c.resolve(outcome{err: fmt.Errorf("%s (id %d): %w", c.method, c.id, cause)})
		}
		if len(calls) > 0 {
			debugLog("failed %d pending calls: %v", len(calls), cause)
		}

		s.subMu.Lock()
		s.subs = nil
		s.subMu.Unlock()

		err = s.transport.Close()
		s.err = cause
		s.state.Store(int32(Closed))
		close(s.done)
	})
	return err
}
