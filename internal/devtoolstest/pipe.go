// Package devtoolstest provides fakes for testing code that speaks the
// DevTools protocol: an in-memory transport and a scripted browser endpoint.
package devtoolstest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrPipeClosed is returned by Send after the pipe closed.
var ErrPipeClosed = errors.New("devtoolstest: pipe closed")

// Pipe is an in-memory transport. Frames the session sends are queued on
// Sent; the test plays the remote endpoint by calling Deliver, which runs the
// session's receive callback on the calling goroutine.
type Pipe struct {
	Sent chan []byte

	mu        sync.Mutex
	onMessage func([]byte)
	onClose   func(error)
	closed    bool
	sendErr   error
	stalled   bool
	done      chan struct{}
}

// NewPipe returns an open pipe.
func NewPipe() *Pipe {
	return &Pipe{Sent: make(chan []byte, 1024), done: make(chan struct{})}
}

// Send records frame. While stalled it blocks until ctx is done or the pipe
// closes, like a write to a peer that stopped reading.
func (p *Pipe) Send(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	if p.sendErr != nil {
		err := p.sendErr
		p.mu.Unlock()
		return err
	}
	stalled := p.stalled
	p.mu.Unlock()
	if stalled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrPipeClosed
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	p.Sent <- buf
	return nil
}

// Listen records the session callbacks.
func (p *Pipe) Listen(onMessage func([]byte), onClose func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = onMessage
	p.onClose = onClose
}

// Close marks the pipe closed and reports a local close asynchronously, as a
// network transport would from its read loop.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	onClose := p.onClose
	p.mu.Unlock()
	if onClose != nil {
		go onClose(nil)
	}
	return nil
}

// Closed reports whether Close or Fail was called.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailSends makes every later Send return err.
func (p *Pipe) FailSends(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Stall makes every later Send block until its context is done.
func (p *Pipe) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
}

// Deliver hands frame to the session as if it arrived from the endpoint.
func (p *Pipe) Deliver(frame string) {
	p.mu.Lock()
	onMessage := p.onMessage
	p.mu.Unlock()
	if onMessage != nil {
		onMessage([]byte(frame))
	}
}

// Fail simulates the connection dropping.
func (p *Pipe) Fail(err error) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	onClose := p.onClose
	p.mu.Unlock()
	if onClose != nil {
		onClose(err)
	}
}

// Next returns the next frame the session sent, failing t if none arrives
// within five seconds.
func (p *Pipe) Next(t testing.TB) gjson.Result {
	t.Helper()
	select {
	case frame := <-p.Sent:
		return gjson.ParseBytes(frame)
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame sent within 5s")
		return gjson.Result{}
	}
}

// Result builds a success response frame.
func Result(id int64, result string) string {
	frame, _ := sjson.Set("{}", "id", id)
	frame, _ = sjson.SetRaw(frame, "result", result)
	return frame
}

// Error builds an error response frame.
func Error(id int64, code int64, message string) string {
	frame, _ := sjson.Set("{}", "id", id)
	frame, _ = sjson.Set(frame, "error.code", code)
	frame, _ = sjson.Set(frame, "error.message", message)
	return frame
}

// Event builds an event frame.
func Event(method, params string) string {
	frame, _ := sjson.Set("{}", "method", method)
	frame, _ = sjson.SetRaw(frame, "params", params)
	return frame
}
