package devtools

import (
	"fmt"
	"sync"
	"time"

	"github.com/mailru/easyjson"
)

// outcome is the terminal result of one command.
type outcome struct {
	result easyjson.RawMessage
	err    error
}

// pendingCall is a command waiting for its response. done has room for
// exactly one outcome and only the goroutine that took the call out of the
// table writes to it, so delivering never blocks.
type pendingCall struct {
	id       int64
	method   string
	deadline time.Time
	done     chan outcome
}

func newPendingCall(id int64, method string, deadline time.Time) *pendingCall {
	return &pendingCall{
		id:       id,
		method:   method,
		deadline: deadline,
		done:     make(chan outcome, 1),
	}
}

func (c *pendingCall) resolve(o outcome) {
	c.done <- o
}

// pendingTable maps correlation ids to in-flight calls.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[int64]*pendingCall
	closed bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[int64]*pendingCall)}
}

// add registers c. It fails with ErrSessionNotOpen once the table has been
// closed, so no call can slip in after close drained the table.
func (t *pendingTable) add(c *pendingCall) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrSessionNotOpen
	}
	if _, ok := t.calls[c.id]; ok {
		return fmt.Errorf("devtools: correlation id %d already pending", c.id)
	}
	t.calls[c.id] = c
	return nil
}

// take removes and returns the call registered under id. Only the first
// take for an id succeeds.
func (t *pendingTable) take(id int64) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return c, ok
}

// close rejects further adds and returns every call still pending. A second
// close returns nothing.
func (t *pendingTable) close() []*pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	calls := make([]*pendingCall, 0, len(t.calls))
	for id, c := range t.calls {
		calls = append(calls, c)
		delete(t.calls, id)
	}
	return calls
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
