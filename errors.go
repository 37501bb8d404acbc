package devtools

import (
	"errors"
	"fmt"
)

// Errors returned by SendCommand when no response can be produced.
var (
	// ErrSessionNotOpen is returned for commands issued after the session
	// started closing.
	ErrSessionNotOpen = errors.New("devtools: session not open")
	// ErrSessionClosed is the outcome of calls still pending when Close is
	// called.
	ErrSessionClosed = errors.New("devtools: session closed")
	// ErrConnectionLost is the outcome of calls still pending when the
	// transport fails.
	ErrConnectionLost = errors.New("devtools: connection lost")
	// ErrTimeout is returned when no response arrives in time and the caller
	// asked for an error.
	ErrTimeout = errors.New("devtools: command timed out")
)

// ProtocolError is an error response sent by the remote endpoint for one
// command.
type ProtocolError struct {
	ID      int64
	Method  string
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("devtools: %s (%d)", e.Message, e.Code)
	}
	return fmt.Sprintf("devtools: %s: %s (%d)", e.Method, e.Message, e.Code)
}

// MalformedFrameError describes an inbound frame that could not be
// classified.
type MalformedFrameError struct {
	Reason string
	Frame  []byte
}

func (e *MalformedFrameError) Error() string {
	const max = 256
	frame := e.Frame
	if len(frame) > max {
		frame = frame[:max]
	}
	return fmt.Sprintf("devtools: malformed frame: %s: %q", e.Reason, frame)
}
