package devtools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a duplex channel of JSON text frames to a debugging endpoint.
type Transport interface {
	// Send writes one frame, giving up once ctx is done. It must be safe for
	// concurrent use.
	Send(ctx context.Context, frame []byte) error
	// Listen starts delivering inbound frames to onMessage, one at a time and
	// in arrival order. onClose is called once when the channel ends, with a
	// nil error if it was closed locally. Listen is called at most once.
	Listen(onMessage func(frame []byte), onClose func(err error))
	// Close releases the channel.
	Close() error
}

// DialOption configures a websocket Dial.
type DialOption func(*dialConfig) error

type dialConfig struct {
	dialer    websocket.Dialer
	header    http.Header
	readLimit int64
}

// Header adds HTTP headers to the websocket handshake request.
func Header(h http.Header) DialOption {
	return func(c *dialConfig) error {
		if c.header == nil {
			c.header = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
		return nil
	}
}

// Proxy dials the endpoint through the given proxy. Both http and socks5
// proxy URLs are accepted.
func Proxy(proxyURL string) DialOption {
	return func(c *dialConfig) error {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("invalid proxy URL %q: %v", proxyURL, err)
		}
		switch u.Scheme {
		case "http", "socks5":
		default:
			return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		c.dialer.Proxy = http.ProxyURL(u)
		return nil
	}
}

// HandshakeTimeout bounds the websocket opening handshake.
func HandshakeTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) error {
		if d <= 0 {
			return fmt.Errorf("handshake timeout must be positive, got %v", d)
		}
		c.dialer.HandshakeTimeout = d
		return nil
	}
}

// ReadLimit caps the size of one inbound frame. Zero means no limit.
func ReadLimit(n int64) DialOption {
	return func(c *dialConfig) error {
		if n < 0 {
			return fmt.Errorf("read limit must not be negative, got %d", n)
		}
		c.readLimit = n
		return nil
	}
}

// WebSocket is a Transport over a gorilla websocket connection.
type WebSocket struct {
	conn *websocket.Conn

	// writeSem holds one token; a writer owns the connection while it has it.
	writeSem chan struct{}

	listenOnce sync.Once
	closeOnce  sync.Once
	closeMu    sync.Mutex
	closed     bool
}

// Dial opens a websocket to a DevTools endpoint such as
// ws://127.0.0.1:9222/devtools/browser/<id>.
func Dial(ctx context.Context, wsURL string, opts ...DialOption) (*WebSocket, error) {
	cfg := &dialConfig{
		dialer: websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
			// Chrome can send very large frames, e.g. script sources.
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 14,
		},
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	conn, resp, err := cfg.dialer.DialContext(ctx, wsURL, cfg.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %v (HTTP %s)", wsURL, err, resp.Status)
		}
		return nil, fmt.Errorf("dialing %s: %v", wsURL, err)
	}
	if cfg.readLimit > 0 {
		conn.SetReadLimit(cfg.readLimit)
	}
	debugLog("connected to %s", wsURL)
	return &WebSocket{conn: conn, writeSem: make(chan struct{}, 1)}, nil
}

// Send implements Transport. The write is bounded by ctx's deadline and cut
// short when ctx is cancelled. A frame cut short leaves the stream unusable,
// so any write error tears the connection down.
func (w *WebSocket) Send(ctx context.Context, frame []byte) error {
	select {
	case w.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.writeSem }()
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	w.conn.SetWriteDeadline(deadline)
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		w.conn.NetConn().SetWriteDeadline(time.Now())
		close(interrupted)
	})
	err := w.conn.WriteMessage(websocket.TextMessage, frame)
	if !stop() {
		// The next writer must not inherit the expired deadline.
		<-interrupted
	}
	if err != nil {
		w.conn.Close()
	}
	return err
}

// Listen implements Transport.
func (w *WebSocket) Listen(onMessage func([]byte), onClose func(error)) {
	w.listenOnce.Do(func() {
		go w.readLoop(onMessage, onClose)
	})
}

func (w *WebSocket) readLoop(onMessage func([]byte), onClose func(error)) {
	for {
		_, frame, err := w.conn.ReadMessage()
		if err != nil {
			w.closeMu.Lock()
			local := w.closed
			w.closeMu.Unlock()
			if local {
				err = nil
			}
			onClose(err)
			return
		}
		onMessage(frame)
	}
}

// Close implements Transport. It sends a close frame and tears down the
// connection without waiting for the peer or for a blocked Send.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closeMu.Lock()
		w.closed = true
		w.closeMu.Unlock()

		// WriteControl may run beside a blocked Send and gives up at its own
		// deadline; closing the conn then fails that Send.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		err = w.conn.Close()
		if err == nil && werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			debugLog("writing close frame: %v", werr)
		}
	})
	return err
}
