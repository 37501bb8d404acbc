package devtoolstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MethodNotFound is the code Chrome answers unknown commands with.
const MethodNotFound = -32601

// Handler answers one command. It returns the raw JSON result object, or a
// non-nil *Failure to answer with an error response.
type Handler func(params gjson.Result) (result string, fail *Failure)

// Failure is an error response.
type Failure struct {
	Code    int64
	Message string
}

// Browser is a fake DevTools endpoint. It serves /json/version, /json/list
// and a websocket on /devtools/ that answers commands with the registered
// handlers.
type Browser struct {
	*httptest.Server

	mu              sync.Mutex
	handlers        map[string]Handler
	conns           map[*websocket.Conn]*sync.Mutex
	received        []string
	protocolVersion string
	browser         string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewBrowser starts a fake endpoint reporting protocol version 1.3.
func NewBrowser() *Browser {
	b := &Browser{
		handlers:        make(map[string]Handler),
		conns:           make(map[*websocket.Conn]*sync.Mutex),
		protocolVersion: "1.3",
		browser:         "HeadlessChrome/76.0.3809.0",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", b.serveVersion)
	mux.HandleFunc("/json/list", b.serveList)
	mux.HandleFunc("/devtools/", b.serveWebSocket)
	b.Server = httptest.NewServer(mux)
	return b
}

// SetVersion changes what /json/version reports.
func (b *Browser) SetVersion(browser, protocol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.browser = browser
	b.protocolVersion = protocol
}

// Handle registers h for method, replacing any earlier handler.
func (b *Browser) Handle(method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method] = h
}

// Received returns the methods of every command received so far.
func (b *Browser) Received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.received...)
}

// WebSocketURL is the browser-wide DevTools websocket URL.
func (b *Browser) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(b.URL, "http") + "/devtools/browser/fake"
}

func (b *Browser) serveVersion(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	v := map[string]string{
		"Browser":              b.browser,
		"Protocol-Version":     b.protocolVersion,
		"User-Agent":           "Mozilla/5.0 (X11; Linux x86_64) " + b.browser,
		"V8-Version":           "7.6.303.0",
		"WebKit-Version":       "537.36",
		"webSocketDebuggerUrl": b.WebSocketURL(),
	}
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (b *Browser) serveList(w http.ResponseWriter, r *http.Request) {
	targets := []map[string]string{
		{
			"id":                   "service-worker",
			"type":                 "service_worker",
			"title":                "worker",
			"url":                  "https://example.com/sw.js",
			"webSocketDebuggerUrl": "ws" + strings.TrimPrefix(b.URL, "http") + "/devtools/page/sw",
		},
		{
			"id":                   "page-1",
			"type":                 "page",
			"title":                "about:blank",
			"url":                  "about:blank",
			"webSocketDebuggerUrl": "ws" + strings.TrimPrefix(b.URL, "http") + "/devtools/page/page-1",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(targets)
}

func (b *Browser) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeMu := new(sync.Mutex)
	b.mu.Lock()
	b.conns[conn] = writeMu
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req := gjson.ParseBytes(payload)
		method := req.Get("method").String()

		b.mu.Lock()
		b.received = append(b.received, method)
		h, ok := b.handlers[method]
		b.mu.Unlock()

		var reply string
		switch {
		case !ok:
			reply = Error(req.Get("id").Int(), MethodNotFound, fmt.Sprintf("'%s' wasn't found", method))
		default:
			result, fail := h(req.Get("params"))
			if fail != nil {
				reply = Error(req.Get("id").Int(), fail.Code, fail.Message)
			} else {
				if result == "" {
					result = "{}"
				}
				reply, _ = sjson.SetRaw(`{"id":0}`, "result", result)
				reply, _ = sjson.Set(reply, "id", req.Get("id").Int())
			}
		}

		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, []byte(reply))
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Emit pushes an event to every connected client.
func (b *Browser) Emit(method, params string) error {
	frame := []byte(Event(method, params))
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, writeMu := range b.conns {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, frame)
		writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Connections returns the number of open websocket clients.
func (b *Browser) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// DropConnections closes every websocket without a close handshake.
func (b *Browser) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.Close()
	}
}
