package devtools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
	"github.com/tidwall/gjson"
)

var emptyObject = easyjson.RawMessage("{}")

// Command is a protocol command before a correlation id is assigned to it.
type Command struct {
	// Method is the domain qualified command name, e.g. "Debugger.enable".
	Method string
	// Params is encoded as the "params" object. Values implementing
	// easyjson.Marshaler (the generated cdproto types) are encoded with
	// easyjson, anything else with encoding/json. A nil value is sent as {}.
	Params interface{}
}

// Frame is a decoded inbound frame: *Response, *Event or *Malformed.
type Frame interface {
	isFrame()
}

// Response answers the command carrying the same ID.
type Response struct {
	ID     int64
	Result easyjson.RawMessage
	// Error is set when the endpoint rejected the command; Result is then
	// empty.
	Error *ProtocolError
}

// Event is an unsolicited notification pushed by the endpoint.
type Event struct {
	// Method is the full event name, Domain + "." + Name.
	Method string
	Domain string
	Name   string
	Params easyjson.RawMessage
}

// Malformed is a frame that is neither a response nor an event.
type Malformed struct {
	Err *MalformedFrameError
}

func (*Response) isFrame()  {}
func (*Event) isFrame()     {}
func (*Malformed) isFrame() {}

// Encode returns the wire form of cmd under correlation id id.
func Encode(id int64, cmd Command) ([]byte, error) {
	if cmd.Method == "" {
		return nil, errors.New("devtools: command has no method")
	}
	params, err := encodeParams(cmd.Params)
	if err != nil {
		return nil, fmt.Errorf("devtools: encoding params of %s: %w", cmd.Method, err)
	}
	return easyjson.Marshal(&cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(cmd.Method),
		Params: params,
	})
}

func encodeParams(p interface{}) (easyjson.RawMessage, error) {
	if p == nil {
		return emptyObject, nil
	}
	if v := reflect.ValueOf(p); v.Kind() == reflect.Ptr && v.IsNil() {
		return emptyObject, nil
	}

	var (
		buf []byte
		err error
	)
	switch v := p.(type) {
	case easyjson.RawMessage:
		buf = v
	case json.RawMessage:
		buf = v
	case easyjson.Marshaler:
		buf, err = easyjson.Marshal(v)
	default:
		buf, err = json.Marshal(v)
	}
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 || string(buf) == "null" {
		return emptyObject, nil
	}
	if !gjson.ValidBytes(buf) || !gjson.ParseBytes(buf).IsObject() {
		return nil, fmt.Errorf("params must encode to a JSON object, got %.64s", buf)
	}
	return buf, nil
}

// Decode classifies an inbound frame. A frame with an "id" member is a
// response, one without is an event. Anything else is reported as Malformed.
func Decode(frame []byte) Frame {
	if !gjson.ValidBytes(frame) {
		return malformed("invalid JSON", frame)
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return malformed("not a JSON object", frame)
	}
	id := root.Get("id")
	if id.Exists() && id.Type != gjson.Number {
		return malformed("non-numeric id", frame)
	}

	var msg cdproto.Message
	if err := easyjson.Unmarshal(frame, &msg); err != nil {
		return malformed(err.Error(), frame)
	}

	if id.Exists() {
		resp := &Response{ID: msg.ID, Result: msg.Result}
		if msg.Error != nil {
			resp.Result = nil
			resp.Error = &ProtocolError{
				ID:      msg.ID,
				Code:    msg.Error.Code,
				Message: msg.Error.Message,
			}
		} else if len(resp.Result) == 0 {
			resp.Result = emptyObject
		}
		return resp
	}

	method := string(msg.Method)
	if method == "" {
		return malformed("neither id nor method", frame)
	}
	dot := strings.IndexByte(method, '.')
	if dot <= 0 || dot == len(method)-1 {
		return malformed(fmt.Sprintf("event method %q is not Domain.event", method), frame)
	}
	params := msg.Params
	if len(params) == 0 {
		params = emptyObject
	}
	return &Event{
		Method: method,
		Domain: method[:dot],
		Name:   method[dot+1:],
		Params: params,
	}
}

func malformed(reason string, frame []byte) *Malformed {
	raw := make([]byte, len(frame))
	copy(raw, frame)
	return &Malformed{Err: &MalformedFrameError{Reason: reason, Frame: raw}}
}

// unmarshal decodes raw into v, preferring the easyjson path generated for
// cdproto types.
func unmarshal(raw []byte, v interface{}) error {
	if u, ok := v.(easyjson.Unmarshaler); ok {
		return easyjson.Unmarshal(raw, u)
	}
	return json.Unmarshal(raw, v)
}
