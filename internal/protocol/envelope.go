package protocol

import (
	"bytes"
	"encoding/json"
)

// emptyParams is the params value used when a reply carries no parameters.
var emptyParams = json.RawMessage(`{}`)

// Envelope is the {code, message, params} structure wrapping every RPC
// result on the bus.
//
// Params holds raw JSON: an object for structured results, or a JSON string
// when the peer returns plain text (configuration blobs, for instance).
type Envelope struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Params  json.RawMessage `json:"params"`
}

// Reply builds an envelope for code with the table message.
// Params that are absent or not valid JSON become {}.
func Reply(code Code, params json.RawMessage) Envelope {
	if len(bytes.TrimSpace(params)) == 0 || !json.Valid(params) {
		params = emptyParams
	}
	return Envelope{
		Code:    code,
		Message: code.Message(),
		Params:  params,
	}
}

// ReplyErr builds an envelope from an error returned by a driver callback.
func ReplyErr(err error) Envelope {
	return Reply(CodeOf(err), nil)
}

// Bytes renders the envelope as JSON.
func (e Envelope) Bytes() []byte {
	if len(e.Params) == 0 {
		e.Params = emptyParams
	}
	data, err := json.Marshal(e)
	if err != nil {
		// Params is not valid JSON; fall back to an empty object.
		e.Params = emptyParams
		data, _ = json.Marshal(e) //nolint:errcheck // cannot fail with fixed params
	}
	return data
}

// String renders the envelope as a JSON string argument.
func (e Envelope) String() string {
	return string(e.Bytes())
}

// Err converts a non-success envelope into an *Error carrying its code.
func (e Envelope) Err() error {
	if e.Code == Success {
		return nil
	}
	return &Error{Code: e.Code, Detail: e.Message}
}

// ParamsText returns params as text: the content of a JSON string, or the
// compact JSON of any other value. Empty when params are absent or null.
func (e Envelope) ParamsText() string {
	raw := bytes.TrimSpace(e.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Param returns a top-level string member of object params.
// String params holding a JSON object are looked into as well.
func (e Envelope) Param(name string) (string, bool) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(e.ParamsText()), &members); err != nil {
		return "", false
	}
	raw, ok := members[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ParseEnvelope decodes a reply envelope. Code and message are required;
// params may be an object, a string or absent.
func ParseEnvelope(data []byte) (Envelope, error) {
	var wire struct {
		Code    *json.Number    `json:"code"`
		Message *string         `json:"message"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, Errorf(InvalidJSON, "envelope: %v", err)
	}
	if wire.Code == nil {
		return Envelope{}, NewError(InvalidJSON, "envelope: missing code")
	}
	if wire.Message == nil {
		return Envelope{}, NewError(InvalidJSON, "envelope: missing message")
	}
	code, err := wire.Code.Int64()
	if err != nil {
		return Envelope{}, Errorf(InvalidJSON, "envelope: code %q is not an integer", wire.Code.String())
	}

	env := Envelope{
		Code:    Code(code),
		Message: *wire.Message,
		Params:  wire.Params,
	}
	if len(env.Params) == 0 || bytes.Equal(bytes.TrimSpace(env.Params), []byte("null")) {
		env.Params = emptyParams
	}
	return env, nil
}

// Request is the {"params": ...} wrapper used by outbound calls and by
// inbound service invocations.
type Request struct {
	Params json.RawMessage `json:"params"`
}

// ParseRequest decodes a {"params": ...} body. A body without params yields
// empty params.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, Errorf(InvalidJSON, "request: %v", err)
	}
	return req, nil
}

// WrapParams renders {"params": v}.
func WrapParams(v any) (string, error) {
	data, err := json.Marshal(struct {
		Params any `json:"params"`
	}{Params: v})
	if err != nil {
		return "", Errorf(InvalidJSON, "request: %v", err)
	}
	return string(data), nil
}
