package bus

import (
	"encoding/json"
	"fmt"
)

// Type is the kind of bus message.
type Type string

// Message types.
const (
	TypeMethodCall   Type = "method_call"
	TypeMethodReturn Type = "method_return"
	TypeError        Type = "error"
	TypeSignal       Type = "signal"
)

// Well-known error names carried by error replies.
const (
	ErrorNameFailed        = "org.freedesktop.DBus.Error.Failed"
	ErrorNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// Message is one bus message as carried on the wire.
//
// Serial is assigned by the sending connection. Method returns and errors
// carry the serial of the call they answer in ReplySerial. Args are raw
// JSON values in call order.
type Message struct {
	Type        Type              `json:"type"`
	Serial      uint32            `json:"serial"`
	ReplySerial uint32            `json:"reply_serial,omitempty"`
	Sender      string            `json:"sender,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Path        string            `json:"path,omitempty"`
	Interface   string            `json:"interface,omitempty"`
	Member      string            `json:"member,omitempty"`
	ErrorName   string            `json:"error_name,omitempty"`
	Args        []json.RawMessage `json:"args,omitempty"`
}

// NewMethodCall builds a method call addressed to destination.
func NewMethodCall(destination, path, iface, member string, args ...any) (*Message, error) {
	return newMessage(TypeMethodCall, destination, path, iface, member, args)
}

// NewSignal builds a signal addressed to destination.
func NewSignal(destination, path, iface, member string, args ...any) (*Message, error) {
	return newMessage(TypeSignal, destination, path, iface, member, args)
}

func newMessage(typ Type, destination, path, iface, member string, args []any) (*Message, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:        typ,
		Destination: destination,
		Path:        path,
		Interface:   iface,
		Member:      member,
		Args:        raw,
	}, nil
}

// NewMethodReturn builds the return for call carrying args.
func NewMethodReturn(call *Message, args ...any) (*Message, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:        TypeMethodReturn,
		ReplySerial: call.Serial,
		Destination: call.Sender,
		Args:        raw,
	}, nil
}

// NewError builds an error reply for call.
func NewError(call *Message, name, text string) *Message {
	raw, _ := encodeArgs([]any{text}) //nolint:errcheck // strings always marshal
	return &Message{
		Type:        TypeError,
		ReplySerial: call.Serial,
		Destination: call.Sender,
		ErrorName:   name,
		Args:        raw,
	}
}

func encodeArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %w", ErrInvalidMessage, i, err)
		}
		raw[i] = data
	}
	return raw, nil
}

// IsReply reports whether m answers an earlier call.
func (m *Message) IsReply() bool {
	return m.Type == TypeMethodReturn || m.Type == TypeError
}

// ArgString returns argument i as a string.
func (m *Message) ArgString(i int) (string, error) {
	if i < 0 || i >= len(m.Args) {
		return "", fmt.Errorf("%w: index %d of %d", ErrNoArg, i, len(m.Args))
	}
	var s string
	if err := json.Unmarshal(m.Args[i], &s); err != nil {
		return "", fmt.Errorf("%w: index %d is not a string", ErrNoArg, i)
	}
	return s, nil
}

// ArgInt32 returns argument i as an int32.
func (m *Message) ArgInt32(i int) (int32, error) {
	if i < 0 || i >= len(m.Args) {
		return 0, fmt.Errorf("%w: index %d of %d", ErrNoArg, i, len(m.Args))
	}
	var n int32
	if err := json.Unmarshal(m.Args[i], &n); err != nil {
		return 0, fmt.Errorf("%w: index %d is not an int32", ErrNoArg, i)
	}
	return n, nil
}

// ErrorText returns the human-readable text of an error reply.
func (m *Message) ErrorText() string {
	text, err := m.ArgString(0)
	if err != nil {
		return m.ErrorName
	}
	return text
}

// Marshal renders the message as its wire payload.
func (m *Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return data, nil
}

// Unmarshal parses a wire payload.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	switch m.Type {
	case TypeMethodCall, TypeMethodReturn, TypeError, TypeSignal:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return &m, nil
}
