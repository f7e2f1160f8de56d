package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
)

// Default settings.
const (
	// DefaultInboxSize is the number of inbound messages buffered before
	// delivery blocks the transport.
	DefaultInboxSize = 1024

	// ownerProbeTimeout bounds how long a retained record is waited for.
	ownerProbeTimeout = 500 * time.Millisecond
)

// Logger defines the logging interface used by the Conn.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures Dial.
type Options struct {
	// Dialer opens the transport. Required.
	Dialer Dialer

	// Topics places the bus under a topic prefix.
	Topics mqtt.Topics

	// InboxSize overrides DefaultInboxSize.
	InboxSize int

	// Logger is optional.
	Logger Logger
}

// ownerRecord is the retained payload of a name ownership topic.
type ownerRecord struct {
	Owner string `json:"owner"`
	Since int64  `json:"since"`
}

// Conn is one bus connection.
//
// A Conn has a unique connection name and may own any number of
// well-known names. Messages addressed to the unique name or to an owned
// name arrive on Messages in transport order.
//
// Thread Safety:
//   - Send, RequestName, ReleaseName and NameHasOwner are safe for concurrent use.
//   - Messages should have a single reader.
type Conn struct {
	transport Transport
	topics    mqtt.Topics
	unique    string
	logger    Logger

	serial atomic.Uint32

	inbox chan *Message

	namesMu sync.Mutex
	names   map[string]struct{}

	lost     chan struct{}
	lostOnce sync.Once
	errMu    sync.RWMutex
	err      error

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a bus connection.
//
// The connection announces itself with a retained presence record. The
// transport's will clears that record, so names owned by a crashed
// connection are seen as unowned.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("bus: dialer is required")
	}
	size := opts.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	unique := uuid.NewString()
	will := &mqtt.Will{
		Topic:    opts.Topics.Presence(unique),
		Retained: true,
	}

	transport, err := opts.Dialer(ctx, unique, will)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		transport: transport,
		topics:    opts.Topics,
		unique:    unique,
		logger:    logger,
		inbox:     make(chan *Message, size),
		names:     make(map[string]struct{}),
		lost:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
	transport.SetOnLost(c.fail)

	if err := transport.Subscribe(c.topics.Inbox(unique), c.receive); err != nil {
		transport.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to inbox: %w", err)
	}

	presence, _ := json.Marshal(ownerRecord{Owner: unique, Since: time.Now().UnixMilli()}) //nolint:errcheck // fixed struct
	if err := transport.Publish(c.topics.Presence(unique), presence, true); err != nil {
		transport.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("publishing presence: %w", err)
	}

	logger.Debug("bus connection opened", "unique_name", unique)
	return c, nil
}

// UniqueName returns the connection's unique name.
func (c *Conn) UniqueName() string {
	return c.unique
}

// Messages returns the channel inbound messages are delivered on.
func (c *Conn) Messages() <-chan *Message {
	return c.inbox
}

// Lost is closed when the connection drops unexpectedly.
func (c *Conn) Lost() <-chan struct{} {
	return c.lost
}

// Err returns the reason the connection was lost, or nil.
func (c *Conn) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// Send assigns the next serial and publishes msg to its destination.
// It returns the serial used.
func (c *Conn) Send(msg *Message) (uint32, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}
	if msg.Destination == "" {
		return 0, ErrNoDestination
	}

	msg.Serial = c.serial.Add(1)
	msg.Sender = c.unique

	payload, err := msg.Marshal()
	if err != nil {
		return 0, err
	}
	if err := c.transport.Publish(c.topics.Inbox(msg.Destination), payload, false); err != nil {
		return 0, fmt.Errorf("sending %s %s: %w", msg.Type, msg.Member, err)
	}
	return msg.Serial, nil
}

// Reply sends a method return for call.
func (c *Conn) Reply(call *Message, args ...any) error {
	ret, err := NewMethodReturn(call, args...)
	if err != nil {
		return err
	}
	_, err = c.Send(ret)
	return err
}

// ReplyError sends an error reply for call.
func (c *Conn) ReplyError(call *Message, name, text string) error {
	_, err := c.Send(NewError(call, name, text))
	return err
}

// RequestName claims a well-known name for this connection. Messages
// addressed to the name are delivered on Messages from then on. Claiming
// an owned name replaces the previous owner.
func (c *Conn) RequestName(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := c.usable(); err != nil {
		return err
	}

	c.namesMu.Lock()
	defer c.namesMu.Unlock()

	if _, ok := c.names[name]; ok {
		return nil
	}
	if err := c.transport.Subscribe(c.topics.Inbox(name), c.receive); err != nil {
		return fmt.Errorf("requesting name %s: %w", name, err)
	}
	record, _ := json.Marshal(ownerRecord{Owner: c.unique, Since: time.Now().UnixMilli()}) //nolint:errcheck // fixed struct
	if err := c.transport.Publish(c.topics.NameOwner(name), record, true); err != nil {
		c.transport.Unsubscribe(c.topics.Inbox(name)) //nolint:errcheck // already failing
		return fmt.Errorf("requesting name %s: %w", name, err)
	}
	c.names[name] = struct{}{}
	c.logger.Debug("bus name acquired", "name", name)
	return nil
}

// ReleaseName gives up a well-known name. Releasing a name this
// connection does not own is not an error.
func (c *Conn) ReleaseName(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := c.usable(); err != nil {
		return err
	}

	c.namesMu.Lock()
	defer c.namesMu.Unlock()

	if _, ok := c.names[name]; !ok {
		return nil
	}
	return c.releaseLocked(name)
}

func (c *Conn) releaseLocked(name string) error {
	delete(c.names, name)
	if err := c.transport.Unsubscribe(c.topics.Inbox(name)); err != nil {
		return fmt.Errorf("releasing name %s: %w", name, err)
	}
	if err := c.transport.Publish(c.topics.NameOwner(name), nil, true); err != nil {
		return fmt.Errorf("releasing name %s: %w", name, err)
	}
	c.logger.Debug("bus name released", "name", name)
	return nil
}

// OwnsName reports whether this connection currently owns name.
func (c *Conn) OwnsName(name string) bool {
	c.namesMu.Lock()
	defer c.namesMu.Unlock()
	_, ok := c.names[name]
	return ok
}

// NameHasOwner reports whether any live connection owns name.
func (c *Conn) NameHasOwner(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	if c.OwnsName(name) {
		return true, nil
	}

	payload, ok, err := c.readRetained(ctx, c.topics.NameOwner(name))
	if err != nil || !ok {
		return false, err
	}
	var record ownerRecord
	if err := json.Unmarshal(payload, &record); err != nil || record.Owner == "" {
		return false, nil
	}
	if record.Owner == c.unique {
		return true, nil
	}

	// The record may be stale: the owner must still be present.
	_, alive, err := c.readRetained(ctx, c.topics.Presence(record.Owner))
	return alive, err
}

// readRetained waits briefly for the retained message on topic.
func (c *Conn) readRetained(ctx context.Context, topic string) ([]byte, bool, error) {
	if err := c.usable(); err != nil {
		return nil, false, err
	}

	got := make(chan []byte, 1)
	err := c.transport.Subscribe(topic, func(_ string, payload []byte) {
		select {
		case got <- payload:
		default:
		}
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", topic, err)
	}
	defer c.transport.Unsubscribe(topic) //nolint:errcheck // best effort

	timer := time.NewTimer(ownerProbeTimeout)
	defer timer.Stop()

	select {
	case payload := <-got:
		return payload, len(payload) > 0, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-c.lost:
		return nil, false, ErrConnectionLost
	}
}

// Close releases owned names, withdraws the presence record and closes
// the transport. Close is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		select {
		case <-c.lost:
		default:
			c.namesMu.Lock()
			for name := range c.names {
				if rerr := c.releaseLocked(name); rerr != nil {
					c.logger.Warn("releasing bus name on close", "name", name, "error", rerr)
				}
			}
			c.namesMu.Unlock()

			if perr := c.transport.Publish(c.topics.Presence(c.unique), nil, true); perr != nil {
				c.logger.Warn("clearing bus presence", "error", perr)
			}
		}
		close(c.closed)
		err = c.transport.Close()
	})
	return err
}

// receive is the transport handler for every inbox topic.
func (c *Conn) receive(topic string, payload []byte) {
	msg, err := Unmarshal(payload)
	if err != nil {
		c.logger.Warn("dropping malformed bus message", "topic", topic, "error", err)
		return
	}
	if msg.Destination == "" {
		msg.Destination = mqtt.NameFromTopic(topic)
	}
	select {
	case c.inbox <- msg:
	case <-c.closed:
	}
}

// fail records an unexpected connection loss.
func (c *Conn) fail(err error) {
	c.lostOnce.Do(func() {
		c.errMu.Lock()
		if err == nil {
			c.err = ErrConnectionLost
		} else {
			c.err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		c.errMu.Unlock()
		close(c.lost)
		c.logger.Error("bus connection lost", "error", err)
	})
}

func (c *Conn) usable() error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case <-c.lost:
		return c.Err()
	default:
	}
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
