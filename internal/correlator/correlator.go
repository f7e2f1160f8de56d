package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
)

// Defaults.
const (
	// DefaultTimeout is the wait applied by callers that have no timeout of their own.
	DefaultTimeout = 10 * time.Second

	// StaleAfter is the age at which an unclaimed early reply is discarded.
	StaleAfter = 10 * time.Second
)

// Domain errors for the correlator package.
//
//	if errors.Is(err, correlator.ErrTimeout) {
//	    // map to a TIMEOUT status
//	}
var (
	// ErrTimeout is returned when no reply arrives within the timeout.
	ErrTimeout = errors.New("correlator: timed out waiting for reply")

	// ErrNotRegistered is returned by Await for a serial without Register.
	ErrNotRegistered = errors.New("correlator: serial not registered")
)

// Logger defines the logging interface used by the Correlator.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// early is a reply that arrived before its caller registered.
type early struct {
	msg *bus.Message
	at  time.Time
}

// waiter is a registered call. ch has room for exactly one reply.
type waiter struct {
	ch        chan *bus.Message
	delivered bool
}

// Correlator matches replies to outstanding calls by serial.
//
// A reply may arrive before or after the caller registers; both orders
// complete the call exactly once. The dispatch loop delivers; callers
// register after sending and then await.
//
// All methods are safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	early   map[uint32]early
	waiting map[uint32]*waiter

	now    func() time.Time
	logger Logger
}

// New creates an empty Correlator.
func New() *Correlator {
	return &Correlator{
		early:   make(map[uint32]early),
		waiting: make(map[uint32]*waiter),
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the correlator.
func (c *Correlator) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Register records interest in the reply to serial. An early reply for the
// serial is claimed immediately. Registering a serial twice is a no-op.
func (c *Correlator) Register(serial uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	if _, ok := c.waiting[serial]; ok {
		return
	}
	w := &waiter{ch: make(chan *bus.Message, 1)}
	if e, ok := c.early[serial]; ok {
		delete(c.early, serial)
		w.ch <- e.msg
		w.delivered = true
	}
	c.waiting[serial] = w
}

// Deliver hands a reply to the call it answers. A reply with no registered
// caller is kept as an early arrival. It reports whether a waiting caller
// received the reply.
func (c *Correlator) Deliver(msg *bus.Message) bool {
	serial := msg.ReplySerial

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	if w, ok := c.waiting[serial]; ok {
		if w.delivered {
			c.logger.Debug("dropping duplicate reply", "reply_serial", serial)
			return false
		}
		w.delivered = true
		w.ch <- msg
		return true
	}

	if _, ok := c.early[serial]; ok {
		c.logger.Debug("dropping duplicate early reply", "reply_serial", serial)
		return false
	}
	c.early[serial] = early{msg: msg, at: c.now()}
	return false
}

// Await blocks until the reply for serial arrives, timeout elapses or ctx
// is done. A non-positive timeout means DefaultTimeout. The registration is
// removed on every outcome.
func (c *Correlator) Await(ctx context.Context, serial uint32, timeout time.Duration) (*bus.Message, error) {
	c.mu.Lock()
	w, ok := c.waiting[serial]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotRegistered, serial)
	}
	defer c.Cancel(serial)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: serial %d after %v", ErrTimeout, serial, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel drops the registration for serial.
func (c *Correlator) Cancel(serial uint32) {
	c.mu.Lock()
	delete(c.waiting, serial)
	c.mu.Unlock()
}

// Pending returns the number of registered calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}

// Early returns the number of unclaimed early replies.
func (c *Correlator) Early() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.early)
}

// pruneLocked discards early replies older than StaleAfter.
func (c *Correlator) pruneLocked() {
	if len(c.early) == 0 {
		return
	}
	cutoff := c.now().Add(-StaleAfter)
	for serial, e := range c.early {
		if e.at.Before(cutoff) {
			delete(c.early, serial)
			c.logger.Debug("pruned stale reply", "reply_serial", serial)
		}
	}
}
