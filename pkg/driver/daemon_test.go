package driver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus/bustest"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

const testPrefix = "test/bus"

var testTopics = mqtt.Topics{Prefix: testPrefix}

// replyFunc answers one daemon call. Returning ok=false sends no reply.
type replyFunc func(msg *bus.Message) (reply string, ok bool)

// fakeDaemon plays the device-management daemon, the configuration
// manager, the subscription service and the watchdog on one connection.
type fakeDaemon struct {
	t    *testing.T
	conn *bus.Conn

	mu       sync.Mutex
	calls    []*bus.Message
	signals  []*bus.Message
	handlers map[string]replyFunc
	configs  map[string]string

	replies chan *bus.Message
	stop    chan struct{}
	done    chan struct{}
}

func newFakeDaemon(t *testing.T, broker *bustest.Broker) *fakeDaemon {
	t.Helper()

	conn, err := bus.Dial(context.Background(), bus.Options{
		Dialer: broker.Dialer(),
		Topics: testTopics,
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	for _, name := range []string{
		protocol.DaemonName,
		protocol.ConfigManagerName,
		protocol.SubscriptionName,
		protocol.WatchdogName,
	} {
		if err := conn.RequestName(name); err != nil {
			t.Fatalf("RequestName(%s) error = %v", name, err)
		}
	}

	f := &fakeDaemon{
		t:        t,
		conn:     conn,
		handlers: make(map[string]replyFunc),
		configs:  make(map[string]string),
		replies:  make(chan *bus.Message, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.loop()
	t.Cleanup(func() {
		close(f.stop)
		<-f.done
		conn.Close()
	})
	return f
}

func (f *fakeDaemon) loop() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case msg := <-f.conn.Messages():
			f.handle(msg)
		}
	}
}

func (f *fakeDaemon) handle(msg *bus.Message) {
	switch msg.Type {
	case bus.TypeMethodReturn, bus.TypeError:
		f.replies <- msg
		return
	case bus.TypeSignal:
		f.mu.Lock()
		f.signals = append(f.signals, msg)
		f.mu.Unlock()
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, msg)
	handler, ok := f.handlers[msg.Member]
	f.mu.Unlock()
	if !ok {
		handler = f.defaultReply
	}

	if reply, send := handler(msg); send {
		if err := f.conn.Reply(msg, reply); err != nil && !errors.Is(err, bus.ErrClosed) {
			f.t.Errorf("daemon Reply() error = %v", err)
		}
	}
}

// defaultReply answers every daemon method successfully.
func (f *fakeDaemon) defaultReply(msg *bus.Message) (string, bool) {
	switch msg.Member {
	case protocol.MethodConnect:
		body, _ := msg.ArgString(0)
		var req connectRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return protocol.Reply(protocol.InvalidJSON, nil).String(), true
		}
		name := req.DeviceName
		if name == "" {
			name = req.DeviceLocalID
		}
		return okParams(map[string]string{"deviceCloudId": "cid-" + name}), true
	case protocol.MethodGetConfig:
		key, _ := msg.ArgString(0)
		f.mu.Lock()
		value, ok := f.configs[key]
		f.mu.Unlock()
		if !ok {
			return protocol.Reply(protocol.Unknown, nil).String(), true
		}
		raw, _ := json.Marshal(value)
		return protocol.Reply(protocol.Success, raw).String(), true
	default:
		return protocol.Reply(protocol.Success, nil).String(), true
	}
}

// okParams renders a success envelope with object params.
func okParams(params any) string {
	raw, _ := json.Marshal(params)
	return protocol.Reply(protocol.Success, raw).String()
}

// replyCode answers with a fixed status code.
func replyCode(code protocol.Code) replyFunc {
	return func(*bus.Message) (string, bool) {
		return protocol.Reply(code, nil).String(), true
	}
}

func (f *fakeDaemon) on(member string, fn replyFunc) {
	f.mu.Lock()
	f.handlers[member] = fn
	f.mu.Unlock()
}

func (f *fakeDaemon) setConfig(key, value string) {
	f.mu.Lock()
	f.configs[key] = value
	f.mu.Unlock()
}

// callsTo returns the recorded calls of member.
func (f *fakeDaemon) callsTo(member string) []*bus.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bus.Message
	for _, m := range f.calls {
		if m.Member == member {
			out = append(out, m)
		}
	}
	return out
}

// waitSignals waits until n signals of member have arrived.
func (f *fakeDaemon) waitSignals(member string, n int) []*bus.Message {
	f.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		var out []*bus.Message
		for _, m := range f.signals {
			if m.Member == member {
				out = append(out, m)
			}
		}
		f.mu.Unlock()
		if len(out) >= n {
			return out
		}
		if time.Now().After(deadline) {
			f.t.Fatalf("got %d %s signals, want %d", len(out), member, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// send issues a method call to the driver side and returns its serial.
func (f *fakeDaemon) send(dest, iface, member string, args ...any) uint32 {
	f.t.Helper()
	msg, err := bus.NewMethodCall(dest, protocol.NameToPath(dest), iface, member, args...)
	if err != nil {
		f.t.Fatalf("NewMethodCall() error = %v", err)
	}
	serial, err := f.conn.Send(msg)
	if err != nil {
		f.t.Fatalf("Send() error = %v", err)
	}
	return serial
}

// envelope waits for the next reply from the driver side.
func (f *fakeDaemon) envelope() protocol.Envelope {
	f.t.Helper()
	select {
	case msg := <-f.replies:
		text, err := msg.ArgString(0)
		if err != nil {
			f.t.Fatalf("reply arg error = %v", err)
		}
		env, err := protocol.ParseEnvelope([]byte(text))
		if err != nil {
			f.t.Fatalf("ParseEnvelope(%s) error = %v", text, err)
		}
		return env
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for driver reply")
		return protocol.Envelope{}
	}
}

// testOptions returns driver options wired to broker.
func testOptions(broker *bustest.Broker) Options {
	return Options{
		Module:               "led",
		Workers:              2,
		dialer:               broker.Dialer(),
		MQTT:                 MQTTConfig{TopicPrefix: testPrefix},
		CallTimeout:          2 * time.Second,
		ConnectRetryInterval: 10 * time.Millisecond,
	}
}

// startDriver runs a daemon and a driver on a fresh broker.
func startDriver(t *testing.T) (*Driver, *fakeDaemon, *bustest.Broker) {
	t.Helper()
	broker := bustest.NewBroker()
	daemon := newFakeDaemon(t, broker)
	d := mustInit(t, testOptions(broker))
	return d, daemon, broker
}

func mustInit(t *testing.T, opts Options) *Driver {
	t.Helper()
	d, err := Init(context.Background(), opts)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		d.Exit(context.Background()) //nolint:errcheck // test teardown
	})
	return d
}

func nopCallbacks() Callbacks {
	return Callbacks{
		GetProperties: func(Handle, []DeviceData, any) error { return nil },
		SetProperties: func(Handle, []DeviceData, any) error { return nil },
		CallService:   func(Handle, string, []DeviceData, []DeviceData, any) error { return nil },
	}
}

// countingDialer wraps a dialer, failing the first failures attempts.
type countingDialer struct {
	next     bus.Dialer
	failures int32
	attempts atomic.Int32
}

func (c *countingDialer) dial(ctx context.Context, clientID string, will *mqtt.Will) (bus.Transport, error) {
	n := c.attempts.Add(1)
	if n <= c.failures || c.next == nil {
		return nil, errors.New("broker unavailable")
	}
	return c.next(ctx, clientID, will)
}
