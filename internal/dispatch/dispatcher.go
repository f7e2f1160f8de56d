package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/correlator"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/workerpool"
)

// pollInterval is how long one loop iteration waits for inbound traffic
// before re-checking the run state.
const pollInterval = 10 * time.Millisecond

// Run states.
const (
	stateNormal int32 = iota
	stateExit
)

// Logger defines the logging interface used by the Dispatcher.
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

// TSLSource resolves the product model used to type inbound service input.
type TSLSource interface {
	TSL(ctx context.Context, productKey string) (*protocol.TSL, error)
}

// tslInvalidator is implemented by TSL sources that cache models. A
// notify_config for a product model key drops the cached copy.
type tslInvalidator interface {
	Invalidate(ctx context.Context, productKey string) error
}

// Options holds the collaborators of a Dispatcher.
type Options struct {
	// Conn is the bus connection. The Dispatcher is its only reader.
	Conn *bus.Conn

	// Registry resolves device-addressed calls.
	Registry *registry.Registry

	// Correlator receives method returns and errors.
	Correlator *correlator.Correlator

	// Pool runs device calls and configuration callbacks.
	Pool *workerpool.Pool

	// Subscriptions routes notify_config calls. Optional.
	Subscriptions *registry.ConfigSubscriptions

	// TSL types service input. Optional; without it input stays untyped.
	TSL TSLSource

	// Logger is optional.
	Logger Logger
}

// Dispatcher is the single reader of the bus connection. It routes
// replies to the correlator, answers introspection and driver queries in
// place, and hands device calls to the worker pool.
//
// Thread Safety: Run must be called once. Stop and Done are safe for
// concurrent use.
type Dispatcher struct {
	conn       *bus.Conn
	registry   *registry.Registry
	correlator *correlator.Correlator
	pool       *workerpool.Pool
	subs       *registry.ConfigSubscriptions
	tsl        TSLSource
	logger     Logger

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// ctx bounds TSL lookups made by workers; cancelled when Run returns.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher. Call Run to start routing.
func New(opts Options) (*Dispatcher, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("bus connection is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if opts.Correlator == nil {
		return nil, fmt.Errorf("correlator is required")
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	subs := opts.Subscriptions
	if subs == nil {
		subs = registry.NewConfigSubscriptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		conn:       opts.Conn,
		registry:   opts.Registry,
		correlator: opts.Correlator,
		pool:       opts.Pool,
		subs:       subs,
		tsl:        opts.TSL,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Run routes inbound traffic until Stop is called, ctx is done or the
// connection is lost. The worker pool is stopped before Run returns, but
// callbacks still running are not waited for, so a callback may stop the
// driver that runs it.
//
// Returns:
//   - nil after Stop
//   - ctx.Err() when ctx is done
//   - an error wrapping bus.ErrConnectionLost when the connection drops
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	defer d.pool.Stop()
	defer d.cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	d.logger.Debug("dispatch loop started", "workers", d.pool.Size())

	for {
		if d.state.Load() == stateExit {
			d.logger.Debug("dispatch loop stopped")
			return nil
		}

		select {
		case msg := <-d.conn.Messages():
			d.route(msg)
			d.drain()
		case <-ticker.C:
		case <-d.stop:
		case <-ctx.Done():
			return ctx.Err()
		case <-d.conn.Lost():
			if d.state.Load() == stateExit {
				return nil
			}
			err := d.conn.Err()
			if err == nil {
				err = bus.ErrConnectionLost
			}
			d.logger.Error("dispatch loop lost bus connection", "error", err)
			return err
		}
	}
}

// drain routes every message already queued without waiting.
func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.conn.Messages():
			d.route(msg)
		default:
			return
		}
	}
}

// Stop switches the loop to the exit state. Run returns after its current
// iteration. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.state.Store(stateExit)
		close(d.stop)
	})
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// route classifies one inbound message.
func (d *Dispatcher) route(msg *bus.Message) {
	if msg.IsReply() {
		d.correlator.Deliver(msg)
		return
	}

	if cloudID, ok := deviceTarget(msg); ok {
		if msg.Type == bus.TypeMethodCall {
			d.handleDevice(msg, cloudID)
		}
		return
	}

	if msg.Interface == protocol.PropertiesInterface {
		if msg.Type == bus.TypeMethodCall {
			d.reply(msg)
		}
		return
	}

	if msg.Type != bus.TypeMethodCall {
		d.logger.Debug("dropping unaddressed bus message", "type", msg.Type, "member", msg.Member)
		return
	}

	switch msg.Member {
	case protocol.MethodIntrospect, protocol.MethodGetDeviceList:
		if module, ok := driverTarget(msg); ok {
			d.handleDriver(msg, module)
			return
		}
		d.logger.Debug("dropping driver call without driver address", "member", msg.Member)
	case protocol.MethodNotifyConfig:
		d.handleNotifyConfig(msg)
	case protocol.MethodConnectResultNotify:
		d.handleConnectResult(msg)
	default:
		d.logger.Debug("dropping unhandled method call", "member", msg.Member, "sender", msg.Sender)
	}
}

// handleDevice answers or queues a call addressed to a device object.
func (d *Dispatcher) handleDevice(msg *bus.Message, cloudID string) {
	if msg.Member == protocol.MethodIntrospect {
		d.reply(msg, deviceIntrospection(cloudID))
		return
	}

	if _, ok := d.registry.ByCloudID(cloudID); !ok {
		d.logger.Debug("dropping call for unknown device", "cloud_id", cloudID, "member", msg.Member)
		return
	}

	if msg.Member != protocol.MethodCallServices {
		d.logger.Warn("unsupported device method", "cloud_id", cloudID, "member", msg.Member)
		d.reply(msg, protocol.Reply(protocol.InvalidParam, nil).String())
		return
	}

	service, err := msg.ArgString(0)
	if err != nil || service == "" {
		d.reply(msg, protocol.Reply(protocol.InvalidParam, nil).String())
		return
	}
	// A missing params argument is treated as an empty request.
	params, _ := msg.ArgString(1) //nolint:errcheck // optional argument

	call := serviceCall{msg: msg, cloudID: cloudID, service: service, params: params}
	if err := d.pool.Submit(func() { d.execute(call) }); err != nil {
		d.logger.Warn("device call not queued", "cloud_id", cloudID, "service", service, "error", err)
	}
}

// reply sends a method return for msg, logging failures.
func (d *Dispatcher) reply(msg *bus.Message, args ...any) {
	if err := d.conn.Reply(msg, args...); err != nil {
		if errors.Is(err, bus.ErrClosed) {
			return
		}
		d.logger.Warn("sending reply", "member", msg.Member, "sender", msg.Sender, "error", err)
	}
}

// deviceTarget extracts the cloud ID a message addresses, checking the
// path, then the interface, then the destination.
func deviceTarget(msg *bus.Message) (string, bool) {
	switch {
	case strings.HasPrefix(msg.Path, protocol.DevicePathPrefix):
		return strings.TrimPrefix(msg.Path, protocol.DevicePathPrefix), true
	case strings.HasPrefix(msg.Interface, protocol.DeviceNamePrefix):
		return strings.TrimPrefix(msg.Interface, protocol.DeviceNamePrefix), true
	case strings.HasPrefix(msg.Destination, protocol.DeviceNamePrefix):
		return strings.TrimPrefix(msg.Destination, protocol.DeviceNamePrefix), true
	}
	return "", false
}

// driverTarget extracts the driver module a message addresses.
func driverTarget(msg *bus.Message) (string, bool) {
	switch {
	case strings.HasPrefix(msg.Path, protocol.DriverPathPrefix):
		return strings.TrimPrefix(msg.Path, protocol.DriverPathPrefix), true
	case strings.HasPrefix(msg.Interface, protocol.DriverNamePrefix):
		return strings.TrimPrefix(msg.Interface, protocol.DriverNamePrefix), true
	case strings.HasPrefix(msg.Destination, protocol.DriverNamePrefix):
		return strings.TrimPrefix(msg.Destination, protocol.DriverNamePrefix), true
	}
	return "", false
}
