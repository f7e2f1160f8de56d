package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/correlator"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/dispatch"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/telemetry"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/tslcache"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/workerpool"
)

// Defaults applied by Init.
const (
	// DefaultCallTimeout bounds every call to the daemon.
	DefaultCallTimeout = 10 * time.Second

	// DefaultConnectRetryInterval is the wait between bus connection attempts.
	DefaultConnectRetryInterval = 5 * time.Second

	// moduleEnv names the variable supplying the module name when none is given.
	moduleEnv = "FUNCTION_NAME"
)

// Logger defines the logging interface used by the Driver.
// *logging.Logger satisfies this interface.
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

// Options configures Init.
type Options struct {
	// Module is the driver module name. Empty falls back to the
	// FUNCTION_NAME environment variable.
	Module string

	// Workers is the number of goroutines serving device calls. Must be at
	// least 1.
	Workers int

	// MQTT holds the broker settings. Its TopicPrefix places the bus.
	MQTT MQTTConfig

	// CallTimeout overrides DefaultCallTimeout.
	CallTimeout time.Duration

	// ConnectRetryInterval overrides DefaultConnectRetryInterval.
	ConnectRetryInterval time.Duration

	// TSLCache configures the product model cache. With an empty Path the
	// cache is kept in memory only.
	TSLCache TSLCacheConfig

	// Telemetry mirrors reported properties and events. Optional.
	Telemetry PointWriter

	// Logger is optional.
	Logger Logger

	// dialer replaces the MQTT dialer built from MQTT.
	dialer bus.Dialer
}

// Driver is a running driver module connected to the device-management
// daemon.
//
// Init connects to the bus, claims the driver name, starts the dispatch
// loop and registers the driver. Device calls arriving from the daemon are
// served by the registered Callbacks on the worker pool.
//
// Thread Safety: All methods are safe for concurrent use. Callbacks may
// call back into the Driver.
type Driver struct {
	module      string
	callTimeout time.Duration
	logger      Logger

	conn       *bus.Conn
	correlator *correlator.Correlator
	registry   *registry.Registry
	subs       *registry.ConfigSubscriptions
	pool       *workerpool.Pool
	dispatcher *dispatch.Dispatcher
	tsl        *tslcache.Cache
	tslStore   *tslcache.SQLiteStore
	telemetry  *telemetry.Recorder

	startedAt time.Time

	// Shutdown coordination
	done     chan struct{}
	errMu    sync.RWMutex
	err      error
	exitOnce sync.Once
	exitErr  error
}

// Init starts a driver module.
//
// Invalid options fail with INVALID_PARAM before anything is started. The
// bus connection is retried every ConnectRetryInterval until it succeeds or
// ctx is done. If another live process owns the driver's bus name, Init
// fails with ErrDriverRunning.
func Init(ctx context.Context, opts Options) (*Driver, error) {
	module := opts.Module
	if module == "" {
		module = os.Getenv(moduleEnv)
	}
	if err := protocol.ValidateText("module name", module); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		return nil, protocol.Errorf(protocol.InvalidParam, "workers must be at least 1, got %d", opts.Workers)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	retry := opts.ConnectRetryInterval
	if retry <= 0 {
		retry = DefaultConnectRetryInterval
	}
	dialer := opts.dialer
	if dialer == nil {
		dialer = bus.MQTTDialer(opts.MQTT.internal())
	}

	d := &Driver{
		module:      module,
		callTimeout: callTimeout,
		logger:      logger,
		correlator:  correlator.New(),
		registry:    registry.New(),
		subs:        registry.NewConfigSubscriptions(),
		telemetry:   telemetry.NewRecorder(opts.Telemetry, module),
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	d.correlator.SetLogger(logger)
	d.registry.SetLogger(logger)

	conn, err := connect(ctx, bus.Options{
		Dialer: dialer,
		Topics: mqtt.Topics{Prefix: opts.MQTT.TopicPrefix},
		Logger: logger,
	}, retry, logger)
	if err != nil {
		return nil, err
	}
	d.conn = conn

	if err := d.claimDriverName(ctx); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, err
	}

	if err := d.start(ctx, opts); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, err
	}

	if err := d.registerDriver(ctx); err != nil {
		d.shutdown()
		return nil, err
	}

	logger.Info("driver started", "module", module, "workers", opts.Workers)
	return d, nil
}

// connect dials the bus until it succeeds or ctx is done.
func connect(ctx context.Context, opts bus.Options, retry time.Duration, logger Logger) (*bus.Conn, error) {
	for {
		conn, err := bus.Dial(ctx, opts)
		if err == nil {
			return conn, nil
		}
		logger.Error("bus connection failed", "error", err, "retry_in", retry)

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connecting to bus: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// claimDriverName takes the driver's well-known name, refusing to start
// when a live process already owns it.
func (d *Driver) claimDriverName(ctx context.Context) error {
	name := protocol.DriverName(d.module)
	owned, err := d.conn.NameHasOwner(ctx, name)
	if err != nil {
		return fmt.Errorf("checking driver name: %w", err)
	}
	if owned {
		d.logger.Error("driver name already owned", "name", name)
		return fmt.Errorf("%w: %s", ErrDriverRunning, d.module)
	}
	if err := d.conn.RequestName(name); err != nil {
		return fmt.Errorf("claiming driver name: %w", err)
	}
	return nil
}

// start builds the worker pool, the product model cache and the dispatch
// loop, and runs the loop.
func (d *Driver) start(ctx context.Context, opts Options) error {
	pool, err := workerpool.New(opts.Workers)
	if err != nil {
		return protocol.Errorf(protocol.InvalidParam, "%v", err)
	}
	pool.SetLogger(d.logger)
	d.pool = pool

	var store tslcache.Store
	if opts.TSLCache.Path != "" {
		d.tslStore, err = tslcache.OpenSQLiteStore(ctx, database.Config{
			Path:        opts.TSLCache.Path,
			WALMode:     opts.TSLCache.WALMode,
			BusyTimeout: opts.TSLCache.BusyTimeout,
		})
		if err != nil {
			pool.Shutdown()
			return fmt.Errorf("opening tsl cache: %w", err)
		}
		store = d.tslStore
	}
	d.tsl = tslcache.New(tslcache.Options{
		Fetch:  d.fetchTSL,
		Store:  store,
		TTL:    time.Duration(opts.TSLCache.TTL) * time.Second,
		Logger: d.logger,
	})

	d.dispatcher, err = dispatch.New(dispatch.Options{
		Conn:          d.conn,
		Registry:      d.registry,
		Correlator:    d.correlator,
		Pool:          pool,
		Subscriptions: d.subs,
		TSL:           d.tsl,
		Logger:        d.logger,
	})
	if err != nil {
		pool.Shutdown()
		if d.tslStore != nil {
			d.tslStore.Close() //nolint:errcheck // already failing
		}
		return err
	}

	go func() {
		d.finish(d.dispatcher.Run(context.Background()))
	}()
	return nil
}

// finish records why the dispatch loop stopped.
func (d *Driver) finish(err error) {
	if err != nil {
		d.logger.Error("driver stopped", "module", d.module, "error", err)
	}
	d.errMu.Lock()
	d.err = err
	d.errMu.Unlock()
	close(d.done)
}

// driverRequest is the params body of registerDriver and unregisterDriver.
type driverRequest struct {
	StartupTime string `json:"driverStartupTime,omitempty"`
	LocalID     string `json:"driverLocalId"`
}

func (d *Driver) registerDriver(ctx context.Context) error {
	body, err := protocol.WrapParams(driverRequest{
		StartupTime: strconv.FormatInt(d.startedAt.UnixMilli(), 10),
		LocalID:     d.module,
	})
	if err != nil {
		return err
	}
	if _, err := d.callDaemon(ctx, protocol.MethodRegisterDriver, body); err != nil {
		d.logger.Error("registering driver failed", "module", d.module, "error", err)
		return err
	}
	return nil
}

func (d *Driver) unregisterDriver(ctx context.Context) error {
	body, err := protocol.WrapParams(driverRequest{LocalID: d.module})
	if err != nil {
		return err
	}
	_, err = d.callDaemon(ctx, protocol.MethodUnregisterDriver, body)
	return err
}

// Exit unregisters the driver, stops the dispatch loop, releases every bus
// name and closes the connection. Exit is idempotent; later calls return
// the first result.
//
// The returned error reports a failed unregisterDriver call. Shutdown
// completes either way. Exit does not wait for callbacks that are still
// running, so a callback may call Exit; its own reply is dropped.
func (d *Driver) Exit(ctx context.Context) error {
	d.exitOnce.Do(func() {
		if err := d.unregisterDriver(ctx); err != nil {
			d.logger.Warn("unregistering driver failed", "module", d.module, "error", err)
			d.exitErr = err
		}
		d.shutdown()
		d.logger.Info("driver exited", "module", d.module)
	})
	return d.exitErr
}

// shutdown stops the loop, waits for it, and releases resources.
func (d *Driver) shutdown() {
	d.dispatcher.Stop()
	<-d.dispatcher.Done()

	if err := d.conn.Close(); err != nil {
		d.logger.Warn("closing bus connection", "error", err)
	}
	if d.tslStore != nil {
		if err := d.tslStore.Close(); err != nil {
			d.logger.Warn("closing tsl cache", "error", err)
		}
	}
}

// Done is closed when the dispatch loop has stopped, either after Exit or
// because the bus connection was lost.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Err returns why the dispatch loop stopped: nil after Exit, an error
// matching ErrConnectionLost after a connection loss. It returns nil while
// the driver is running.
func (d *Driver) Err() error {
	d.errMu.RLock()
	defer d.errMu.RUnlock()
	return d.err
}

// Wait blocks until the dispatch loop stops and returns Err.
func (d *Driver) Wait() error {
	<-d.done
	return d.Err()
}

// ModuleName returns the driver module name.
func (d *Driver) ModuleName() string {
	return d.module
}

// StartedAt returns when the driver started.
func (d *Driver) StartedAt() time.Time {
	return d.startedAt
}

// Stats is a point-in-time view of the driver's internal queues.
type Stats struct {
	Devices        int
	OnlineDevices  int
	Workers        int
	QueuedTasks    int
	PendingCalls   int
	EarlyReplies   int
	CachedModels   int
	ConfigWatchers int
}

// Stats returns current queue and registry counts.
func (d *Driver) Stats() Stats {
	online := registry.Online
	return Stats{
		Devices:        d.registry.Count(),
		OnlineDevices:  len(d.registry.CloudIDs(&online)),
		Workers:        d.pool.Size(),
		QueuedTasks:    d.pool.Queued(),
		PendingCalls:   d.correlator.Pending(),
		EarlyReplies:   d.correlator.Early(),
		CachedModels:   d.tsl.Len(),
		ConfigWatchers: d.subs.Len(),
	}
}

// running reports whether the dispatch loop is still serving.
func (d *Driver) running() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// errStopped is returned by calls made after the loop stopped.
var errStopped = errors.New("driver: dispatch loop stopped")
