// LED demo driver.
//
// This is the entry point of a demo driver built on the driver SDK. It
// registers the lamps listed in its driver configuration, serves property
// and service calls for them, reports simulated readings, and feeds the
// gateway watchdog until it receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/api"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-driver-sdk/pkg/driver"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// reportInterval is how often simulated readings are reported.
	reportInterval = 5 * time.Second

	// watchdogThread names the thread announced to the gateway watchdog.
	watchdogThread = "main"

	// exitTimeout bounds driver unregistration at shutdown.
	exitTimeout = 10 * time.Second
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown and an error when startup fails or the
// bus connection is lost.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LED driver",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	drv, err := driver.Init(ctx, driverOptions(cfg, influxClient, log))
	if err != nil {
		return fmt.Errorf("starting driver: %w", err)
	}
	defer func() {
		exitCtx, cancel := context.WithTimeout(context.Background(), exitTimeout)
		defer cancel()
		if exitErr := drv.Exit(exitCtx); exitErr != nil {
			log.Warn("driver exit", "error", exitErr)
		}
		log.Info("LED driver stopped")
	}()

	if err := drv.RegisterConfigChangedCallback(ctx, drv.ModuleName(), func(key, _ string) error {
		log.Info("driver config changed", "key", key)
		return nil
	}); err != nil {
		log.Warn("config change subscription failed", "error", err)
	}

	fleet := newLEDFleet(drv, log.ForModule("led"))
	entries, err := loadDevices(ctx, drv)
	if err != nil {
		log.Warn("no device list", "error", err)
	}
	log.Info("devices registered", "count", fleet.register(ctx, entries), "listed", len(entries))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return fleet.runReports(gctx, reportInterval)
	})

	if interval := cfg.GetWatchdogInterval(); interval > 0 {
		g.Go(func() error {
			err := drv.RunWatchdog(gctx, watchdogThread, interval, cfg.Driver.WatchdogCountdown)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.ForModule("api"),
			Driver:  drv,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	// The driver stopping on its own is fatal; a shutdown signal is not.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-drv.Done():
			if err := drv.Err(); err != nil {
				return fmt.Errorf("driver stopped: %w", err)
			}
			return nil
		}
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	return g.Wait()
}

// driverOptions maps the process configuration onto driver options.
func driverOptions(cfg *config.Config, influxClient *influxdb.Client, log *logging.Logger) driver.Options {
	opts := driver.Options{
		Module:               cfg.Driver.Module,
		Workers:              cfg.Driver.Workers,
		MQTT:                 driver.MQTTConfigFrom(cfg.MQTT),
		CallTimeout:          cfg.GetCallTimeout(),
		ConnectRetryInterval: cfg.GetConnectRetryInterval(),
		TSLCache:             driver.TSLCacheConfigFrom(cfg.TSLCache),
		Logger:               log.ForModule("driver"),
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	return opts
}

// loadDevices reads the device list from the driver configuration.
func loadDevices(ctx context.Context, drv *driver.Driver) ([]deviceEntry, error) {
	size := drv.DeviceInfoSize(ctx)
	if size == 0 {
		return nil, errors.New("driver config has no device list")
	}
	buf := make([]byte, size)
	if err := drv.DeviceInfo(ctx, buf); err != nil {
		return nil, fmt.Errorf("reading device list: %w", err)
	}
	return parseDeviceList(driver.BufferText(buf))
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
