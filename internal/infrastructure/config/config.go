package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a driver process.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Driver   DriverConfig   `yaml:"driver"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	TSLCache TSLCacheConfig `yaml:"tsl_cache"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DriverConfig contains the driver module identity and runtime sizing.
type DriverConfig struct {
	// Module is the driver module name. Empty falls back to FUNCTION_NAME.
	Module string `yaml:"module"`

	// Workers is the number of worker goroutines serving device calls.
	Workers int `yaml:"workers"`

	// CallTimeout is the bus call timeout in milliseconds.
	CallTimeout int `yaml:"call_timeout"`

	// ConnectRetryInterval is the wait between bus connection attempts in seconds.
	ConnectRetryInterval int `yaml:"connect_retry_interval"`

	// WatchdogInterval is how often the driver feeds the gateway watchdog (seconds).
	// 0 disables feeding.
	WatchdogInterval int `yaml:"watchdog_interval"`

	// WatchdogCountdown is the countdown announced with each feed (seconds).
	WatchdogCountdown int `yaml:"watchdog_countdown"`
}

// MQTTConfig contains the bus broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// TopicPrefix is the root of every bus topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TSLCacheConfig contains settings for the product model cache.
type TSLCacheConfig struct {
	// Path is the SQLite file backing the cache. Empty keeps the cache in memory only.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// TTL is how long a cached model is trusted, in seconds.
	TTL int `yaml:"ttl"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DRIVER_MODULE, GRAYLOGIC_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			Workers:              4,
			CallTimeout:          10000,
			ConnectRetryInterval: 5,
			WatchdogCountdown:    60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			TopicPrefix: "graylogic/bus",
		},
		TSLCache: TSLCacheConfig{
			WALMode:     true,
			BusyTimeout: 5,
			TTL:         3600,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8089,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Driver
	if v := os.Getenv("GRAYLOGIC_DRIVER_MODULE"); v != "" {
		cfg.Driver.Module = v
	}
	if v := os.Getenv("GRAYLOGIC_DRIVER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Driver.Workers = n
		}
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// TSL cache
	if v := os.Getenv("GRAYLOGIC_TSL_CACHE_PATH"); v != "" {
		cfg.TSLCache.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Driver validation (an empty module is allowed: FUNCTION_NAME may supply it)
	if c.Driver.Workers < 1 {
		errs = append(errs, "driver.workers must be at least 1")
	}
	if c.Driver.CallTimeout <= 0 {
		errs = append(errs, "driver.call_timeout must be positive")
	}
	if c.Driver.ConnectRetryInterval <= 0 {
		errs = append(errs, "driver.connect_retry_interval must be positive")
	}
	if c.Driver.WatchdogInterval < 0 {
		errs = append(errs, "driver.watchdog_interval cannot be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must be non-empty and free of wildcards")
	}

	// TSL cache validation
	if c.TSLCache.TTL < 0 {
		errs = append(errs, "tsl_cache.ttl cannot be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCallTimeout returns the bus call timeout as a Duration.
func (c *Config) GetCallTimeout() time.Duration {
	return time.Duration(c.Driver.CallTimeout) * time.Millisecond
}

// GetConnectRetryInterval returns the bus connection retry interval as a Duration.
func (c *Config) GetConnectRetryInterval() time.Duration {
	return time.Duration(c.Driver.ConnectRetryInterval) * time.Second
}

// GetWatchdogInterval returns the watchdog feed interval as a Duration.
func (c *Config) GetWatchdogInterval() time.Duration {
	return time.Duration(c.Driver.WatchdogInterval) * time.Second
}

// GetTSLCacheTTL returns the product model cache TTL as a Duration.
func (c *Config) GetTSLCacheTTL() time.Duration {
	return time.Duration(c.TSLCache.TTL) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
