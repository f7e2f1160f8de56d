package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
driver:
  module: "led"
  workers: 8
  call_timeout: 2500
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "site/bus"
tsl_cache:
  path: "/tmp/tsl.db"
api:
  enabled: true
  host: "0.0.0.0"
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Driver.Module != "led" {
		t.Errorf("Driver.Module = %q, want %q", cfg.Driver.Module, "led")
	}

	if cfg.Driver.Workers != 8 {
		t.Errorf("Driver.Workers = %d, want 8", cfg.Driver.Workers)
	}

	if got := cfg.GetCallTimeout(); got != 2500*time.Millisecond {
		t.Errorf("GetCallTimeout() = %v, want 2.5s", got)
	}

	// Unset keys keep their defaults
	if got := cfg.GetConnectRetryInterval(); got != 5*time.Second {
		t.Errorf("GetConnectRetryInterval() = %v, want 5s", got)
	}

	if cfg.MQTT.TopicPrefix != "site/bus" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "site/bus")
	}

	if cfg.TSLCache.Path != "/tmp/tsl.db" {
		t.Errorf("TSLCache.Path = %q, want %q", cfg.TSLCache.Path, "/tmp/tsl.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
driver:
  workers: 0
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for zero workers, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Driver.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "non-positive call timeout",
			mutate:  func(c *Config) { c.Driver.CallTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "non-positive retry interval",
			mutate:  func(c *Config) { c.Driver.ConnectRetryInterval = -1 },
			wantErr: true,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "bus/#" },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "invalid port high",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
		{
			name:    "disabled API ignores port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "empty module is allowed",
			mutate:  func(c *Config) { c.Driver.Module = "" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		TSLCache: TSLCacheConfig{TTL: 120},
		Driver:   DriverConfig{WatchdogInterval: 15},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}

	if got := cfg.GetTSLCacheTTL().Seconds(); got != 120 {
		t.Errorf("GetTSLCacheTTL() = %v, want 120", got)
	}

	if got := cfg.GetWatchdogInterval().Seconds(); got != 15 {
		t.Errorf("GetWatchdogInterval() = %v, want 15", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	// Set environment variables
	t.Setenv("GRAYLOGIC_DRIVER_MODULE", "thermostat")
	t.Setenv("GRAYLOGIC_DRIVER_WORKERS", "12")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_TSL_CACHE_PATH", "/custom/tsl.db")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Driver.Module != "thermostat" {
		t.Errorf("Driver.Module = %q, want %q", cfg.Driver.Module, "thermostat")
	}

	if cfg.Driver.Workers != 12 {
		t.Errorf("Driver.Workers = %d, want 12", cfg.Driver.Workers)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.TSLCache.Path != "/custom/tsl.db" {
		t.Errorf("TSLCache.Path = %q, want %q", cfg.TSLCache.Path, "/custom/tsl.db")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadWorkers(t *testing.T) {
	cfg := Default()
	t.Setenv("GRAYLOGIC_DRIVER_WORKERS", "many")

	applyEnvOverrides(cfg)

	if cfg.Driver.Workers != 4 {
		t.Errorf("Driver.Workers = %d, want default 4", cfg.Driver.Workers)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Driver.Workers < 1 {
		t.Errorf("Default Driver.Workers = %d, want at least 1", cfg.Driver.Workers)
	}

	if got := cfg.GetCallTimeout(); got != 10*time.Second {
		t.Errorf("Default GetCallTimeout() = %v, want 10s", got)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.TopicPrefix == "" {
		t.Error("Default should have non-empty MQTT.TopicPrefix")
	}

	if cfg.API.Enabled {
		t.Error("Default API.Enabled = true, want false")
	}
}
