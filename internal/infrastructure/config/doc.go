// Package config loads the YAML configuration of a driver process.
//
// A file holds one section per concern: driver (module name, worker count,
// call and retry timings, watchdog), mqtt (the broker carrying the bus),
// tsl_cache, influxdb, api and logging. Values missing from the file keep
// the Default; GRAYLOGIC_SECTION_KEY environment variables are applied
// last, so broker passwords and the InfluxDB token need not live on disk.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	timeout := cfg.GetCallTimeout()
package config
