// Package logging builds the slog loggers used across a driver process.
//
// Every entry carries the service and version fields; ForModule adds a
// module field so bus, dispatch and API lines can be told apart:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
//	log := logging.New(cfg.Logging, version).ForModule("driver")
//	log.Info("device online", "cloud_id", id)
//
// Never log broker passwords or API tokens.
package logging
