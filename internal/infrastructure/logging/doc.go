// Package logging provides structured logging for the ESERA bridge and
// thermostat.
//
// This package wraps github.com/rs/zerolog behind a small key/value API so
// every component can accept a four-method Logger interface.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Console output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text, console
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "esera-bridge", version)
//	logger.Info("controller connected", "address", addr)
//	logger.Error("publish failed", "topic", topic, "error", err)
//
// Never log the MQTT password.
package logging
