// Package logging provides structured logging for automountd.
//
// It wraps log/slog so every record carries the service name and version,
// and so the *Logger can be handed to each internal package's SetLogger
// (they declare a narrow Debug/Info/Warn/Error interface).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	registry.SetLogger(logger.Component("registry"))
//
// Records with bug=true report an internal invariant violation; the daemon
// refused the operation and carried on.
package logging
