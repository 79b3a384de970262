// Package logger provides structured logging for epmasuppress.
//
// It wraps zerolog behind a small Logger interface:
//   - Levels: debug, info, warn, error, fatal
//   - Child loggers with fields (WithField, WithFields, WithError)
//   - Coloured console output on stderr, JSON lines when a file is set
//   - A process-wide logger reachable through the package functions
//
// Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("hospital_number", "1234567").Info("Searching patient")
//
// Hospital numbers are identifiers, not clinical content; note bodies are
// never logged.
//
// Tests use NewTestLogger to capture and assert on messages, or
// NewNopLogger to discard them.
package logger
