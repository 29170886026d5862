// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports development and
// production encodings and integrates with the Fiber web framework.
//
// # Context Awareness
//
// WithRayID extracts the request id from a Fiber context so all logs of a
// request can be correlated. WithRun does the same for a migration run:
// every component logs with the run id and its own name.
//
// # Configuration
//
//   - Level: debug, info, warn, error
//   - Format: json or console
//
// # Usage
//
//	log, _ := logger.New(&cfg.Log)
//	l := logger.WithRun(log, runID, "copier")
//	l.Info("window finished", zap.Int("copied", n))
package logger
