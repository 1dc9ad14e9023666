// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr by default so the CLI can keep stdout for results.
//
// Components receive a *zap.Logger and tag it with their name:
//
//	logger := logging.FromSettings("info", false)
//	sb, err := sandbox.New(cfg, sandbox.WithLogger(logger.Component("sandbox")))
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
