// Package logging provides structured, subsystem-tagged logging for the
// suidriver binary and its internal packages.
//
// The package wraps Go's standard slog package and keeps a single process-wide
// logger. Every entry carries the name of the subsystem that produced it so
// that output from the loader, the task controller and the engine can be told
// apart in one stream.
//
// # Log Levels
//   - **Debug**: Engine events, invocation properties, watcher activity
//   - **Info**: Task lifecycle transitions and catalog changes
//   - **Warn**: Skipped project files and recoverable problems
//   - **Error**: Failures, always with the causing error attached
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Loader", "Published %d descriptors from %s", n, dir)
//	logging.Debug("Adapter", "Invocation properties: %s", logging.FormatProperties(params))
//	logging.Error("Task", err, "Run of task %s failed", id)
//
// JSON output for log shippers is selected with Init:
//
//	logging.Init(logging.LevelDebug, logging.FormatJSON, os.Stderr)
//
// # Secrets
//
// Invocation properties may carry credentials. FormatProperties renders an
// alternating key/value list with the values of password and authPwd keys
// replaced by RedactedValue, and IsSecretKey exposes the same check for
// callers that log single properties.
//
// # Thread Safety
//
// Logging functions may be called from any goroutine. Init may be called again
// to swap the output, which tests use to capture log lines.
package logging
