// Package logging configures the daemon's structured logger.
//
// Logs are emitted through log/slog with a JSON or text handler. The log
// level is held in a slog.LevelVar so configuration reloads can adjust it
// without rebuilding the logger.
//
// Page captures carry private browsing data, so when redaction is on a
// wrapping handler masks the values of URL- and title-like attributes
// before they reach the output.
package logging
