// Package config loads and validates the daemon configuration.
//
// Configuration comes from a YAML file, with defaults applied for any
// omitted field and environment variables (GATEKEEPER_SECTION_FIELD)
// taking precedence over both. A fsnotify-based watcher can re-load the
// file on change so the daemon picks up log-level and classifier-mode
// adjustments without a restart.
package config
