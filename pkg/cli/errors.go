package cli

import "fmt"

// ConfigError reports a configuration value the daemon cannot start with.
// Key is the dotted path into the YAML document, e.g. "server.listen_address"
// or "storage.backend"; it is empty when the file itself failed to load or
// parse.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.Key, e.Reason)
}

// NewConfigError builds a ConfigError for the given config key.
func NewConfigError(key, reason string) *ConfigError {
	return &ConfigError{Key: key, Reason: reason}
}

// CommandError wraps a failure from a gatekeeper subcommand so the root
// command reports which verb failed before the cause.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("gatekeeper %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err as a failure of the named subcommand.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
