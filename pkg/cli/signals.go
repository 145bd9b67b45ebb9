package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM, along
// with a stop function that restores the default signal behaviour. The daemon
// defers stop so a second interrupt during a slow shutdown kills the process
// instead of being swallowed.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
