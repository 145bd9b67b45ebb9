package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spai-hq/gatekeeper/pkg/cli"
	"spai-hq/gatekeeper/pkg/config"
	"spai-hq/gatekeeper/pkg/settings"
)

var settingsFlags struct {
	format string
	days   int
	hours  int
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and manage the focus-guard settings",
	Long: `Inspect and manage the focus-guard settings directly against the
storage backend. Intended for use while the daemon is stopped; with the
daemon running, prefer the HTTP API so in-memory state stays coherent.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettingsStore(func(ctx context.Context, store *settings.Store) error {
			snap, err := store.Get(ctx)
			if err != nil {
				return err
			}
			return cli.NewFormatter(cli.OutputFormat(settingsFlags.format)).FormatTo(os.Stdout, snap)
		})
	},
}

var settingsStrictCmd = &cobra.Command{
	Use:   "strict",
	Short: "Enable the strict-mode time lock",
	Long: `Enable strict mode, locking all settings mutation for the given
duration. The lock cannot be lifted early; it expires on its own.

Examples:
  # Lock for two days
  gatekeeper settings strict --days 2

  # Lock for four hours
  gatekeeper settings strict --hours 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if settingsFlags.days <= 0 && settingsFlags.hours <= 0 {
			return cli.NewConfigError("strict", "a positive --days or --hours duration is required")
		}
		return withSettingsStore(func(ctx context.Context, store *settings.Store) error {
			updated, err := store.EnableStrictMode(ctx, settingsFlags.days, settingsFlags.hours)
			if err != nil {
				return err
			}
			if exp := updated.StrictMode.ExpiresAt; exp != nil {
				fmt.Printf("✓ Settings locked until %s\n", time.UnixMilli(*exp).Format(time.RFC1123))
			}
			return nil
		})
	},
}

// withSettingsStore opens the configured backend, builds a store over it
// and runs fn, closing the backend afterwards.
func withSettingsStore(fn func(context.Context, *settings.Store) error) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	backend, err := openBackend(&cfg.Storage)
	if err != nil {
		return cli.NewCommandError("settings", err)
	}
	defer backend.Close()

	ctx := context.Background()
	store, err := settings.NewStore(ctx, settings.StoreConfig{
		Backend:        backend,
		OperatorSecret: cfg.Settings.OperatorSecret,
	})
	if err != nil {
		return cli.NewCommandError("settings", err)
	}
	return fn(ctx, store)
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsStrictCmd)

	settingsShowCmd.Flags().StringVarP(&settingsFlags.format, "format", "f", "json", "output format (text, json)")
	settingsStrictCmd.Flags().IntVar(&settingsFlags.days, "days", 0, "lock duration in days")
	settingsStrictCmd.Flags().IntVar(&settingsFlags.hours, "hours", 0, "lock duration in hours")
}
