package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper - local focus-guard daemon for browser surfaces",
	Long: `Gatekeeper is a local daemon that keeps browsing aligned with the
user's focus policy during work hours.

Browser extensions report page captures to it over loopback HTTP; it
classifies each page, applies schedule, whitelist and blacklist rules,
and signals the originating tab to present a block dialog when a page
does not belong. Blocked pages can negotiate temporary access through
an appeal conversation.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
