// Package cmd implements termwrightd's command-line front end: a thin
// cobra surface over internal/session and internal/protocol. It stays
// deliberately small: spawn, list, status, stop, and the hidden
// `_daemon` entrypoint a forked background session actually runs as.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds termwrightd's root cobra command with every
// subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "termwrightd",
		Short: "Headless terminal automation daemon",
		Long: `termwrightd hosts a child process inside a pseudo-terminal, maintains
an in-memory screen model of what a real terminal would display, and
serves it over a local JSON-line protocol so another process can drive
and observe it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newDaemonCmd(),
		newListCmd(),
		newStatusCmd(),
		newStopCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
