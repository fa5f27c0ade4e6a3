package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/cli"
	"github.com/example/cmscope/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cmscope",
		Short:   "cmscope - scoped content storage",
		Version: version.String(),
		Long: `cmscope manages a tree of documents in SQLite. Every write runs inside
an ambient scope that holds its locks, buffers its notifications and
commits or rolls back as a whole.`,
		PersistentPreRunE:  cli.Setup,
		PersistentPostRunE: cli.Teardown,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().String("config-dir", "", "Configuration directory (default ~/.cmscope)")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database")
	rootCmd.PersistentFlags().String("actor", "", "Actor recorded in the audit log")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level, overriding the configured level")

	// Add subcommands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ContentCmd())
	rootCmd.AddCommand(cli.LogCmd())

	// Developer tools
	rootCmd.AddCommand(cli.ScopeCmd())
	rootCmd.AddCommand(cli.CacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
