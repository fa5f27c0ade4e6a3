// Package cli provides CLI commands for the cmscope application.
package cli

import (
	gocontext "context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/config"
	"github.com/example/cmscope/internal/ctxutil"
	"github.com/example/cmscope/internal/logging"
	"github.com/example/cmscope/internal/wire"
)

// globalActorID stores the actor recorded in the audit trail for this invocation.
// Set once at startup by Setup.
var globalActorID string

// configDir is where config.json is read from. Set once at startup by Setup.
var configDir string

// Setup loads the configuration, installs the logger and hands both to wire.
// It is meant to run as the root command's PersistentPreRunE.
func Setup(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("config-dir")
	if dir == "" {
		var err error
		if dir, err = config.Dir(); err != nil {
			return err
		}
	}
	configDir = dir

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DatabasePath = db
	}

	logger, err := logging.Configure(os.Stderr, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logging.SetLevel(slog.LevelDebug)
	}
	wire.Configure(cfg, logger)

	globalActorID, _ = cmd.Flags().GetString("actor")
	if globalActorID == "" {
		globalActorID = os.Getenv("CMSCOPE_ACTOR")
	}
	if globalActorID == "" {
		globalActorID = os.Getenv("USER")
	}
	return nil
}

// Teardown releases the wired singletons. It is meant to run as PersistentPostRunE.
func Teardown(cmd *cobra.Command, args []string) error {
	return wire.Close()
}

// GetActorID returns the stored actor ID from CLI startup.
func GetActorID() string {
	return globalActorID
}

// NewContext creates a context.Background() with the current actor ID embedded.
// CLI commands should use this instead of context.Background() directly.
func NewContext() gocontext.Context {
	return ctxutil.WithActorID(gocontext.Background(), globalActorID)
}
