package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/config"
	"github.com/example/cmscope/internal/db"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
	"github.com/example/cmscope/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the cmscope database",
		Long: `Initialize the cmscope database with the required schema and write a default
config.json if none exists.

Examples:
  cmscope init
  cmscope init --seed     # also load a small sample site`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := NewContext()

			c, err := wire.Get()
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			version, err := db.CurrentVersion(ctx, c.Provider)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Database ready (schema version %d)\n", version)

			if _, err := os.Stat(filepath.Join(configDir, "config.json")); os.IsNotExist(err) {
				if err := config.SaveConfig(configDir, c.Config); err != nil {
					return err
				}
				fmt.Printf("✓ Config written to %s\n", filepath.Join(configDir, "config.json"))
			}

			if seed {
				seeded, err := seedDatabase(ctx, c.Provider)
				if err != nil {
					return fmt.Errorf("failed to seed database: %w", err)
				}
				if seeded {
					fmt.Println("✓ Sample site loaded")
				} else {
					fmt.Println("Database already has documents; skipped seeding.")
				}
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  cmscope content list")
			fmt.Println("  cmscope scope demo")

			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "Load sample documents into an empty database")

	return cmd
}

// seedDatabase loads the fixtures in one scope, unless documents already exist.
func seedDatabase(ctx context.Context, provider *scope.Provider) (bool, error) {
	seeded := false
	err := provider.Do(ctx, func(ctx context.Context, s *scope.Scope) error {
		s.WriteLock(lock.ContentTree)
		return s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
			var count int
			if err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
			seeded = true
			return db.SeedFixtures(ctx, ex)
		})
	})
	return seeded, err
}
