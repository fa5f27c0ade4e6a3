package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/db"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/scope"
	"github.com/example/cmscope/internal/version"
	"github.com/example/cmscope/internal/wire"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the cmscope environment",
		Long: `Health check for cmscope.

Validates:
- Database can be opened and the schema is current
- Locks can be taken (including Redis locks when enabled)
- Redis answers when enabled

Examples:
  cmscope doctor              # Run full health check
  cmscope doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := NewContext()
			results := []CheckResult{}
			hasErrors := false

			c, err := wire.Get()
			if err != nil {
				results = append(results, CheckResult{Name: "Database", Status: "✗", Details: "  " + err.Error()})
			} else {
				results = append(results, CheckResult{Name: "Database", Status: "✓"})
				results = append(results, checkSchema(ctx, c.Provider))
				results = append(results, checkLocks(ctx, c.Provider))
				results = append(results, checkRedis(ctx, c))
			}
			results = append(results, CheckResult{Name: "Binary", Status: "✓", Details: version.String()})

			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, statusColor(r.Status))
				}
				fmt.Println()

				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found. Run 'cmscope init' to create the database.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func statusColor(status string) string {
	switch status {
	case "✓":
		return color.New(color.FgGreen).Sprint(status)
	case "⚠":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgRed).Sprint(status)
	}
}

// checkSchema compares the applied schema version with the latest one.
func checkSchema(ctx context.Context, provider *scope.Provider) CheckResult {
	current, err := db.CurrentVersion(ctx, provider)
	if err != nil {
		return CheckResult{Name: "Schema", Status: "✗", Details: "  " + err.Error()}
	}
	if current < db.LatestVersion {
		return CheckResult{
			Name:    "Schema",
			Status:  "⚠",
			Details: fmt.Sprintf("  version %d, latest is %d", current, db.LatestVersion),
		}
	}
	return CheckResult{Name: "Schema", Status: "✓"}
}

// checkLocks takes every well-known lock exclusively in one short-lived scope.
func checkLocks(ctx context.Context, provider *scope.Provider) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := provider.Do(ctx, func(ctx context.Context, s *scope.Scope) error {
		return s.EagerWriteLock(ctx, lock.IDs()...)
	}, scope.WithReadOnly())
	if err != nil {
		return CheckResult{Name: "Locks", Status: "✗", Details: "  " + err.Error()}
	}
	return CheckResult{Name: "Locks", Status: "✓"}
}

// checkRedis pings Redis when it is enabled.
func checkRedis(ctx context.Context, c *wire.Components) CheckResult {
	if !c.Config.Redis.Enabled {
		return CheckResult{Name: "Redis", Status: "⚠", Details: "  disabled; locks and cache refreshes are local to this process"}
	}
	if err := c.PingRedis(ctx); err != nil {
		return CheckResult{Name: "Redis", Status: "✗", Details: "  " + err.Error()}
	}
	return CheckResult{Name: "Redis", Status: "✓"}
}
