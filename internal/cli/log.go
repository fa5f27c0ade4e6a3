package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/wire"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log",
	Long:  "View and prune the audit trail written alongside every document change",
}

var logShowCmd = &cobra.Command{
	Use:   "show [entity-id]",
	Short: "Show activity",
	Long: `Show audit entries, optionally for one entity (e.g., DOC-001).
Entries are grouped by the scope tree that committed them.

Examples:
  cmscope log show
  cmscope log show DOC-001
  cmscope log show --tx 5f1c2a9e-...     # everything one transaction wrote`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		actorID, _ := cmd.Flags().GetString("actor")
		entityType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		txID, _ := cmd.Flags().GetString("tx")

		filters := primary.LogFilters{
			ActorID:       actorID,
			EntityType:    entityType,
			TransactionID: txID,
			Limit:         limit,
		}
		if len(args) > 0 {
			filters.EntityID = args[0]
		}

		service, err := wire.LogService()
		if err != nil {
			return err
		}
		entries, err := service.ListLogs(ctx, filters)
		if err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}

		printLogEntries(entries)
		return nil
	},
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old log entries",
	Long:  "Delete log entries older than the specified number of days (default 30)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		days, _ := cmd.Flags().GetInt("days")

		if days <= 0 {
			days = 30
		}

		service, err := wire.LogService()
		if err != nil {
			return err
		}
		count, err := service.PruneLogs(ctx, days)
		if err != nil {
			return err
		}

		if count == 0 {
			fmt.Printf("No log entries older than %d days found.\n", days)
		} else {
			fmt.Printf("Pruned %d log entries older than %d days.\n", count, days)
		}
		return nil
	},
}

func printLogEntries(entries []*primary.LogEntry) {
	if len(entries) == 0 {
		fmt.Println("No log entries found.")
		return
	}

	fmt.Printf("Found %d log entries:\n", len(entries))

	// Oldest first, with a header whenever the transaction changes
	lastTx := "-"
	for i := len(entries) - 1; i >= 0; i-- {
		if tx := entries[i].TransactionID; tx != lastTx {
			fmt.Printf("\n%s\n", color.New(color.FgHiBlack).Sprintf("tx %s", shortTx(tx)))
			lastTx = tx
		}
		printLogEntry(entries[i])
	}
}

func shortTx(tx string) string {
	if tx == "" {
		return "(none)"
	}
	if len(tx) > 8 {
		return tx[:8]
	}
	return tx
}

func printLogEntry(entry *primary.LogEntry) {
	// Format: timestamp | actor | action | entity_type/entity_id | field changes
	actorStr := entry.ActorID
	if actorStr == "" {
		actorStr = "-"
	}

	fmt.Printf("%s | %-12s | %s %-9s | %s/%s",
		formatTimestamp(entry.CreatedAt),
		actorStr,
		getActionIcon(entry.Action),
		entry.Action,
		entry.EntityType,
		entry.EntityID,
	)

	if entry.Action == "update" && entry.FieldName != "" {
		fmt.Printf(" | %s: %s -> %s", entry.FieldName, entry.OldValue, entry.NewValue)
	}

	fmt.Println()
}

func getActionIcon(action string) string {
	switch action {
	case "create":
		return color.New(color.FgGreen).Sprint("+")
	case "update", "move":
		return color.New(color.FgYellow).Sprint("~")
	case "delete":
		return color.New(color.FgRed).Sprint("-")
	case "publish":
		return color.New(color.FgCyan).Sprint("↑")
	case "unpublish":
		return color.New(color.FgCyan).Sprint("↓")
	default:
		return "?"
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

// LogCmd returns the log command with all subcommands attached.
func LogCmd() *cobra.Command {
	// log show
	logShowCmd.Flags().String("actor", "", "Filter by actor ID")
	logShowCmd.Flags().String("type", "", "Filter by entity type")
	logShowCmd.Flags().IntP("limit", "n", 100, "Maximum entries to show")
	logShowCmd.Flags().String("tx", "", "Filter by transaction ID")

	// log prune
	logPruneCmd.Flags().Int("days", 30, "Delete entries older than N days")

	logCmd.AddCommand(logShowCmd)
	logCmd.AddCommand(logPruneCmd)

	return logCmd
}
