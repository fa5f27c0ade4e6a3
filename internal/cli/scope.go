package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
	"github.com/example/cmscope/internal/wire"
)

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Inspect scope behavior",
}

var scopeDemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a nested scope tree",
	Long: `Create a root scope, save a document in a nested scope, open a sibling child
that either completes or vetoes, then dispose the root and report whether the
document was committed.

Examples:
  cmscope scope demo           # every scope completes, the save commits
  cmscope scope demo --veto    # the sibling vetoes, the save rolls back`,
	RunE: func(cmd *cobra.Command, args []string) error {
		veto, _ := cmd.Flags().GetBool("veto")

		c, err := wire.Get()
		if err != nil {
			return err
		}

		ctx, root := c.Provider.CreateScope(NewContext())
		printScope(root, "root opened")

		resp, err := c.ContentService.SaveContent(ctx, primary.SaveContentRequest{
			Name:        "Scope demo",
			ContentType: "textPage",
		})
		if err != nil {
			root.Dispose()
			return fmt.Errorf("failed to save demo document: %w", err)
		}
		fmt.Printf("  child saved %s and voted %s\n", resp.ContentID, voteLabel(scope.Commit))

		_, sibling := c.Provider.CreateScope(ctx)
		printScope(sibling, "sibling opened")
		if !veto {
			sibling.Complete()
		}
		vote := sibling.Completion()
		if err := sibling.Dispose(); err != nil {
			root.Dispose()
			return err
		}
		fmt.Printf("  sibling disposed with vote %s\n", voteLabel(vote))

		held := make([]string, 0)
		for _, id := range root.Locks().Held() {
			mode, _ := root.Locks().HeldMode(id)
			held = append(held, fmt.Sprintf("%s(%s)", lock.Name(id), mode))
		}
		fmt.Printf("  tree holds locks: %s\n", strings.Join(held, ", "))

		root.Complete()
		fmt.Printf("  root completed, merged vote %s\n", voteLabel(root.Completion()))
		if err := root.Dispose(); err != nil {
			return err
		}

		_, err = c.ContentService.GetContent(NewContext(), resp.ContentID)
		switch {
		case err == nil:
			fmt.Printf("%s %s was committed\n", color.New(color.FgGreen).Sprint("✓"), resp.ContentID)
			if _, err := c.ContentService.DeleteContent(NewContext(), resp.ContentID); err != nil {
				return fmt.Errorf("failed to clean up demo document: %w", err)
			}
		case errors.Is(err, secondary.ErrNotFound):
			fmt.Printf("%s %s was rolled back\n", color.New(color.FgYellow).Sprint("↺"), resp.ContentID)
		default:
			return err
		}
		return nil
	},
}

func printScope(s *scope.Scope, event string) {
	fmt.Printf("%s%s %s (depth %d)\n", strings.Repeat("  ", s.Depth()), event, s.ID().String()[:8], s.Depth())
}

func voteLabel(c scope.Completion) string {
	switch c {
	case scope.Commit:
		return color.New(color.FgGreen).Sprint(c.String())
	case scope.Rollback:
		return color.New(color.FgRed).Sprint(c.String())
	default:
		return color.New(color.FgYellow).Sprint(c.String())
	}
}

// ScopeCmd returns the scope command with all subcommands attached.
func ScopeCmd() *cobra.Command {
	scopeDemoCmd.Flags().Bool("veto", false, "Dispose the sibling scope without completing it")

	scopeCmd.AddCommand(scopeDemoCmd)

	return scopeCmd
}
