package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/wire"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage documents",
	Long:  "Create, read, publish, move and delete documents in the content tree",
}

var contentSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Create or update a document",
	Long: `Create a document, or update one when --id is given.

Examples:
  cmscope content save Home --type homePage
  cmscope content save About --type textPage --parent DOC-001 --set title="About us"
  cmscope content save Start --id DOC-001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		id, _ := cmd.Flags().GetString("id")
		parentID, _ := cmd.Flags().GetString("parent")
		contentType, _ := cmd.Flags().GetString("type")
		sortOrder, _ := cmd.Flags().GetInt("sort")
		sets, _ := cmd.Flags().GetStringArray("set")

		values, err := parseValues(sets)
		if err != nil {
			return err
		}

		service, err := wire.ContentService()
		if err != nil {
			return err
		}
		resp, err := service.SaveContent(ctx, primary.SaveContentRequest{
			ID:          id,
			ParentID:    parentID,
			Name:        args[0],
			ContentType: contentType,
			SortOrder:   sortOrder,
			Values:      values,
		})
		if err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}

		verb := "Updated"
		if resp.Created {
			verb = "Created"
		}
		fmt.Printf("%s %s %s (version %d)\n", color.New(color.FgGreen).Sprint("✓"), verb, resp.ContentID, resp.Content.Version)
		return nil
	},
}

var contentGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		doc, err := service.GetContent(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", doc.ID, doc.Name)
		fmt.Printf("  Key:       %s\n", doc.Key)
		fmt.Printf("  Type:      %s\n", doc.ContentType)
		if doc.ParentID != "" {
			fmt.Printf("  Parent:    %s\n", doc.ParentID)
		}
		fmt.Printf("  Status:    %s\n", publishedLabel(doc.Published))
		fmt.Printf("  Version:   %d\n", doc.Version)
		fmt.Printf("  Updated:   %s\n", formatTimestamp(doc.UpdatedAt))
		for k, v := range doc.Values {
			fmt.Printf("  %s = %s\n", k, v)
		}
		return nil
	},
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		parentID, _ := cmd.Flags().GetString("parent")
		contentType, _ := cmd.Flags().GetString("type")
		published, _ := cmd.Flags().GetBool("published")
		roots, _ := cmd.Flags().GetBool("roots")

		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		var docs []*primary.Content
		if parentID != "" {
			docs, err = service.GetChildren(ctx, parentID)
		} else {
			docs, err = service.ListContent(ctx, primary.ContentFilters{
				ContentType:   contentType,
				PublishedOnly: published,
				RootOnly:      roots,
			})
		}
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tPARENT\tSTATUS\tVERSION")
		fmt.Fprintln(w, "--\t----\t----\t------\t------\t-------")
		for _, d := range docs {
			parent := d.ParentID
			if parent == "" {
				parent = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", d.ID, d.Name, d.ContentType, parent, publishedLabel(d.Published), d.Version)
		}
		return w.Flush()
	},
}

var contentDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document and everything below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		resp, err := service.DeleteContent(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}

		fmt.Printf("%s Deleted %d document(s): %s\n",
			color.New(color.FgRed).Sprint("-"), len(resp.DeletedIDs), strings.Join(resp.DeletedIDs, ", "))
		return nil
	},
}

var contentPublishCmd = &cobra.Command{
	Use:   "publish [id]",
	Short: "Publish a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		if err := service.PublishContent(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Published %s\n", color.New(color.FgGreen).Sprint("✓"), args[0])
		return nil
	},
}

var contentUnpublishCmd = &cobra.Command{
	Use:   "unpublish [id]",
	Short: "Unpublish a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		if err := service.UnpublishContent(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Unpublished %s\n", color.New(color.FgYellow).Sprint("✓"), args[0])
		return nil
	},
}

var contentMoveCmd = &cobra.Command{
	Use:   "move [id]",
	Short: "Move a document under a new parent",
	Long: `Move a document under a new parent. Omit --to to move it to the root.

Examples:
  cmscope content move DOC-004 --to DOC-002
  cmscope content move DOC-004`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		to, _ := cmd.Flags().GetString("to")

		service, err := wire.ContentService()
		if err != nil {
			return err
		}

		if err := service.MoveContent(ctx, primary.MoveContentRequest{ContentID: args[0], NewParentID: to}); err != nil {
			return err
		}
		if to == "" {
			to = "root"
		}
		fmt.Printf("%s Moved %s to %s\n", color.New(color.FgGreen).Sprint("✓"), args[0], to)
		return nil
	},
}

// parseValues turns repeated key=value flags into a map.
func parseValues(sets []string) (map[string]string, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid value %q: expected key=value", s)
		}
		values[k] = v
	}
	return values, nil
}

func publishedLabel(published bool) string {
	if published {
		return color.New(color.FgGreen).Sprint("published")
	}
	return color.New(color.FgYellow).Sprint("draft")
}

// ContentCmd returns the content command with all subcommands attached.
func ContentCmd() *cobra.Command {
	// content save
	contentSaveCmd.Flags().String("id", "", "Update the document with this ID")
	contentSaveCmd.Flags().String("parent", "", "Parent document ID")
	contentSaveCmd.Flags().StringP("type", "t", "", "Content type alias")
	contentSaveCmd.Flags().Int("sort", 0, "Sort order among siblings")
	contentSaveCmd.Flags().StringArray("set", nil, "Property value as key=value (repeatable)")

	// content list
	contentListCmd.Flags().String("parent", "", "List the children of this document")
	contentListCmd.Flags().StringP("type", "t", "", "Filter by content type")
	contentListCmd.Flags().Bool("published", false, "Only published documents")
	contentListCmd.Flags().Bool("roots", false, "Only root documents")

	// content move
	contentMoveCmd.Flags().String("to", "", "New parent document ID")

	contentCmd.AddCommand(contentSaveCmd)
	contentCmd.AddCommand(contentGetCmd)
	contentCmd.AddCommand(contentListCmd)
	contentCmd.AddCommand(contentDeleteCmd)
	contentCmd.AddCommand(contentPublishCmd)
	contentCmd.AddCommand(contentUnpublishCmd)
	contentCmd.AddCommand(contentMoveCmd)

	return contentCmd
}
