package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pkg/clierr"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// savesCmd manages the saved cheers
func savesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "Manage saved cheers",
	}

	cmd.AddCommand(
		savesListCmd(),
		savesDeleteCmd(),
		savesExportCmd(),
	)

	return cmd
}

func savesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved cheers",
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := db.NewSavedCheerRepository(db.GetDB()).List(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			if len(saved) == 0 {
				cmd.Println("No saved cheers yet. Use `cheerily save` after `cheerily next`.")
				return nil
			}

			table := newTable(cmd, []string{"ID", "Title", "Type", "Size", "Saved At"})
			for _, s := range saved {
				table.Append([]string{
					fmt.Sprintf("%d", s.ID),
					cleanTitle(s.Title),
					db.MediaTypeOf(s.URL),
					fmt.Sprintf("%d KB", (len(s.ImageData)+1023)/1024),
					s.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			table.Render()
			return nil
		},
	}
}

func savesDeleteCmd() *cobra.Command {
	var id uint
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a saved cheer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return clierr.New(clierr.Validation, "ID of the saved cheer is required.", nil)
			}
			if err := db.NewSavedCheerRepository(db.GetDB()).Delete(cmd.Context(), id); err != nil {
				return toCLIError(err)
			}
			cmd.Printf("Deleted saved cheer #%d\n", id)
			return nil
		},
	}

	cmd.Flags().UintVarP(&id, "id", "i", 0, "ID of the saved cheer to delete")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		log.Error().Err(err).Msg("Failed to mark 'id' flag as required")
	}

	return cmd
}

func savesExportCmd() *cobra.Command {
	var (
		dir        string
		numWorkers int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the saved images into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if numWorkers < 1 || numWorkers > 20 {
				return clierr.New(clierr.Validation, "Number of workers must be between 1 and 20.", nil)
			}
			saved, err := db.NewSavedCheerRepository(db.GetDB()).List(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return clierr.New(clierr.Internal, "Failed to create "+dir, err)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(numWorkers)
			for _, s := range saved {
				s := s
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					name := client.FileName(fmt.Sprintf("%d-%s", s.ID, s.Title), db.MediaTypeOf(s.URL))
					path := filepath.Join(dir, name)
					if err := os.WriteFile(path, s.ImageData, 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", path, err)
					}
					log.Debug().Str("path", path).Msg("Exported saved cheer")
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return clierr.New(clierr.Internal, "Export failed: "+err.Error(), err)
			}
			cmd.Printf("Exported %d saved cheers to %s\n", len(saved), dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "o", ".", "Directory to write the images to")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "Number of files written concurrently (1-20)")

	return cmd
}

// historyCmd lists the cheers already shown, newest first
func historyCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently shown cheers",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen, err := db.NewCheerRepository(db.GetDB()).History(cmd.Context(), limit)
			if err != nil {
				return toCLIError(err)
			}
			if len(seen) == 0 {
				cmd.Println("No cheers shown yet. Use `cheerily next` to get one.")
				return nil
			}

			table := newTable(cmd, []string{"Shown At", "Title", "Image"})
			for _, c := range seen {
				shownAt := ""
				if c.SeenAt != nil {
					shownAt = c.SeenAt.Format("2006-01-02 15:04")
				}
				table.Append([]string{shownAt, cleanTitle(c.Title), c.URL})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "How many cheers to show, 0 for all")

	return cmd
}

func newTable(cmd *cobra.Command, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}

// cleanTitle keeps multi-line titles on one table row.
func cleanTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
