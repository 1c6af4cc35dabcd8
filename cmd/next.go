package cmd

import (
	"bytes"

	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const redditBaseURL = "https://www.reddit.com"

// nextCmd shows the next cheer that was never shown before
func nextCmd(a *app) *cobra.Command {
	var downloadDir string

	cmd := &cobra.Command{
		Use:         "next",
		Short:       "Show the next cheer",
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			// Close lets a background refill persist what it fetched.
			defer p.Close()

			if _, err := p.Restore(cmd.Context()); err != nil {
				return toCLIError(err)
			}
			cheer, err := p.GetNext(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			printCheer(cmd, cheer)

			if downloadDir == "" {
				return nil
			}
			path, err := client.DownloadImageToDir(cmd.Context(), a.client(), cheer.URL, cheer.Title, cheer.MediaType(), downloadDir, client.ProgressOutput())
			if err != nil {
				log.Error().Err(err).Str("url", cheer.URL).Msg("Failed to download cheer")
				return toCLIError(err)
			}
			cmd.Println("Saved image to", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&downloadDir, "download", "d", "", "Also download the image into this directory")

	return cmd
}

// saveCmd keeps the last shown cheer, image included, as a favorite
func saveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the last shown cheer as a favorite",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cheer, err := db.NewCheerRepository(db.GetDB()).LastSeen(ctx)
			if err != nil {
				return toCLIError(err)
			}
			if cheer == nil {
				return clierr.New(clierr.NotFound, "No cheer was shown yet. Run 'cheerily next' first.", nil)
			}

			saves := db.NewSavedCheerRepository(db.GetDB())
			exists, err := saves.ExistsByURL(ctx, cheer.URL)
			if err != nil {
				return toCLIError(err)
			}
			if exists {
				cmd.Println("Already saved:", cheer.Title)
				return nil
			}

			var image bytes.Buffer
			if _, err := client.DownloadImage(ctx, a.client(), cheer.URL, &image, client.ProgressOutput()); err != nil {
				return toCLIError(err)
			}
			saved := &db.SavedCheer{
				Title:     cheer.Title,
				URL:       cheer.URL,
				Permalink: cheer.Permalink,
				ImageData: image.Bytes(),
			}
			if err := saves.Save(ctx, saved); err != nil {
				return toCLIError(err)
			}
			cmd.Printf("Saved %q as #%d\n", saved.Title, saved.ID)
			return nil
		},
	}
}

func printCheer(cmd *cobra.Command, cheer db.Cheer) {
	cmd.Println(cheer.Title)
	if mediaType := cheer.MediaType(); mediaType != "" {
		cmd.Printf("Image: %s (%s)\n", cheer.URL, mediaType)
	} else {
		cmd.Println("Image:", cheer.URL)
	}
	if cheer.Permalink != "" {
		cmd.Println("Thread:", redditBaseURL+cheer.Permalink)
	}
}
