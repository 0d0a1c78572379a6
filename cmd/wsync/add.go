package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

var addOffline bool

var addCmd = &cobra.Command{
	Use:     "add <url>...",
	GroupID: "sync",
	Short:   "Save one or more urls to wallabag",
	Long: `Save urls to wallabag. The server fetches and extracts the article
content; the resulting entry is written straight into the local cache.

With --offline (or when the server is unreachable) the urls are queued
locally instead and pushed on the next sync.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer st.Close()

		ctx := cmd.Context()

		if addOffline {
			for _, rawURL := range args {
				if err := st.AddNewURL(ctx, rawURL); err != nil {
					fatal("failed to queue %s: %v", rawURL, err)
				}
				fmt.Printf("%s Queued %s\n", ui.RenderPass("✓"), rawURL)
			}
			fmt.Println("Queued urls are pushed on the next sync.")
			return
		}

		client, err := newClient(cfg)
		if err != nil {
			fatal("%v", err)
		}

		for _, rawURL := range args {
			existing, err := client.CheckExists(ctx, rawURL)
			if err == nil && existing != nil {
				fmt.Printf("%s Already saved as entry %d: %s\n", ui.RenderWarn("⚠"), *existing, rawURL)
				continue
			}

			entry, err := client.CreateEntry(ctx, wallabag.NewEntry{URL: rawURL})
			if err != nil {
				// Server unreachable or rejecting; fall back to the queue
				// so the url isn't lost.
				fmt.Printf("%s Could not save now (%v), queueing %s\n", ui.RenderWarn("⚠"), err, rawURL)
				if qerr := st.AddNewURL(ctx, rawURL); qerr != nil {
					fatal("failed to queue %s: %v", rawURL, qerr)
				}
				continue
			}
			if err := st.SaveEntry(ctx, entry); err != nil {
				fatal("failed to cache entry %d: %v", entry.ID, err)
			}
			title := rawURL
			if entry.Title != nil && *entry.Title != "" {
				title = *entry.Title
			}
			fmt.Printf("%s Saved entry %d: %s\n", ui.RenderPass("✓"), entry.ID, title)
		}
	},
}

func init() {
	addCmd.Flags().BoolVar(&addOffline, "offline", false, "queue the urls locally instead of contacting the server")
	rootCmd.AddCommand(addCmd)
}
