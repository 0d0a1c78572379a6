package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/sync"
	"github.com/mschirtzinger/wallasync/internal/ui"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile the local cache with the server",
	Long: `Run one sync pass against the server:

  1. Push queued deletes (annotations, then entries)
  2. Pull server-side changes since the last sync and reconcile them
  3. Push local edits the server hasn't seen
  4. Push queued saves (urls, then annotations)
  5. Drop tags no cached entry uses anymore

Conflicts resolve to whichever side was updated last. An incremental
pass only covers what changed since the last sync; --full enumerates the
whole account, which also detects entries deleted server-side.`,
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

		syncer, err := newSyncer(cfg, st, "[sync] ")
		if err != nil {
			fatal("%v", err)
		}

		mode := "incremental"
		if syncFull {
			mode = "full"
		}
		fmt.Printf("%s Syncing with %s (%s)...\n", ui.RenderAccent("🔄"), cfg.Server.BaseURL, mode)

		ctx := cmd.Context()
		var result *sync.Result
		if syncFull {
			result, err = syncer.FullSync(ctx)
		} else {
			result, err = syncer.Sync(ctx)
		}
		if err != nil {
			fatal("sync failed: %v", err)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), result.Duration.Round(time.Millisecond))
		fmt.Printf("   Entries: %d pulled, %d pushed, %d created, %d deleted\n",
			result.EntriesPulled, result.EntriesPushed, result.EntriesCreated, result.EntriesDeleted)
		fmt.Printf("   Annotations: %d pulled, %d pushed, %d created, %d deleted\n",
			result.AnnotationsPulled, result.AnnotationsPushed, result.AnnotationsCreated, result.AnnotationsDeleted)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "enumerate the whole account instead of changes since the last sync")
	rootCmd.AddCommand(syncCmd)
}
