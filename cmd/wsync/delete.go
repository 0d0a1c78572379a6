package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
)

var deleteAnnotation bool

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	GroupID: "sync",
	Short:   "Delete entries (or annotations) locally and on the server",
	Long: `Remove entries from the local cache and queue the matching server-side
deletes, which go out on the next sync. Deleting an entry also removes
its annotations.

With --annotation, the ids name annotations instead of entries.`,
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

		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				fatal("invalid id %q", arg)
			}

			if deleteAnnotation {
				if err := st.AddDeleteAnnotation(ctx, id); err != nil {
					fatal("failed to queue annotation delete: %v", err)
				}
				if err := st.DeleteAnnotation(ctx, id); err != nil {
					fatal("failed to delete annotation %d: %v", id, err)
				}
				fmt.Printf("%s Deleted annotation %d\n", ui.RenderPass("✓"), id)
				continue
			}

			if err := st.AddDeleteEntry(ctx, id); err != nil {
				fatal("failed to queue entry delete: %v", err)
			}
			if err := st.DeleteEntry(ctx, id); err != nil {
				fatal("failed to delete entry %d: %v", id, err)
			}
			fmt.Printf("%s Deleted entry %d\n", ui.RenderPass("✓"), id)
		}
		fmt.Println("Server-side deletes go out on the next sync.")
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAnnotation, "annotation", false, "ids name annotations instead of entries")
	rootCmd.AddCommand(deleteCmd)
}
