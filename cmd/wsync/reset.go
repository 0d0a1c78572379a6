package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "setup",
	Short:   "Wipe the local cache",
	Long: `Drop everything in the local cache: entries, annotations, tags, the
pending-change queues, and the sync watermark.

Queued offline changes that were never pushed are lost. Asks for
confirmation unless --force is given.`,
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

		pending, err := st.CountPending(ctx)
		if err != nil {
			fatal("failed to read cache: %v", err)
		}

		if !resetForce {
			prompt := fmt.Sprintf("Wipe the cache at %s?", cfg.DBFile)
			if pending > 0 {
				prompt = fmt.Sprintf("Wipe the cache at %s? %d unpushed changes will be LOST.", cfg.DBFile, pending)
			}
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(prompt).
					Affirmative("Wipe it").
					Negative("Cancel").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				fatal("%v", err)
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return
			}
		}

		if err := st.Reset(ctx); err != nil {
			fatal("failed to reset cache: %v", err)
		}
		fmt.Printf("%s Cache wiped\n", ui.RenderPass("✓"))
		fmt.Println("Run 'wsync sync --full' to repopulate it.")
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip confirmation")
	rootCmd.AddCommand(resetCmd)
}
