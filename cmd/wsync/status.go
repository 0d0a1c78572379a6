package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "browse",
	Short:   "Show cache status",
	Long: `Display the local cache location, its contents, queued offline
changes, and when the last successful sync finished.`,
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

		fmt.Printf("\n%s Cache Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Database: %s", st.Path())
		if info, err := os.Stat(st.Path()); err == nil {
			fmt.Printf(" (%.1f MB)", float64(info.Size())/(1024*1024))
		}
		fmt.Println()
		fmt.Printf("   Server:   %s\n\n", cfg.Server.BaseURL)

		entries, err := st.CountEntries(ctx)
		if err != nil {
			fatal("failed to read cache: %v", err)
		}
		annotations, _ := st.CountAnnotations(ctx)
		tags, _ := st.CountTags(ctx)
		fmt.Printf("   Entries:     %d\n", entries)
		fmt.Printf("   Annotations: %d\n", annotations)
		fmt.Printf("   Tags:        %d\n", tags)

		pending, err := st.CountPending(ctx)
		if err != nil {
			fatal("failed to read cache: %v", err)
		}
		if pending > 0 {
			fmt.Printf("\n   %s %d queued changes waiting for the next sync\n", ui.RenderWarn("⚠"), pending)
		}

		lastSync, err := st.GetLastSync(ctx)
		if err != nil {
			fatal("failed to read cache: %v", err)
		}
		fmt.Println()
		if lastSync.Equal(time.Unix(0, 0)) {
			fmt.Printf("   Last sync: %s\n", ui.RenderWarn("never"))
		} else {
			fmt.Printf("   Last sync: %s (%s ago)\n",
				lastSync.Local().Format("2006-01-02 15:04:05"),
				time.Since(lastSync).Round(time.Second))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
