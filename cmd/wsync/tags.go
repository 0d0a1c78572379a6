package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
)

var tagsCmd = &cobra.Command{
	Use:     "tags",
	GroupID: "browse",
	Short:   "List cached tags",
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

		tags, err := st.GetTags(cmd.Context())
		if err != nil {
			fatal("failed to list tags: %v", err)
		}
		if len(tags) == 0 {
			fmt.Println("No tags cached. Run 'wsync sync' to refresh the cache.")
			return
		}

		for _, tag := range tags {
			fmt.Printf("%s %s\n", tag.Label, ui.RenderDim("("+tag.Slug+")"))
		}
		fmt.Printf("\n%d tags\n", len(tags))
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}
