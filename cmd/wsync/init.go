package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the local cache database",
	Long: `Create the local cache database and its schema.

Fails if the database already exists; use 'wsync reset' to wipe an
existing cache. After init, run 'wsync sync' to populate the cache from
the server.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}

		st, err := store.Init(cfg.DBFile)
		if err != nil {
			if errors.Is(err, store.ErrExists) {
				fatal("cache already exists at %s (use 'wsync reset' to wipe it)", cfg.DBFile)
			}
			fatal("failed to initialize cache: %v", err)
		}
		defer st.Close()

		fmt.Printf("%s Initialized cache at %s\n", ui.RenderPass("✓"), cfg.DBFile)
		fmt.Println("Run 'wsync sync' to populate it from the server.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
