package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/daemon"
	"github.com/mschirtzinger/wallasync/internal/ui"
)

var (
	daemonInterval time.Duration
	daemonInbox    string
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run sync continuously in the background",
	Long: `Keep the cache in sync by running a pass on an interval.

With an inbox directory configured (via --inbox or the config file),
files named *.url dropped into it are consumed: each line is queued as a
url to save, the file is removed, and a pass is triggered. This lets
browser extensions or scripts save articles without talking to wsync.

Example usage:
  wsync daemon                          # sync every 15 minutes
  wsync daemon --interval 5m            # sync every 5 minutes
  wsync daemon --inbox ~/wallabag-inbox # also watch an inbox directory

Runs until interrupted.`,
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

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = newLogger("[daemon] ")
		if time.Duration(cfg.Daemon.Interval) > 0 {
			dcfg.SyncInterval = time.Duration(cfg.Daemon.Interval)
		}
		if daemonInterval > 0 {
			dcfg.SyncInterval = daemonInterval
		}
		dcfg.InboxDir = cfg.Daemon.InboxDir
		if daemonInbox != "" {
			dcfg.InboxDir = daemonInbox
		}

		d, err := daemon.New(st, syncer, dcfg)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Starting sync daemon (every %v)...\n", ui.RenderAccent("🚀"), dcfg.SyncInterval)
		if dcfg.InboxDir != "" {
			fmt.Printf("   Watching inbox: %s\n", dcfg.InboxDir)
		}
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fatal("daemon failed: %v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "time between sync passes (overrides config)")
	daemonCmd.Flags().StringVar(&daemonInbox, "inbox", "", "directory to watch for *.url files (overrides config)")
	rootCmd.AddCommand(daemonCmd)
}
