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
	"github.com/mschirtzinger/wallasync/internal/dashboard"
	"github.com/mschirtzinger/wallasync/internal/sync"
)

var (
	dashboardAddr     string
	dashboardInterval time.Duration
)

// broadcastingRunner runs sync passes and pushes each pass summary to the
// dashboard. Per-entity events flow through the syncer's Notify hook.
type broadcastingRunner struct {
	syncer *sync.Syncer
	server *dashboard.Server
}

func (r *broadcastingRunner) Sync(ctx context.Context) (*sync.Result, error) {
	result, err := r.syncer.Sync(ctx)
	if err == nil {
		r.server.NotifySyncComplete(result)
	}
	return result, err
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Serve a live view of sync activity",
	Long: `Start a local WebSocket server that streams sync activity, and keep
syncing on an interval while it runs.

Connected clients receive a message per reconciled entity and a summary
per pass. A JSON snapshot of the cache state is served at /status.

Example usage:
  wsync dashboard                        # listen on 127.0.0.1:8846
  wsync dashboard --addr 127.0.0.1:9000  # custom address

Connect with a WebSocket client:
  ws://127.0.0.1:8846/ws

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

		addr := cfg.Dashboard.Addr
		if dashboardAddr != "" {
			addr = dashboardAddr
		}

		server := dashboard.NewServer(st, &dashboard.Config{
			Addr:   addr,
			Logger: newLogger("[dashboard] "),
		})
		if err := server.Start(); err != nil {
			fatal("failed to start dashboard: %v", err)
		}

		syncer, err := newSyncer(cfg, st, "[sync] ")
		if err != nil {
			fatal("%v", err)
		}
		syncer.Notify = server.NotifySyncEvent

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = newLogger("[daemon] ")
		if time.Duration(cfg.Daemon.Interval) > 0 {
			dcfg.SyncInterval = time.Duration(cfg.Daemon.Interval)
		}
		if dashboardInterval > 0 {
			dcfg.SyncInterval = dashboardInterval
		}

		d, err := daemon.New(st, &broadcastingRunner{syncer: syncer, server: server}, dcfg)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Dashboard started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("Cache snapshot: http://%s/status\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		go func() {
			if err := d.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: daemon failed: %v\n", err)
			}
		}()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard...")
		if err := server.Stop(); err != nil {
			fatal("error during shutdown: %v", err)
		}
		fmt.Println("Dashboard stopped")
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", "", "address to listen on (overrides config)")
	dashboardCmd.Flags().DurationVar(&dashboardInterval, "interval", 0, "time between sync passes (overrides config)")
	rootCmd.AddCommand(dashboardCmd)
}
