// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Runs a sync pass on a fixed interval
// 2. Optionally watches an inbox directory for dropped *.url files
// 3. Queues inbox urls as pending creates and triggers a pass
// 4. Handles graceful shutdown
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/sync"
)

// Runner is the part of the sync engine the daemon drives.
type Runner interface {
	Sync(ctx context.Context) (*sync.Result, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a periodic pass runs.
	SyncInterval time.Duration

	// InboxDir, when non-empty, is watched for *.url files. Each file is
	// consumed: its urls are queued and the file removed.
	InboxDir string

	// DebounceInterval is how long a dropped file must sit quiet before
	// it is consumed. Editors and browsers often write in several steps.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. The inbox watcher stays off
// until InboxDir is set.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     15 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs periodic sync passes and consumes the inbox directory.
type Daemon struct {
	store  *store.Store
	runner Runner
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu gosync.Mutex
	syncNow       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a daemon. Use Start() to begin running.
func New(st *store.Store, runner Runner, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 15 * time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       st,
		runner:      runner,
		config:      config,
		changeQueue: make(map[string]time.Time),
		syncNow:     make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon runs an initial pass immediately, then keeps syncing on the
// configured interval. This blocks until ctx is cancelled or startup
// fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if _, err := d.runner.Sync(ctx); err != nil {
		d.config.Logger.Printf("Initial sync failed: %v", err)
	}

	if d.config.InboxDir != "" {
		if err := d.startWatcher(); err != nil {
			return err
		}
		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

func (d *Daemon) startWatcher() error {
	if err := os.MkdirAll(d.config.InboxDir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(d.config.InboxDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}
	d.watcher = watcher

	// Files dropped before the daemon started are still consumed.
	existing, err := filepath.Glob(filepath.Join(d.config.InboxDir, "*.url"))
	if err == nil {
		for _, path := range existing {
			d.queueChange(path)
		}
	}

	d.config.Logger.Printf("Watching inbox: %s", d.config.InboxDir)
	return nil
}

// syncLoop runs periodic passes and on-demand passes requested by the
// inbox consumer.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		case <-d.syncNow:
		}

		result, err := d.runner.Sync(d.ctx)
		if err != nil {
			d.config.Logger.Printf("Sync failed: %v", err)
			continue
		}
		d.config.Logger.Printf("Sync: %d pulled, %d pushed, %d created, %d deleted",
			result.EntriesPulled, result.EntriesPushed, result.EntriesCreated, result.EntriesDeleted)
	}
}

// watchFileEvents monitors the inbox and queues dropped url files.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".url" {
				continue
			}
			d.config.Logger.Printf("Inbox event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file for consumption once it has gone quiet.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue consumes queued files after the debounce interval.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}

		d.changeQueueMu.Lock()
		var ready []string
		cutoff := time.Now().Add(-d.config.DebounceInterval)
		for path, queued := range d.changeQueue {
			if queued.Before(cutoff) {
				ready = append(ready, path)
				delete(d.changeQueue, path)
			}
		}
		d.changeQueueMu.Unlock()

		queued := 0
		for _, path := range ready {
			n, err := d.consumeInboxFile(path)
			if err != nil {
				d.config.Logger.Printf("Warning: failed to consume %s: %v", path, err)
				continue
			}
			queued += n
		}
		if queued > 0 {
			d.config.Logger.Printf("Queued %d urls from inbox", queued)
			d.requestSync()
		}
	}
}

// consumeInboxFile queues every url in the file and removes it. Blank
// lines and #-comments are skipped.
func (d *Daemon) consumeInboxFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := d.store.AddNewURL(d.ctx, line); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return count, err
	}
	return count, nil
}

// requestSync asks the sync loop for an immediate pass without blocking.
func (d *Daemon) requestSync() {
	select {
	case d.syncNow <- struct{}{}:
	default:
	}
}
