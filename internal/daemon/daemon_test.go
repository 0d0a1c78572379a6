package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/sync"
)

// countingRunner records how often a pass was requested.
type countingRunner struct {
	mu    gosync.Mutex
	count int
}

func (r *countingRunner) Sync(ctx context.Context) (*sync.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return &sync.Result{}, nil
}

func (r *countingRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(os.Stderr, "[daemon-test] ", 0)
	cfg.SyncInterval = time.Hour
	cfg.DebounceInterval = 20 * time.Millisecond
	return cfg
}

func TestNewValidation(t *testing.T) {
	st := setupTestStore(t)

	if _, err := New(nil, &countingRunner{}, nil); err == nil {
		t.Error("New accepted a nil store")
	}
	if _, err := New(st, nil, nil); err == nil {
		t.Error("New accepted a nil runner")
	}
	if _, err := New(st, &countingRunner{}, nil); err != nil {
		t.Errorf("New with default config failed: %v", err)
	}
}

func TestDaemonRunsInitialSync(t *testing.T) {
	st := setupTestStore(t)
	runner := &countingRunner{}

	d, err := New(st, runner, quietConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sync never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonConsumesInbox(t *testing.T) {
	st := setupTestStore(t)
	runner := &countingRunner{}

	cfg := quietConfig()
	cfg.InboxDir = filepath.Join(t.TempDir(), "inbox")

	d, err := New(st, runner, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Wait for the watcher before dropping the file.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(cfg.InboxDir); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("inbox directory never created")
		case <-time.After(10 * time.Millisecond):
		}
	}

	content := "https://example.com/one\n# a comment\n\nhttps://example.com/two\n"
	path := filepath.Join(cfg.InboxDir, "saved.url")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to drop inbox file: %v", err)
	}

	deadline = time.After(5 * time.Second)
	for {
		urls, err := st.GetNewURLs(context.Background())
		if err != nil {
			t.Fatalf("GetNewURLs failed: %v", err)
		}
		if len(urls) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("inbox never consumed, %d urls queued", len(urls))
		case <-time.After(20 * time.Millisecond):
		}
	}

	// The consumed file is removed so it can't be queued twice.
	deadline = time.After(2 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("consumed inbox file not removed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestConsumeInboxFilePreexisting(t *testing.T) {
	st := setupTestStore(t)
	runner := &countingRunner{}

	cfg := quietConfig()
	cfg.InboxDir = t.TempDir()

	// Already-present files are picked up at startup.
	path := filepath.Join(cfg.InboxDir, "old.url")
	if err := os.WriteFile(path, []byte("https://example.com/old\n"), 0644); err != nil {
		t.Fatalf("Failed to write inbox file: %v", err)
	}

	d, err := New(st, runner, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		urls, err := st.GetNewURLs(context.Background())
		if err != nil {
			t.Fatalf("GetNewURLs failed: %v", err)
		}
		if len(urls) == 1 && urls[0].URL == "https://example.com/old" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("preexisting inbox file never consumed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
