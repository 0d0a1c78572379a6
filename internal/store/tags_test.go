package store

import (
	"context"
	"testing"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

func TestGetTags(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	entry.Tags = []wallabag.Tag{
		{ID: 10, Label: "zig", Slug: "zig"},
		{ID: 11, Label: "ada", Slug: "ada"},
	}
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	tags, err := st.GetTags(ctx)
	if err != nil {
		t.Fatalf("GetTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("%d tags, want 2", len(tags))
	}
	// Ordered by label.
	if tags[0].Label != "ada" || tags[1].Label != "zig" {
		t.Errorf("order = [%s %s], want [ada zig]", tags[0].Label, tags[1].Label)
	}
}

func TestDeleteUnusedTags(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	shared := wallabag.Tag{ID: 10, Label: "shared", Slug: "shared"}
	only1 := wallabag.Tag{ID: 11, Label: "only-one", Slug: "only-one"}

	e1 := testEntry(1, now)
	e1.Tags = []wallabag.Tag{shared, only1}
	e2 := testEntry(2, now)
	e2.Tags = []wallabag.Tag{shared}
	if err := st.SaveEntry(ctx, e1); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveEntry(ctx, e2); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	// Nothing is orphaned yet, so nothing may go.
	if err := st.DeleteUnusedTags(ctx); err != nil {
		t.Fatalf("DeleteUnusedTags failed: %v", err)
	}
	if n, _ := st.CountTags(ctx); n != 2 {
		t.Errorf("%d tags after no-op collection, want 2", n)
	}

	// Dropping entry 1 orphans only-one; shared is still linked from
	// entry 2 and must survive.
	if err := st.DeleteEntry(ctx, 1); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if err := st.DeleteUnusedTags(ctx); err != nil {
		t.Fatalf("DeleteUnusedTags failed: %v", err)
	}

	tags, _ := st.GetTags(ctx)
	if len(tags) != 1 || tags[0].Label != "shared" {
		t.Errorf("tags after collection = %v, want [shared]", tags)
	}
}

func TestGetTagsForEntry(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	e1 := testEntry(1, now)
	e1.Tags = []wallabag.Tag{{ID: 10, Label: "go", Slug: "go"}}
	e2 := testEntry(2, now)
	e2.Tags = []wallabag.Tag{{ID: 11, Label: "rust", Slug: "rust"}}
	if err := st.SaveEntry(ctx, e1); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveEntry(ctx, e2); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	tags, err := st.GetTagsForEntry(ctx, 2)
	if err != nil {
		t.Fatalf("GetTagsForEntry failed: %v", err)
	}
	if len(tags) != 1 || tags[0].Label != "rust" {
		t.Errorf("tags for entry 2 = %v, want [rust]", tags)
	}

	tags, err = st.GetTagsForEntry(ctx, 3)
	if err != nil {
		t.Fatalf("GetTagsForEntry failed: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("tags for unknown entry = %v, want none", tags)
	}
}
