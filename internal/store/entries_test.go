package store

import (
	"context"
	"testing"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

func TestSaveAndGetEntry(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	language := "en"
	entry.Language = &language
	entry.IsStarred = true
	entry.ReadingTime = 7
	entry.PublishedBy = []string{"Jane Doe"}
	starred := wallabag.Time{Time: now}
	entry.StarredAt = &starred
	entry.Tags = []wallabag.Tag{
		{ID: 10, Label: "go", Slug: "go"},
		{ID: 11, Label: "sync", Slug: "sync"},
	}

	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	got, err := st.GetEntry(ctx, 1)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got == nil {
		t.Fatal("entry not found after save")
	}
	if *got.Title != *entry.Title {
		t.Errorf("title = %q, want %q", *got.Title, *entry.Title)
	}
	if *got.Content != *entry.Content {
		t.Errorf("content = %q, want %q", *got.Content, *entry.Content)
	}
	if *got.Language != "en" {
		t.Errorf("language = %q, want en", *got.Language)
	}
	if !bool(got.IsStarred) || bool(got.IsArchived) {
		t.Errorf("flags = starred:%v archived:%v, want starred only", got.IsStarred, got.IsArchived)
	}
	if got.ReadingTime != 7 {
		t.Errorf("reading time = %d, want 7", got.ReadingTime)
	}
	if got.StarredAt == nil || !got.StarredAt.Equal(now) {
		t.Errorf("starred_at = %v, want %v", got.StarredAt, now)
	}
	if len(got.PublishedBy) != 1 || got.PublishedBy[0] != "Jane Doe" {
		t.Errorf("published_by = %v, want [Jane Doe]", got.PublishedBy)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, now)
	}
	if len(got.Tags) != 2 {
		t.Errorf("%d embedded tags, want 2", len(got.Tags))
	}
}

func TestGetEntryMissing(t *testing.T) {
	st := setupTestStore(t)

	entry, err := st.GetEntry(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry != nil {
		t.Errorf("got %+v for a missing id, want nil", entry)
	}
}

func TestSaveEntryUpsert(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	entry.Tags = []wallabag.Tag{{ID: 10, Label: "go", Slug: "go"}}
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	// Second save replaces the row and its tag links entirely.
	title := "Revised"
	entry.Title = &title
	entry.UpdatedAt = wallabag.Time{Time: now.Add(time.Minute)}
	entry.Tags = []wallabag.Tag{{ID: 11, Label: "rust", Slug: "rust"}}
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("second SaveEntry failed: %v", err)
	}

	if n, _ := st.CountEntries(ctx); n != 1 {
		t.Errorf("%d entries after upsert, want 1", n)
	}
	got, _ := st.GetEntry(ctx, 1)
	if *got.Title != "Revised" {
		t.Errorf("title = %q, want Revised", *got.Title)
	}
	tags, err := st.GetTagsForEntry(ctx, 1)
	if err != nil {
		t.Fatalf("GetTagsForEntry failed: %v", err)
	}
	if len(tags) != 1 || tags[0].Label != "rust" {
		t.Errorf("linked tags = %v, want [rust]", tags)
	}
}

func TestTagRepresentationsAgree(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	entry.Tags = []wallabag.Tag{
		{ID: 12, Label: "alpha", Slug: "alpha"},
		{ID: 10, Label: "beta", Slug: "beta"},
	}
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	got, _ := st.GetEntry(ctx, 1)
	linked, err := st.GetTagsForEntry(ctx, 1)
	if err != nil {
		t.Fatalf("GetTagsForEntry failed: %v", err)
	}
	if len(linked) != len(got.Tags) {
		t.Fatalf("normalized has %d tags, denormalized %d", len(linked), len(got.Tags))
	}
	want := map[int64]string{}
	for _, tag := range got.Tags {
		want[tag.ID] = tag.Label
	}
	for _, tag := range linked {
		if want[tag.ID] != tag.Label {
			t.Errorf("tag %d = %q in links, %q on entry", tag.ID, tag.Label, want[tag.ID])
		}
	}
}

func TestGetAllEntriesSkipsContent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	second := testEntry(2, now)
	second.CreatedAt = wallabag.Time{Time: now.Add(time.Minute)}
	if err := st.SaveEntry(ctx, second); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	entries, err := st.GetAllEntries(ctx)
	if err != nil {
		t.Fatalf("GetAllEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("%d entries, want 2", len(entries))
	}
	// Newest creation first.
	if entries[0].ID != 2 || entries[1].ID != 1 {
		t.Errorf("order = [%d %d], want [2 1]", entries[0].ID, entries[1].ID)
	}
	for _, e := range entries {
		if e.Content != nil {
			t.Errorf("entry %d listed with content", e.ID)
		}
	}
}

func TestGetEntriesSince(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	old := testEntry(1, now.Add(-time.Hour))
	recent := testEntry(2, now)
	if err := st.SaveEntry(ctx, old); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveEntry(ctx, recent); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	entries, err := st.GetEntriesSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetEntriesSince failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 2 {
		t.Errorf("entries since = %v, want just entry 2", entries)
	}

	// The cutoff is inclusive.
	entries, err = st.GetEntriesSince(ctx, now)
	if err != nil {
		t.Fatalf("GetEntriesSince failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("%d entries at exact cutoff, want 1", len(entries))
	}
}

func TestDeleteEntryCascades(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := testEntry(1, now)
	entry.Tags = []wallabag.Tag{{ID: 10, Label: "go", Slug: "go"}}
	if err := st.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	ann := wallabag.Annotation{ID: 100, Text: "note", CreatedAt: wallabag.Time{Time: now}, UpdatedAt: wallabag.Time{Time: now}}
	if err := st.SaveAnnotation(ctx, &ann, 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	if err := st.DeleteEntry(ctx, 1); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}

	if got, _ := st.GetEntry(ctx, 1); got != nil {
		t.Error("entry survived delete")
	}
	if got, _ := st.GetAnnotation(ctx, 100); got != nil {
		t.Error("annotation survived entry delete")
	}
	if tags, _ := st.GetTagsForEntry(ctx, 1); len(tags) != 0 {
		t.Error("tag links survived entry delete")
	}

	// Deleting again is a no-op.
	if err := st.DeleteEntry(ctx, 1); err != nil {
		t.Errorf("repeat DeleteEntry failed: %v", err)
	}
}
