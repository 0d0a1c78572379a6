package store

import (
	"context"
	"testing"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

func testAnnotation(id int64, updated time.Time) *wallabag.Annotation {
	quote := "the interesting part"
	start := "/p[1]"
	end := "/p[1]"
	return &wallabag.Annotation{
		ID:        id,
		Quote:     &quote,
		Text:      "worth remembering",
		Ranges:    []wallabag.Range{{Start: &start, End: &end, StartOffset: "0", EndOffset: "20"}},
		CreatedAt: wallabag.Time{Time: updated.Add(-time.Hour)},
		UpdatedAt: wallabag.Time{Time: updated},
	}
}

func TestSaveAndGetAnnotation(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := st.SaveEntry(ctx, testEntry(1, now)); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	ann := testAnnotation(100, now)
	if err := st.SaveAnnotation(ctx, ann, 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	got, err := st.GetAnnotation(ctx, 100)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got == nil {
		t.Fatal("annotation not found after save")
	}
	if got.Text != ann.Text {
		t.Errorf("text = %q, want %q", got.Text, ann.Text)
	}
	if got.Quote == nil || *got.Quote != *ann.Quote {
		t.Errorf("quote = %v, want %q", got.Quote, *ann.Quote)
	}
	if len(got.Ranges) != 1 || got.Ranges[0].EndOffset != "20" {
		t.Errorf("ranges = %v, want original range", got.Ranges)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, now)
	}
}

func TestGetAnnotationMissing(t *testing.T) {
	st := setupTestStore(t)

	got, err := st.GetAnnotation(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v for a missing id, want nil", got)
	}
}

func TestGetAnnotationsForEntry(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := st.SaveEntry(ctx, testEntry(1, now)); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveEntry(ctx, testEntry(2, now)); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(100, now), 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(101, now), 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(102, now), 2); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	anns, err := st.GetAnnotationsForEntry(ctx, 1)
	if err != nil {
		t.Fatalf("GetAnnotationsForEntry failed: %v", err)
	}
	if len(anns) != 2 {
		t.Errorf("%d annotations for entry 1, want 2", len(anns))
	}
}

func TestGetAnnotationsSince(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := st.SaveEntry(ctx, testEntry(1, now)); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(100, now.Add(-time.Hour)), 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(101, now), 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	anns, err := st.GetAnnotationsSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetAnnotationsSince failed: %v", err)
	}
	if len(anns) != 1 || anns[0].ID != 101 {
		t.Fatalf("annotations since = %v, want just 101", anns)
	}
	// The pairing back to the owning entry is what the push phase needs.
	if anns[0].EntryID != 1 {
		t.Errorf("entry id = %d, want 1", anns[0].EntryID)
	}
}

func TestDeleteAnnotation(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := st.SaveEntry(ctx, testEntry(1, now)); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := st.SaveAnnotation(ctx, testAnnotation(100, now), 1); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	if err := st.DeleteAnnotation(ctx, 100); err != nil {
		t.Fatalf("DeleteAnnotation failed: %v", err)
	}
	if got, _ := st.GetAnnotation(ctx, 100); got != nil {
		t.Error("annotation survived delete")
	}
	if err := st.DeleteAnnotation(ctx, 100); err != nil {
		t.Errorf("repeat DeleteAnnotation failed: %v", err)
	}
}
