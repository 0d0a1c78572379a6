package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

const annotationColumns = `id, annotator_schema_version, created_at, ranges,
	text, updated_at, quote, user, entry_id`

// StoredAnnotation pairs an annotation with the id of the entry it belongs
// to. The payload itself doesn't carry the entry id; the row does.
type StoredAnnotation struct {
	wallabag.Annotation
	EntryID int64
}

// SaveAnnotation upserts an annotation by id. The entry id comes from the
// caller because annotations are always fetched or created in the context
// of an entry.
func (s *Store) SaveAnnotation(ctx context.Context, ann *wallabag.Annotation, entryID int64) error {
	rangesJSON, err := json.Marshal(ann.Ranges)
	if err != nil {
		return fmt.Errorf("failed to marshal ranges: %w", err)
	}

	query := `
	INSERT INTO annotations (` + annotationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		annotator_schema_version = excluded.annotator_schema_version,
		created_at = excluded.created_at,
		ranges = excluded.ranges,
		text = excluded.text,
		updated_at = excluded.updated_at,
		quote = excluded.quote,
		user = excluded.user,
		entry_id = excluded.entry_id
	`

	_, err = s.conn.ExecContext(ctx, query,
		ann.ID,
		ann.AnnotatorSchemaVersion,
		ann.CreatedAt.UTC().Format(time.RFC3339),
		string(rangesJSON),
		ann.Text,
		ann.UpdatedAt.UTC().Format(time.RFC3339),
		ann.Quote,
		ann.User,
		entryID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert annotation %d: %w", ann.ID, err)
	}
	return nil
}

// GetAnnotation retrieves a single annotation by id. Returns nil if not
// cached.
func (s *Store) GetAnnotation(ctx context.Context, id int64) (*wallabag.Annotation, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+annotationColumns+" FROM annotations WHERE id = ?", id)

	stored, err := scanAnnotation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation %d: %w", id, err)
	}
	return &stored.Annotation, nil
}

// GetAnnotationsForEntry retrieves all cached annotations on an entry.
func (s *Store) GetAnnotationsForEntry(ctx context.Context, entryID int64) ([]wallabag.Annotation, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+annotationColumns+" FROM annotations WHERE entry_id = ? ORDER BY created_at ASC",
		entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	stored, err := scanAnnotations(rows)
	if err != nil {
		return nil, err
	}
	anns := make([]wallabag.Annotation, 0, len(stored))
	for _, sa := range stored {
		anns = append(anns, sa.Annotation)
	}
	return anns, nil
}

// GetAnnotationsSince retrieves annotations with updated_at >= since, each
// paired with its owning entry id so pushes can save results back.
func (s *Store) GetAnnotationsSince(ctx context.Context, since time.Time) ([]StoredAnnotation, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+annotationColumns+" FROM annotations WHERE updated_at >= ?",
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations since %s: %w", since, err)
	}
	defer rows.Close()

	return scanAnnotations(rows)
}

// GetAllAnnotationIDs returns the set of cached annotation ids. Used by
// full sync to detect annotations deleted server-side.
func (s *Store) GetAllAnnotationIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id FROM annotations")
	if err != nil {
		return nil, fmt.Errorf("failed to list annotation ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan annotation id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating annotation ids: %w", err)
	}
	return ids, nil
}

// DeleteAnnotation removes a cached annotation. Idempotent, cache-only.
func (s *Store) DeleteAnnotation(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete annotation %d: %w", id, err)
	}
	return nil
}

// CountAnnotations returns the number of cached annotations.
func (s *Store) CountAnnotations(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM annotations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", err)
	}
	return count, nil
}

// scanAnnotation reads one annotation in annotationColumns order.
func scanAnnotation(row rowScanner) (*StoredAnnotation, error) {
	var (
		stored     StoredAnnotation
		createdAt  string
		updatedAt  string
		rangesJSON string
	)

	err := row.Scan(
		&stored.ID,
		&stored.AnnotatorSchemaVersion,
		&createdAt,
		&rangesJSON,
		&stored.Text,
		&updatedAt,
		&stored.Quote,
		&stored.User,
		&stored.EntryID,
	)
	if err != nil {
		return nil, err
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	stored.CreatedAt = wallabag.Time{Time: created}

	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	stored.UpdatedAt = wallabag.Time{Time: updated}

	if err := json.Unmarshal([]byte(rangesJSON), &stored.Ranges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranges: %w", err)
	}

	return &stored, nil
}

// scanAnnotations reads all annotations from a result set.
func scanAnnotations(rows *sql.Rows) ([]StoredAnnotation, error) {
	var anns []StoredAnnotation
	for rows.Next() {
		stored, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		anns = append(anns, *stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating annotations: %w", err)
	}
	return anns, nil
}
