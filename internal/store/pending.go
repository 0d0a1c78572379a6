package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

// NewURL is a queued entry creation: a bare url waiting to be uploaded.
// The id is local only; the server assigns the entry id on creation.
type NewURL struct {
	ID  int64
	URL string
}

// PendingAnnotation is a queued annotation creation. EntryID is the remote
// id of the entry the annotation belongs to; ID is the local queue id.
type PendingAnnotation struct {
	ID      int64
	EntryID int64
	Payload wallabag.NewAnnotation
}

// AddNewURL queues a url to be created as an entry on the next sync.
func (s *Store) AddNewURL(ctx context.Context, url string) error {
	if _, err := s.conn.ExecContext(ctx, "INSERT INTO new_urls (url) VALUES (?)", url); err != nil {
		return fmt.Errorf("failed to queue url %s: %w", url, err)
	}
	return nil
}

// GetNewURLs returns all queued urls in insertion order.
func (s *Store) GetNewURLs(ctx context.Context) ([]NewURL, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, url FROM new_urls ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list queued urls: %w", err)
	}
	defer rows.Close()

	var urls []NewURL
	for rows.Next() {
		var u NewURL
		if err := rows.Scan(&u.ID, &u.URL); err != nil {
			return nil, fmt.Errorf("failed to scan queued url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued urls: %w", err)
	}
	return urls, nil
}

// RemoveNewURL drops a queued url, marking it as successfully created
// remotely. Call only after the create call succeeded.
func (s *Store) RemoveNewURL(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM new_urls WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove queued url %d: %w", id, err)
	}
	return nil
}

// AddNewAnnotation queues an annotation to be created on an entry during
// the next sync. The entry must already have a remote id.
func (s *Store) AddNewAnnotation(ctx context.Context, entryID int64, ann wallabag.NewAnnotation) error {
	rangesJSON, err := json.Marshal(ann.Ranges)
	if err != nil {
		return fmt.Errorf("failed to marshal ranges: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO new_annotations (entry_id, quote, ranges, text) VALUES (?, ?, ?, ?)",
		entryID, ann.Quote, string(rangesJSON), ann.Text)
	if err != nil {
		return fmt.Errorf("failed to queue annotation on entry %d: %w", entryID, err)
	}
	return nil
}

// GetNewAnnotations returns all queued annotation creations in insertion
// order.
func (s *Store) GetNewAnnotations(ctx context.Context) ([]PendingAnnotation, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, entry_id, quote, ranges, text FROM new_annotations ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list queued annotations: %w", err)
	}
	defer rows.Close()

	var pending []PendingAnnotation
	for rows.Next() {
		var (
			p          PendingAnnotation
			rangesJSON string
		)
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Payload.Quote, &rangesJSON, &p.Payload.Text); err != nil {
			return nil, fmt.Errorf("failed to scan queued annotation: %w", err)
		}
		if err := json.Unmarshal([]byte(rangesJSON), &p.Payload.Ranges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ranges: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued annotations: %w", err)
	}
	return pending, nil
}

// RemoveNewAnnotation drops a queued annotation creation. Call only after
// the create call succeeded.
func (s *Store) RemoveNewAnnotation(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM new_annotations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove queued annotation %d: %w", id, err)
	}
	return nil
}

// AddDeleteEntry records that the entry was deleted locally and the delete
// still needs to be pushed. Inserting the same id twice is a no-op.
func (s *Store) AddDeleteEntry(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO deleted_entries (id) VALUES (?)", id); err != nil {
		return fmt.Errorf("failed to queue entry delete %d: %w", id, err)
	}
	return nil
}

// GetEntryDeletes returns the remote ids of entries deleted locally but
// not yet confirmed deleted remotely.
func (s *Store) GetEntryDeletes(ctx context.Context) ([]int64, error) {
	return s.scanIDs(ctx, "SELECT id FROM deleted_entries ORDER BY id ASC")
}

// RemoveDeleteEntry marks a local entry delete as confirmed remote.
func (s *Store) RemoveDeleteEntry(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM deleted_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove entry delete %d: %w", id, err)
	}
	return nil
}

// AddDeleteAnnotation records a local annotation delete awaiting push.
func (s *Store) AddDeleteAnnotation(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO deleted_annotations (id) VALUES (?)", id); err != nil {
		return fmt.Errorf("failed to queue annotation delete %d: %w", id, err)
	}
	return nil
}

// GetAnnotationDeletes returns the remote ids of annotations deleted
// locally but not yet confirmed deleted remotely.
func (s *Store) GetAnnotationDeletes(ctx context.Context) ([]int64, error) {
	return s.scanIDs(ctx, "SELECT id FROM deleted_annotations ORDER BY id ASC")
}

// RemoveDeleteAnnotation marks a local annotation delete as confirmed
// remote.
func (s *Store) RemoveDeleteAnnotation(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM deleted_annotations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove annotation delete %d: %w", id, err)
	}
	return nil
}

// CountPending returns the total depth of the four pending queues.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM new_urls)
		     + (SELECT COUNT(*) FROM new_annotations)
		     + (SELECT COUNT(*) FROM deleted_entries)
		     + (SELECT COUNT(*) FROM deleted_annotations)`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

// GetLastSync returns the sync watermark: the boundary below which the
// cache is assumed consistent with the server.
func (s *Store) GetLastSync(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, "SELECT last_sync FROM sync_meta WHERE id = 1").Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}
	return parseTime(raw)
}

// TouchLastSync advances the watermark to now. Called only as the final
// step of a fully successful sync pass.
func (s *Store) TouchLastSync(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE sync_meta SET last_sync = ? WHERE id = 1", now); err != nil {
		return fmt.Errorf("failed to touch last sync time: %w", err)
	}
	return nil
}

// scanIDs runs a single-column id query.
func (s *Store) scanIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return ids, nil
}
