package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

const entryColumns = `id, content, created_at, domain_name, http_status,
	is_archived, is_public, is_starred, language, mimetype, origin_url,
	preview_picture, published_at, published_by, reading_time, starred_at,
	title, uid, updated_at, url, headers, user_email, user_id, user_name, tags`

// SaveEntry upserts an entry by id. Both tag representations are rewritten:
// the denormalized JSON copy on the entry row, and the normalized tags and
// taglinks rows, which are dropped and rebuilt from the entry's tag list.
// The whole write happens in one transaction.
func (s *Store) SaveEntry(ctx context.Context, entry *wallabag.Entry) error {
	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	publishedBy, err := marshalNullable(entry.PublishedBy)
	if err != nil {
		return fmt.Errorf("failed to marshal published_by: %w", err)
	}
	headers, err := marshalNullable(entry.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO entries (` + entryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		created_at = excluded.created_at,
		domain_name = excluded.domain_name,
		http_status = excluded.http_status,
		is_archived = excluded.is_archived,
		is_public = excluded.is_public,
		is_starred = excluded.is_starred,
		language = excluded.language,
		mimetype = excluded.mimetype,
		origin_url = excluded.origin_url,
		preview_picture = excluded.preview_picture,
		published_at = excluded.published_at,
		published_by = excluded.published_by,
		reading_time = excluded.reading_time,
		starred_at = excluded.starred_at,
		title = excluded.title,
		uid = excluded.uid,
		updated_at = excluded.updated_at,
		url = excluded.url,
		headers = excluded.headers,
		user_email = excluded.user_email,
		user_id = excluded.user_id,
		user_name = excluded.user_name,
		tags = excluded.tags
	`

	_, err = tx.ExecContext(ctx, query,
		entry.ID,
		entry.Content,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.DomainName,
		entry.HTTPStatus,
		bool(entry.IsArchived),
		bool(entry.IsPublic),
		bool(entry.IsStarred),
		entry.Language,
		entry.Mimetype,
		entry.OriginURL,
		entry.PreviewPicture,
		wallabagTimeToNullString(entry.PublishedAt),
		publishedBy,
		entry.ReadingTime,
		wallabagTimeToNullString(entry.StarredAt),
		entry.Title,
		entry.UID,
		entry.UpdatedAt.UTC().Format(time.RFC3339),
		entry.URL,
		headers,
		entry.UserEmail,
		entry.UserID,
		entry.UserName,
		string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %d: %w", entry.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM taglinks WHERE entry_id = ?", entry.ID); err != nil {
		return fmt.Errorf("failed to drop tag links for entry %d: %w", entry.ID, err)
	}
	for _, tag := range entry.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, label, slug) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET label = excluded.label, slug = excluded.slug`,
			tag.ID, tag.Label, tag.Slug); err != nil {
			return fmt.Errorf("failed to upsert tag %d: %w", tag.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO taglinks (entry_id, tag_id) VALUES (?, ?)",
			entry.ID, tag.ID); err != nil {
			return fmt.Errorf("failed to link tag %d to entry %d: %w", tag.ID, entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry %d: %w", entry.ID, err)
	}
	return nil
}

// GetEntry retrieves a single entry by id. Returns nil if not cached.
// Annotations are never loaded here; use GetAnnotationsForEntry.
func (s *Store) GetEntry(ctx context.Context, id int64) (*wallabag.Entry, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE id = ?", id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return entry, nil
}

// GetAllEntries retrieves every cached entry, without content, ordered by
// creation time descending. Content is skipped to keep listing cheap.
func (s *Store) GetAllEntries(ctx context.Context) ([]wallabag.Entry, error) {
	cols := `id, NULL, created_at, domain_name, http_status,
	is_archived, is_public, is_starred, language, mimetype, origin_url,
	preview_picture, published_at, published_by, reading_time, starred_at,
	title, uid, updated_at, url, headers, user_email, user_id, user_name, tags`

	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+cols+" FROM entries ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetEntriesSince retrieves entries with updated_at >= since, with content.
func (s *Store) GetEntriesSince(ctx context.Context, since time.Time) ([]wallabag.Entry, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE updated_at >= ?",
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries since %s: %w", since, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetAllEntryIDs returns the set of cached entry ids. Used by full sync to
// detect entries deleted server-side.
func (s *Store) GetAllEntryIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id FROM entries")
	if err != nil {
		return nil, fmt.Errorf("failed to list entry ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry ids: %w", err)
	}
	return ids, nil
}

// DeleteEntry removes a cached entry. Annotations and tag links cascade.
// Deleting an id that isn't cached is not an error. This only touches the
// cache; to delete remotely too, queue a pending delete first.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	return nil
}

// CountEntries returns the number of cached entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry reads one entry from a row in entryColumns order.
func scanEntry(row rowScanner) (*wallabag.Entry, error) {
	var (
		entry       wallabag.Entry
		createdAt   string
		updatedAt   string
		publishedAt sql.NullString
		starredAt   sql.NullString
		publishedBy sql.NullString
		headers     sql.NullString
		archived    bool
		public      bool
		starred     bool
		tagsJSON    string
	)

	err := row.Scan(
		&entry.ID,
		&entry.Content,
		&createdAt,
		&entry.DomainName,
		&entry.HTTPStatus,
		&archived,
		&public,
		&starred,
		&entry.Language,
		&entry.Mimetype,
		&entry.OriginURL,
		&entry.PreviewPicture,
		&publishedAt,
		&publishedBy,
		&entry.ReadingTime,
		&starredAt,
		&entry.Title,
		&entry.UID,
		&updatedAt,
		&entry.URL,
		&headers,
		&entry.UserEmail,
		&entry.UserID,
		&entry.UserName,
		&tagsJSON,
	)
	if err != nil {
		return nil, err
	}

	entry.IsArchived = wallabag.Bool(archived)
	entry.IsPublic = wallabag.Bool(public)
	entry.IsStarred = wallabag.Bool(starred)

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = wallabag.Time{Time: created}

	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	entry.UpdatedAt = wallabag.Time{Time: updated}

	if entry.PublishedAt, err = parseNullWallabagTime(publishedAt); err != nil {
		return nil, err
	}
	if entry.StarredAt, err = parseNullWallabagTime(starredAt); err != nil {
		return nil, err
	}

	if publishedBy.Valid {
		if err := json.Unmarshal([]byte(publishedBy.String), &entry.PublishedBy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal published_by: %w", err)
		}
	}
	if headers.Valid {
		if err := json.Unmarshal([]byte(headers.String), &entry.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	return &entry, nil
}

// scanEntries reads all entries from a result set.
func scanEntries(rows *sql.Rows) ([]wallabag.Entry, error) {
	var entries []wallabag.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// marshalNullable encodes a slice as JSON, or NULL when the slice is nil.
func marshalNullable(v []string) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// wallabagTimeToNullString converts an optional wallabag timestamp to a
// nullable RFC3339 string.
func wallabagTimeToNullString(t *wallabag.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// parseNullWallabagTime parses an optional stored timestamp.
func parseNullWallabagTime(ns sql.NullString) (*wallabag.Time, error) {
	t, err := parseNullTime(ns)
	if err != nil || t == nil {
		return nil, err
	}
	return &wallabag.Time{Time: *t}, nil
}
