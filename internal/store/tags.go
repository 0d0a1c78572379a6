package store

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

// SaveTag upserts a tag by id.
func (s *Store) SaveTag(ctx context.Context, tag *wallabag.Tag) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO tags (id, label, slug) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label, slug = excluded.slug`,
		tag.ID, tag.Label, tag.Slug)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %d: %w", tag.ID, err)
	}
	return nil
}

// SaveTagLink records that an entry carries a tag.
func (s *Store) SaveTagLink(ctx context.Context, entryID, tagID int64) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO taglinks (entry_id, tag_id) VALUES (?, ?)",
		entryID, tagID)
	if err != nil {
		return fmt.Errorf("failed to link tag %d to entry %d: %w", tagID, entryID, err)
	}
	return nil
}

// DropTagLinksForEntry removes all tag links of an entry, normally right
// before rebuilding them from a freshly pulled tag list.
func (s *Store) DropTagLinksForEntry(ctx context.Context, entryID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM taglinks WHERE entry_id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to drop tag links for entry %d: %w", entryID, err)
	}
	return nil
}

// DeleteUnusedTags removes tags that no entry links to anymore. Tag
// lifecycle is derived entirely from entry tag lists, so this is the only
// way a tag ever leaves the cache.
func (s *Store) DeleteUnusedTags(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM tags WHERE NOT EXISTS
		(SELECT 1 FROM taglinks WHERE taglinks.tag_id = tags.id)`)
	if err != nil {
		return fmt.Errorf("failed to delete unused tags: %w", err)
	}
	return nil
}

// GetTags retrieves all cached tags ordered by label.
func (s *Store) GetTags(ctx context.Context) ([]wallabag.Tag, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, label, slug FROM tags ORDER BY label ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []wallabag.Tag
	for rows.Next() {
		var tag wallabag.Tag
		if err := rows.Scan(&tag.ID, &tag.Label, &tag.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// GetTagsForEntry retrieves an entry's tags through the normalized link
// table. This is the browsing path; the denormalized copy on the entry row
// serves exports.
func (s *Store) GetTagsForEntry(ctx context.Context, entryID int64) ([]wallabag.Tag, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT t.id, t.label, t.slug FROM tags t
		JOIN taglinks tl ON tl.tag_id = t.id
		WHERE tl.entry_id = ?
		ORDER BY t.label ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	var tags []wallabag.Tag
	for rows.Next() {
		var tag wallabag.Tag
		if err := rows.Scan(&tag.ID, &tag.Label, &tag.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// CountTags returns the number of cached tags.
func (s *Store) CountTags(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tags: %w", err)
	}
	return count, nil
}
