// Package sync reconciles the local cache against the wallabag server.
package sync

import (
	"context"

	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

// Remote is the server surface the sync engine drives. *wallabag.Client
// satisfies it; tests substitute a fake.
//
// Implementations are expected to retry an expired access token
// transparently (at most once) and to surface every other failure. The
// engine never sees raw token expiry.
type Remote interface {
	// ListEntries fetches entries matching the filter, following
	// pagination to the last page. Listed entries embed their tags and
	// annotations.
	ListEntries(ctx context.Context, filter wallabag.EntriesFilter) ([]wallabag.Entry, error)

	// CreateEntry saves a new entry for a url and returns the entity the
	// server built for it, with id and server-computed fields populated.
	CreateEntry(ctx context.Context, newEntry wallabag.NewEntry) (*wallabag.Entry, error)

	// UpdateEntry patches an entry and returns the server's canonical
	// version, which may differ from the patch (tag slugs, reading time).
	UpdateEntry(ctx context.Context, id int64, patch wallabag.PatchEntry) (*wallabag.Entry, error)

	// DeleteEntry removes an entry server-side. The returned entity
	// carries the deleted entry's fields.
	DeleteEntry(ctx context.Context, id int64) (*wallabag.Entry, error)

	// CreateAnnotation attaches an annotation to an entry and returns the
	// created entity with its server-assigned id.
	CreateAnnotation(ctx context.Context, entryID int64, newAnn wallabag.NewAnnotation) (*wallabag.Annotation, error)

	// UpdateAnnotation replaces an annotation's content server-side and
	// returns the canonical version.
	UpdateAnnotation(ctx context.Context, ann wallabag.Annotation) (*wallabag.Annotation, error)

	// DeleteAnnotation removes an annotation server-side.
	DeleteAnnotation(ctx context.Context, id int64) error
}
