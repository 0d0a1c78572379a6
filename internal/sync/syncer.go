package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

// EventKind identifies what happened during a sync pass.
type EventKind string

const (
	EventEntryPulled       EventKind = "entry_pulled"
	EventEntryPushed       EventKind = "entry_pushed"
	EventEntryCreated      EventKind = "entry_created"
	EventEntryDeleted      EventKind = "entry_deleted"
	EventAnnotationPulled  EventKind = "annotation_pulled"
	EventAnnotationPushed  EventKind = "annotation_pushed"
	EventAnnotationCreated EventKind = "annotation_created"
	EventAnnotationDeleted EventKind = "annotation_deleted"
)

// Event describes a single reconciliation outcome. Events fire as they
// happen, before the pass is known to succeed, so consumers should treat
// them as progress reporting, not as durable facts.
type Event struct {
	Kind         EventKind `json:"kind"`
	EntryID      int64     `json:"entry_id,omitempty"`
	AnnotationID int64     `json:"annotation_id,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// Result summarizes a completed sync pass.
type Result struct {
	Full               bool
	EntriesPulled      int
	EntriesPushed      int
	EntriesCreated     int
	EntriesDeleted     int
	AnnotationsPulled  int
	AnnotationsPushed  int
	AnnotationsCreated int
	AnnotationsDeleted int
	Duration           time.Duration
}

// Syncer reconciles the local store against the remote server.
//
// A pass runs its phases strictly in order: push pending deletes
// (annotations before entries, so an annotation delete can't 404 because
// its parent entry's delete already cascaded), pull and reconcile, push
// locally changed entities the pull didn't surface, push pending creates,
// collect orphaned tags, and finally advance the watermark.
//
// Any remote failure aborts the pass at that point. Work already done
// stays committed and the watermark stays put, so the next pass re-covers
// the same window; reconciliation is idempotent and pending records are
// only removed after their remote call succeeds, so the retry is safe.
//
// Exactly one pass may run at a time against a given store.
type Syncer struct {
	store  *store.Store
	remote Remote
	logger *log.Logger

	// Notify, when set, receives an Event per reconciliation outcome.
	Notify func(Event)
}

// New creates a Syncer. If logger is nil, a default logger writing to
// stderr is used.
func New(st *store.Store, remote Remote, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		store:  st,
		remote: remote,
		logger: logger,
	}
}

// Sync runs an incremental pass: only entities the server reports as
// updated since the watermark are considered. It will not notice entries
// or annotations deleted server-side, nor annotations edited server-side
// whose parent entry wasn't also touched; FullSync covers those.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	return s.run(ctx, false)
}

// FullSync runs a pass over the complete remote entry set. On top of
// everything Sync does, an entry or annotation cached locally but absent
// from the remote enumeration is deleted locally. Strictly more expensive
// than Sync.
func (s *Syncer) FullSync(ctx context.Context) (*Result, error) {
	return s.run(ctx, true)
}

func (s *Syncer) run(ctx context.Context, full bool) (*Result, error) {
	start := time.Now()
	res := &Result{Full: full}

	since, err := s.store.GetLastSync(ctx)
	if err != nil {
		return res, err
	}
	if full {
		since = time.Unix(0, 0).UTC()
	}
	s.logger.Printf("Starting sync (full=%v, since=%s)", full, since.Format(time.RFC3339))

	if err := s.pushDeletes(ctx, res); err != nil {
		return res, err
	}

	seenEntries := make(map[int64]struct{})
	seenAnns := make(map[int64]struct{})
	if err := s.pull(ctx, since, full, seenEntries, seenAnns, res); err != nil {
		return res, err
	}

	if err := s.pushChanged(ctx, since, seenEntries, seenAnns, res); err != nil {
		return res, err
	}

	if err := s.pushCreates(ctx, res); err != nil {
		return res, err
	}

	if err := s.store.DeleteUnusedTags(ctx); err != nil {
		return res, err
	}

	// Reached only if every phase succeeded; a pass that failed earlier
	// leaves the watermark alone and the next pass re-covers the window.
	if err := s.store.TouchLastSync(ctx); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	s.logger.Printf("Sync complete in %v: %d pulled, %d pushed, %d created, %d deleted",
		res.Duration.Round(time.Millisecond),
		res.EntriesPulled, res.EntriesPushed, res.EntriesCreated, res.EntriesDeleted)
	return res, nil
}

// pushDeletes pushes the pending local deletes, annotations first.
func (s *Syncer) pushDeletes(ctx context.Context, res *Result) error {
	annIDs, err := s.store.GetAnnotationDeletes(ctx)
	if err != nil {
		return err
	}
	for _, id := range annIDs {
		err := s.remote.DeleteAnnotation(ctx, id)
		if err != nil && !errors.Is(err, wallabag.ErrNotFound) {
			return fmt.Errorf("failed to push annotation delete: %w", err)
		}
		if err != nil {
			s.logger.Printf("Annotation %d already gone server-side", id)
		}
		if err := s.store.RemoveDeleteAnnotation(ctx, id); err != nil {
			return err
		}
		res.AnnotationsDeleted++
		s.emit(Event{Kind: EventAnnotationDeleted, AnnotationID: id})
	}

	entryIDs, err := s.store.GetEntryDeletes(ctx)
	if err != nil {
		return err
	}
	for _, id := range entryIDs {
		_, err := s.remote.DeleteEntry(ctx, id)
		if err != nil && !errors.Is(err, wallabag.ErrNotFound) {
			return fmt.Errorf("failed to push entry delete: %w", err)
		}
		if err != nil {
			s.logger.Printf("Entry %d already gone server-side", id)
		}
		if err := s.store.RemoveDeleteEntry(ctx, id); err != nil {
			return err
		}
		res.EntriesDeleted++
		s.emit(Event{Kind: EventEntryDeleted, EntryID: id})
	}
	return nil
}

// pull fetches remote entries and reconciles each against the cache. In
// full mode it also deletes local entities absent from the enumeration.
func (s *Syncer) pull(ctx context.Context, since time.Time, full bool, seenEntries, seenAnns map[int64]struct{}, res *Result) error {
	filter := wallabag.EntriesFilter{}
	if !full {
		filter.Since = since.Unix()
	}

	entries, err := s.remote.ListEntries(ctx, filter)
	if err != nil {
		return err
	}
	s.logger.Printf("Server reported %d entries", len(entries))

	for i := range entries {
		if err := s.reconcileEntry(ctx, &entries[i], seenEntries, seenAnns, res); err != nil {
			return err
		}
	}

	if !full {
		return nil
	}

	// The enumeration above is complete, so anything cached but unlisted
	// was deleted server-side. Entry deletes cascade to annotations and
	// tag links; stray annotations on surviving entries go separately.
	localEntries, err := s.store.GetAllEntryIDs(ctx)
	if err != nil {
		return err
	}
	for id := range localEntries {
		if _, ok := seenEntries[id]; ok {
			continue
		}
		if err := s.store.DeleteEntry(ctx, id); err != nil {
			return err
		}
		res.EntriesDeleted++
		s.emit(Event{Kind: EventEntryDeleted, EntryID: id})
	}

	localAnns, err := s.store.GetAllAnnotationIDs(ctx)
	if err != nil {
		return err
	}
	for id := range localAnns {
		if _, ok := seenAnns[id]; ok {
			continue
		}
		if err := s.store.DeleteAnnotation(ctx, id); err != nil {
			return err
		}
		res.AnnotationsDeleted++
		s.emit(Event{Kind: EventAnnotationDeleted, AnnotationID: id})
	}
	return nil
}

// reconcileEntry applies the resolver to one remote entry. The ids of the
// entry and its embedded annotations are recorded as seen so the push
// phase doesn't send them a second time.
func (s *Syncer) reconcileEntry(ctx context.Context, remote *wallabag.Entry, seenEntries, seenAnns map[int64]struct{}, res *Result) error {
	seenEntries[remote.ID] = struct{}{}
	for _, ann := range remote.Annotations {
		seenAnns[ann.ID] = struct{}{}
	}

	local, err := s.store.GetEntry(ctx, remote.ID)
	if err != nil {
		return err
	}
	var localUpdated *time.Time
	if local != nil {
		t := local.UpdatedAt.Time
		localUpdated = &t
	}

	switch Resolve(localUpdated, remote.UpdatedAt.Time) {
	case ActionPull:
		return s.pullEntry(ctx, remote, res)

	case ActionNoOp:
		// The entry itself is in sync, but annotation edits don't bump
		// the parent's updated_at, so the embedded annotations still
		// need reconciling.
		for i := range remote.Annotations {
			if err := s.reconcileAnnotation(ctx, &remote.Annotations[i], remote.ID, res); err != nil {
				return err
			}
		}
		return nil

	case ActionPush:
		updated, err := s.remote.UpdateEntry(ctx, remote.ID, local.Patch())
		if err != nil {
			return err
		}
		res.EntriesPushed++
		s.emit(Event{Kind: EventEntryPushed, EntryID: remote.ID})
		// Pull the response to pick up server-canonicalized fields.
		return s.pullEntry(ctx, updated, res)
	}
	return nil
}

// pullEntry writes a remote entry into the cache and reconciles its
// embedded annotations. SaveEntry rebuilds both tag representations.
func (s *Syncer) pullEntry(ctx context.Context, entry *wallabag.Entry, res *Result) error {
	if err := s.store.SaveEntry(ctx, entry); err != nil {
		return err
	}
	res.EntriesPulled++
	s.emit(Event{Kind: EventEntryPulled, EntryID: entry.ID})

	for i := range entry.Annotations {
		if err := s.reconcileAnnotation(ctx, &entry.Annotations[i], entry.ID, res); err != nil {
			return err
		}
	}
	return nil
}

// reconcileAnnotation applies the resolver to one remote annotation.
func (s *Syncer) reconcileAnnotation(ctx context.Context, remote *wallabag.Annotation, entryID int64, res *Result) error {
	local, err := s.store.GetAnnotation(ctx, remote.ID)
	if err != nil {
		return err
	}
	var localUpdated *time.Time
	if local != nil {
		t := local.UpdatedAt.Time
		localUpdated = &t
	}

	switch Resolve(localUpdated, remote.UpdatedAt.Time) {
	case ActionPull:
		if err := s.store.SaveAnnotation(ctx, remote, entryID); err != nil {
			return err
		}
		res.AnnotationsPulled++
		s.emit(Event{Kind: EventAnnotationPulled, AnnotationID: remote.ID, EntryID: entryID})

	case ActionNoOp:

	case ActionPush:
		updated, err := s.remote.UpdateAnnotation(ctx, *local)
		if err != nil {
			return err
		}
		if err := s.store.SaveAnnotation(ctx, updated, entryID); err != nil {
			return err
		}
		res.AnnotationsPushed++
		s.emit(Event{Kind: EventAnnotationPushed, AnnotationID: remote.ID, EntryID: entryID})
	}
	return nil
}

// pushChanged pushes locally updated entities the pull phase didn't
// surface. The incremental filter only reports server-side changes, so a
// local-only edit inside the window shows up here and nowhere else.
func (s *Syncer) pushChanged(ctx context.Context, since time.Time, seenEntries, seenAnns map[int64]struct{}, res *Result) error {
	entries, err := s.store.GetEntriesSince(ctx, since)
	if err != nil {
		return err
	}
	for i := range entries {
		entry := &entries[i]
		if _, ok := seenEntries[entry.ID]; ok {
			continue
		}
		updated, err := s.remote.UpdateEntry(ctx, entry.ID, entry.Patch())
		if err != nil {
			return err
		}
		res.EntriesPushed++
		s.emit(Event{Kind: EventEntryPushed, EntryID: entry.ID})
		if err := s.pullEntry(ctx, updated, res); err != nil {
			return err
		}
	}

	anns, err := s.store.GetAnnotationsSince(ctx, since)
	if err != nil {
		return err
	}
	for _, sa := range anns {
		if _, ok := seenAnns[sa.ID]; ok {
			continue
		}
		updated, err := s.remote.UpdateAnnotation(ctx, sa.Annotation)
		if err != nil {
			return err
		}
		if err := s.store.SaveAnnotation(ctx, updated, sa.EntryID); err != nil {
			return err
		}
		res.AnnotationsPushed++
		s.emit(Event{Kind: EventAnnotationPushed, AnnotationID: sa.ID, EntryID: sa.EntryID})
	}
	return nil
}

// pushCreates uploads the pending queues: urls first, then annotations.
// A pending record is removed only after its remote call succeeded, so a
// failed pass leaves the record for the next one.
func (s *Syncer) pushCreates(ctx context.Context, res *Result) error {
	urls, err := s.store.GetNewURLs(ctx)
	if err != nil {
		return err
	}
	for _, u := range urls {
		entry, err := s.remote.CreateEntry(ctx, wallabag.NewEntry{URL: u.URL})
		if err != nil {
			return fmt.Errorf("failed to push queued url: %w", err)
		}
		if err := s.pullEntry(ctx, entry, res); err != nil {
			return err
		}
		if err := s.store.RemoveNewURL(ctx, u.ID); err != nil {
			return err
		}
		res.EntriesCreated++
		s.emit(Event{Kind: EventEntryCreated, EntryID: entry.ID, URL: u.URL})
	}

	pending, err := s.store.GetNewAnnotations(ctx)
	if err != nil {
		return err
	}
	for _, p := range pending {
		ann, err := s.remote.CreateAnnotation(ctx, p.EntryID, p.Payload)
		if err != nil {
			return fmt.Errorf("failed to push queued annotation: %w", err)
		}
		if err := s.store.SaveAnnotation(ctx, ann, p.EntryID); err != nil {
			return err
		}
		if err := s.store.RemoveNewAnnotation(ctx, p.ID); err != nil {
			return err
		}
		res.AnnotationsCreated++
		s.emit(Event{Kind: EventAnnotationCreated, AnnotationID: ann.ID, EntryID: p.EntryID})
	}
	return nil
}

func (s *Syncer) emit(ev Event) {
	if s.Notify != nil {
		s.Notify(ev)
	}
}
