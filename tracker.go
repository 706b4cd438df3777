package solrbulk

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TrackerState is the relationship bookkeeping a ParentTracker
// accumulates over one run (or one worker's shard of it).
//
// Found holds every parent id any child has referenced. Pending holds
// the found ids whose parent flag is not yet confirmed. Processed holds
// the found ids whose flag is confirmed set, either updated this run or
// already correct in the index. Indexed holds the ids of all documents
// this run has sent to the index; it gates remote lookups so the
// tracker never asks the index about an id the run has not touched.
//
// Processed and Pending are disjoint, and Found covers their union, at
// every point a caller can observe.
type TrackerState struct {
	Found     map[string]struct{}
	Pending   map[string]struct{}
	Processed map[string]struct{}
	Indexed   map[string]struct{}
}

// NewTrackerState returns an empty state.
func NewTrackerState() TrackerState {
	return TrackerState{
		Found:     make(map[string]struct{}),
		Pending:   make(map[string]struct{}),
		Processed: make(map[string]struct{}),
		Indexed:   make(map[string]struct{}),
	}
}

// Merge unions other into s. An id processed by either side counts as
// processed and is removed from pending, so merging worker states keeps
// the disjointness invariant.
func (s TrackerState) Merge(other TrackerState) {
	for id := range other.Found {
		s.Found[id] = struct{}{}
	}
	for id := range other.Pending {
		s.Pending[id] = struct{}{}
	}
	for id := range other.Processed {
		s.Processed[id] = struct{}{}
	}
	for id := range other.Indexed {
		s.Indexed[id] = struct{}{}
	}
	for id := range s.Processed {
		delete(s.Pending, id)
	}
}

// Missing returns found − processed, sorted: the parents no chunk and
// no index lookup could account for.
func (s TrackerState) Missing() []string {
	var ids []string
	for id := range s.Found {
		if _, ok := s.Processed[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s TrackerState) clone() TrackerState {
	c := NewTrackerState()
	c.Merge(s)
	return c
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParentTracker resolves child->parent references against the documents
// of the current chunk first and the remote index second. It is driven
// from a single goroutine per worker; it is not safe for concurrent
// use, and does not need to be.
type ParentTracker struct {
	store DocumentStore
	log   zerolog.Logger
	state TrackerState
}

// NewParentTracker returns a tracker with empty state.
func NewParentTracker(store DocumentStore, log zerolog.Logger) *ParentTracker {
	return &ParentTracker{
		store: store,
		log:   log.With().Str("component", "tracker").Logger(),
		state: NewTrackerState(),
	}
}

// NewParentTrackerFromState returns a tracker seeded with state, used
// for the cross-worker reconciliation pass after sharded runs join.
func NewParentTrackerFromState(store DocumentStore, log zerolog.Logger, state TrackerState) *ParentTracker {
	t := NewParentTracker(store, log)
	t.state.Merge(state)
	return t
}

// State returns a copy of the tracker's bookkeeping.
func (t *ParentTracker) State() TrackerState {
	return t.state.clone()
}

// ObserveChunk registers one chunk of transformed documents, resolves
// what parent references it can, and returns the chunk with any
// in-chunk parent flips applied. Resolution order per id: a matching
// document inside the chunk wins (no remote call); otherwise the index
// is consulted, but only for ids this run has already sent there.
func (t *ParentTracker) ObserveChunk(ctx context.Context, docs []Document) []Document {
	byID := make(map[string]int, len(docs))
	for i, d := range docs {
		if prev, ok := byID[d.ID]; ok {
			t.log.Warn().Str("id", d.ID).Int("first", prev).Int("dup", i).
				Msg("duplicate document id in chunk, keeping the first")
			continue
		}
		byID[d.ID] = i
		t.state.Indexed[d.ID] = struct{}{}
	}

	// First pass: parent ids referenced for the first time this run.
	var actionable []string
	seen := make(map[string]struct{})
	for _, d := range docs {
		if !d.IsChild || d.RelatedDatasetID == "" {
			continue
		}
		p := d.RelatedDatasetID
		if p == d.ID {
			t.log.Warn().Str("id", d.ID).Msg("dataset references itself as parent")
		}
		if _, ok := t.state.Found[p]; ok {
			continue
		}
		t.state.Found[p] = struct{}{}
		if _, ok := t.state.Processed[p]; !ok {
			t.state.Pending[p] = struct{}{}
		}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			actionable = append(actionable, p)
		}
	}
	for _, p := range actionable {
		t.resolve(ctx, p, docs, byID)
	}

	// Second pass: ids left pending by earlier chunks. Their parent may
	// be among this chunk's documents.
	for _, p := range sortedKeys(t.state.Pending) {
		if _, ok := seen[p]; ok {
			continue
		}
		t.resolve(ctx, p, docs, byID)
	}

	return docs
}

// resolve tries the chunk first, then the index.
func (t *ParentTracker) resolve(ctx context.Context, p string, docs []Document, byID map[string]int) {
	if i, ok := byID[p]; ok {
		if !docs[i].IsParent {
			docs[i].IsParent = true
			t.log.Debug().Str("parent", p).Msg("parent found in chunk, flag set")
		}
		t.markProcessed(p)
		return
	}
	if _, ok := t.state.Indexed[p]; !ok {
		// Nothing this run produced has that id; the end-of-run pass
		// will still ask the index in case an earlier run indexed it.
		return
	}
	t.resolveInStore(ctx, p)
}

// resolveInStore fetches p from the index and flags it there if needed.
// Any failure leaves p pending; the next reconciliation point retries.
func (t *ParentTracker) resolveInStore(ctx context.Context, p string) {
	doc, err := t.store.Get(ctx, p)
	if err != nil {
		t.log.Warn().Err(err).Str("parent", p).Msg("parent lookup failed, keeping pending")
		return
	}
	if doc == nil {
		t.log.Debug().Str("parent", p).Msg("parent not in index yet, keeping pending")
		return
	}
	if doc.IsParent {
		t.markProcessed(p)
		t.log.Debug().Str("parent", p).Msg("parent already flagged in index")
		return
	}
	if err := t.store.Add(ctx, []Document{doc.MarkedParent()}); err != nil {
		t.log.Warn().Err(err).Str("parent", p).Msg("parent update failed, keeping pending")
		return
	}
	t.markProcessed(p)
	t.log.Debug().Str("parent", p).Msg("parent flagged in index")
}

func (t *ParentTracker) markProcessed(p string) {
	t.state.Processed[p] = struct{}{}
	delete(t.state.Pending, p)
}

// ReconcilePending is the cheap between-chunks pass: it retries pending
// ids against the index, but only those this run has already indexed.
// Ids never indexed by this run wait for ReconcileFinal.
func (t *ParentTracker) ReconcilePending(ctx context.Context) {
	for _, p := range sortedKeys(t.state.Pending) {
		if _, ok := t.state.Indexed[p]; !ok {
			continue
		}
		t.resolveInStore(ctx, p)
	}
}

// ReconcileFinal drains pending against the index without the
// indexed-this-run gate. It runs after background writes join, so
// parents written by any earlier chunk (or any other worker, when
// called on merged state) are visible. Ids still pending afterwards are
// this run's missing parents.
func (t *ParentTracker) ReconcileFinal(ctx context.Context) {
	for _, p := range sortedKeys(t.state.Pending) {
		t.resolveInStore(ctx, p)
	}
}

// UpdateParent flags one document as a parent directly in the index:
// fetch, strip index-internal fields, set the flag, re-add. It is the
// one-shot maintenance counterpart of the tracker's index resolution.
func UpdateParent(ctx context.Context, store DocumentStore, id string) error {
	doc, err := store.Get(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "getting %s", id)
	}
	if doc == nil {
		return errors.Errorf("no document with id %s", id)
	}
	if doc.IsParent {
		return nil
	}
	return errors.Wrapf(store.Add(ctx, []Document{doc.MarkedParent()}), "updating %s", id)
}
