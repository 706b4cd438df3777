package solrbulk

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Defaults matching the production deployment configuration.
const (
	DefaultChunkSize        = 2500
	DefaultLoadConcurrency  = 20
	DefaultMaxPendingWrites = 4
)

// Config sets the shape of one bulk run.
type Config struct {
	// ChunkSize is the number of records loaded, transformed, and
	// written together.
	ChunkSize int

	// LoadConcurrency bounds the in-flight calls of the load,
	// transform, thumbnail and feature-type passes.
	LoadConcurrency int

	// MaxPendingWrites bounds how many chunk writes may be in flight
	// behind the run before dispatching blocks.
	MaxPendingWrites int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.LoadConcurrency < 1 {
		c.LoadConcurrency = DefaultLoadConcurrency
	}
	if c.MaxPendingWrites < 1 {
		c.MaxPendingWrites = DefaultMaxPendingWrites
	}
	return c
}

// Thumbnailer renders or fetches a preview image for a document's map
// service URL and returns an image URL or data URI.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, wmsURL string, layers []string) (string, error)
}

// FeatureTyper probes a data access URL for the dataset's CF feature
// type.
type FeatureTyper interface {
	FeatureType(ctx context.Context, url string) (string, error)
}

// Option configures optional BulkIndexer collaborators.
type Option func(*BulkIndexer)

// OptLogger sets the run logger.
func OptLogger(log zerolog.Logger) Option {
	return func(b *BulkIndexer) { b.log = log }
}

// OptThumbnailer enables the per-chunk thumbnail pass.
func OptThumbnailer(t Thumbnailer) Option {
	return func(b *BulkIndexer) { b.thumbs = t }
}

// OptFeatureTyper enables the per-chunk feature-type pass.
func OptFeatureTyper(f FeatureTyper) Option {
	return func(b *BulkIndexer) { b.features = f }
}

// OptProgress registers a callback invoked after each chunk with the
// number of locations that chunk consumed. Callbacks must be safe for
// use from a single goroutine per indexer, across indexers when runs
// are sharded.
func OptProgress(fn func(n int)) Option {
	return func(b *BulkIndexer) { b.progress = fn }
}

// BulkIndexer drives one worker's run: chunking, loading, transforming,
// relationship tracking, and background index writes. A BulkIndexer is
// built per run (or per worker shard) and is not reusable.
type BulkIndexer struct {
	cfg       Config
	store     DocumentStore
	loader    RecordLoader
	transform Transformer
	tracker   *ParentTracker
	thumbs    Thumbnailer
	features  FeatureTyper
	progress  func(n int)
	log       zerolog.Logger

	writes  *errgroup.Group
	chunkNo int
	files   int
	indexed atomic.Int64
	skipped atomic.Int64
}

// NewBulkIndexer wires a run. store and transform are required; loader
// may be nil when the caller feeds pre-loaded records to ProcessChunk.
// Thumbnails and feature types run only when the options provide them.
func NewBulkIndexer(cfg Config, store DocumentStore, loader RecordLoader, transform Transformer, opts ...Option) *BulkIndexer {
	b := &BulkIndexer{
		cfg:       cfg.withDefaults(),
		store:     store,
		loader:    loader,
		transform: transform,
		log:       zerolog.Nop(),
		writes:    &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.writes.SetLimit(b.cfg.MaxPendingWrites)
	b.tracker = NewParentTracker(store, b.log)
	return b
}

// Bulkindex runs the whole pipeline over locations and returns the run
// summary. Per-item failures never abort the run; the returned error is
// non-nil only when ctx was canceled.
func (b *BulkIndexer) Bulkindex(ctx context.Context, locations []string) (*Summary, error) {
	for start := 0; start < len(locations); start += b.cfg.ChunkSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+b.cfg.ChunkSize, len(locations))
		chunk := locations[start:end]
		b.ProcessChunk(ctx, b.loadChunk(ctx, chunk))
		if b.progress != nil {
			b.progress(len(chunk))
		}
	}
	return b.Finish(ctx)
}

// loadChunk fetches one chunk of records with bounded concurrency.
// Failed locations are logged, counted, and dropped.
func (b *BulkIndexer) loadChunk(ctx context.Context, locations []string) []RawRecord {
	recs := make([]RawRecord, 0, len(locations))
	results := Concurrently(ctx, b.cfg.LoadConcurrency, locations,
		func(ctx context.Context, loc string) ([]byte, error) {
			return b.loader.Load(ctx, loc)
		})
	for r := range results {
		if r.Err != nil {
			b.files++
			b.skipped.Add(1)
			b.log.Warn().Err(r.Err).Str("location", r.In).Msg("load failed")
			continue
		}
		recs = append(recs, RawRecord{Location: r.In, Data: r.Out})
	}
	return recs
}

// ProcessChunk takes one chunk of raw records through transform,
// enrichment, relationship tracking, and a background index write. The
// kafka source feeds accumulated message batches through here directly.
func (b *BulkIndexer) ProcessChunk(ctx context.Context, recs []RawRecord) {
	b.chunkNo++
	b.files += len(recs)
	log := b.log.With().Int("chunk", b.chunkNo).Logger()

	docs := make([]Document, 0, len(recs))
	results := Concurrently(ctx, b.cfg.LoadConcurrency, recs,
		func(_ context.Context, rec RawRecord) (Document, error) {
			return b.transform.Transform(rec)
		})
	for r := range results {
		if r.Err != nil {
			b.skipped.Add(1)
			log.Warn().Err(r.Err).Str("location", r.In.Location).Msg("record rejected")
			continue
		}
		docs = append(docs, r.Out)
	}
	if len(docs) == 0 {
		log.Info().Int("records", len(recs)).Msg("nothing indexable in chunk")
		return
	}

	if b.features != nil {
		b.probeFeatureTypes(ctx, docs)
	}
	if b.thumbs != nil {
		b.fetchThumbnails(ctx, docs)
	}

	docs = b.tracker.ObserveChunk(ctx, docs)

	// The write goes out in the background so the next chunk can start
	// loading; Finish joins all of them before reconciling. A failed
	// write costs its documents, never the run.
	b.writes.Go(func() error {
		if err := b.store.Add(ctx, docs); err != nil {
			b.skipped.Add(int64(len(docs)))
			log.Error().Err(err).Int("docs", len(docs)).Msg("chunk write failed")
			return nil
		}
		b.indexed.Add(int64(len(docs)))
		log.Debug().Int("docs", len(docs)).Msg("chunk written")
		return nil
	})

	b.tracker.ReconcilePending(ctx)
	log.Info().Int("records", len(recs)).Int("docs", len(docs)).Msg("chunk processed")
}

// probeFeatureTypes fills in the feature_type field for documents with
// an OPeNDAP access URL. Probe failures cost nothing but the field.
func (b *BulkIndexer) probeFeatureTypes(ctx context.Context, docs []Document) {
	var idx []int
	for i := range docs {
		if s, ok := docs[i].Extra[OpendapURLField].(string); ok && s != "" {
			idx = append(idx, i)
		}
	}
	results := Concurrently(ctx, b.cfg.LoadConcurrency, idx,
		func(ctx context.Context, i int) (string, error) {
			url := docs[i].Extra[OpendapURLField].(string)
			return b.features.FeatureType(ctx, url)
		})
	for r := range results {
		if r.Err != nil {
			b.log.Debug().Err(r.Err).Str("id", docs[r.In].ID).Msg("feature type probe failed")
			continue
		}
		docs[r.In].Extra[FeatureTypeField] = r.Out
	}
}

// fetchThumbnails fills in thumbnail_url for documents with a WMS
// access URL. On failure the WMS field itself is dropped from the
// outgoing document.
func (b *BulkIndexer) fetchThumbnails(ctx context.Context, docs []Document) {
	var idx []int
	for i := range docs {
		if s, ok := docs[i].Extra[WMSURLField].(string); ok && s != "" {
			idx = append(idx, i)
		}
	}
	results := Concurrently(ctx, b.cfg.LoadConcurrency, idx,
		func(ctx context.Context, i int) (string, error) {
			url := docs[i].Extra[WMSURLField].(string)
			return b.thumbs.Thumbnail(ctx, url, stringSlice(docs[i].Extra[WMSLayersField]))
		})
	for r := range results {
		if r.Err != nil {
			b.log.Warn().Err(r.Err).Str("id", docs[r.In].ID).Msg("thumbnail failed, dropping wms url")
			delete(docs[r.In].Extra, WMSURLField)
			continue
		}
		docs[r.In].Extra[ThumbnailField] = r.Out
	}
}

// Finish joins the background writes, drains pending parents against
// the index, and assembles the summary.
func (b *BulkIndexer) Finish(ctx context.Context) (*Summary, error) {
	_ = b.writes.Wait()
	b.tracker.ReconcileFinal(ctx)
	s := NewSummary()
	s.FilesProcessed = b.files
	s.DocsIndexed = int(b.indexed.Load())
	s.DocsSkipped = int(b.skipped.Load())
	s.Tracking = b.tracker.State()
	return s, ctx.Err()
}

// RunWorkers shards locations across workers running independent
// BulkIndexers against the same store, merges their summaries, and runs
// one more reconciliation over the merged state. That last pass is what
// catches a parent indexed by a different worker than the one that saw
// the child reference.
func RunWorkers(ctx context.Context, workers int, locations []string, store DocumentStore, newIndexer func() *BulkIndexer, log zerolog.Logger) (*Summary, error) {
	shards := shardLocations(locations, workers)

	summaries := make([]*Summary, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		i := i
		g.Go(func() error {
			s, err := newIndexer().Bulkindex(gctx, shards[i])
			summaries[i] = s
			return err
		})
	}
	err := g.Wait()

	total := NewSummary()
	for _, s := range summaries {
		if s != nil {
			total.Merge(s)
		}
	}
	if len(shards) > 1 {
		tr := NewParentTrackerFromState(store, log, total.Tracking)
		tr.ReconcileFinal(ctx)
		total.Tracking = tr.State()
	}
	return total, err
}

// shardLocations splits locations into at most n contiguous shards.
func shardLocations(locations []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	if n > len(locations) {
		n = len(locations)
	}
	if n == 0 {
		return nil
	}
	size := (len(locations) + n - 1) / n
	shards := make([][]string, 0, n)
	for start := 0; start < len(locations); start += size {
		shards = append(shards, locations[start:min(start+size, len(locations))])
	}
	return shards
}

func stringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return nil
}
