package solrbulk

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader serves record bytes from a map.
type fakeLoader struct {
	mu   sync.Mutex
	data map[string][]byte
	errs map[string]error
}

func (f *fakeLoader) Load(_ context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[location]; err != nil {
		return nil, err
	}
	d, ok := f.data[location]
	if !ok {
		return nil, errors.Errorf("no record at %q", location)
	}
	return d, nil
}

// lineTransformer reads records of the form "id" or "child>parent".
// The literal "reject" is refused, standing in for metadata that fails
// validation.
var lineTransformer = TransformerFunc(func(rec RawRecord) (Document, error) {
	s := strings.TrimSpace(string(rec.Data))
	if s == "" || s == "reject" {
		return Document{}, errors.Errorf("unusable record at %s", rec.Location)
	}
	id, parent, isChild := strings.Cut(s, ">")
	d := Document{
		ID:          NormalizeID(id),
		DatasetType: Level1,
		Extra:       map[string]interface{}{"title": id},
	}
	if isChild {
		d.DatasetType = Level2
		d.IsChild = true
		d.RelatedDataset = parent
		d.RelatedDatasetID = NormalizeID(parent)
	}
	return d, nil
})

type fakeThumbs struct {
	mu     sync.Mutex
	err    error
	layers [][]string
}

func (f *fakeThumbs) Thumbnail(_ context.Context, wmsURL string, layers []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layers = append(f.layers, layers)
	if f.err != nil {
		return "", f.err
	}
	return "https://thumbs.example/preview.png", nil
}

type fakeFeatures struct {
	err error
	typ string
}

func (f fakeFeatures) FeatureType(context.Context, string) (string, error) {
	return f.typ, f.err
}

func TestBulkindexResolvesParentAcrossChunks(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"a.xml": []byte("no.met:a"),
		"b.xml": []byte("no.met:b>no.met:x"),
		"x.xml": []byte("no.met:x"),
		"d.xml": []byte("no.met:d"),
		"e.xml": []byte("no.met:e"),
	}}
	store := newFakeStore()
	b := NewBulkIndexer(Config{ChunkSize: 2}, store, loader, lineTransformer)

	s, err := b.Bulkindex(context.Background(), []string{"a.xml", "b.xml", "x.xml", "d.xml", "e.xml"})
	require.NoError(t, err)

	assert.Equal(t, 5, s.FilesProcessed)
	assert.Equal(t, 5, s.DocsIndexed)
	assert.Equal(t, 0, s.DocsSkipped)
	assert.Empty(t, s.Missing(), "the parent arrived in a later chunk of the same run")

	x, ok := store.doc("no-met-x")
	require.True(t, ok)
	assert.True(t, x.IsParent)
	bdoc, ok := store.doc("no-met-b")
	require.True(t, ok)
	assert.True(t, bdoc.IsChild)
	assert.Equal(t, "no-met-x", bdoc.RelatedDatasetID)
}

func TestBulkindexCountsFailures(t *testing.T) {
	loader := &fakeLoader{
		data: map[string][]byte{
			"good1.xml": []byte("no.met:one"),
			"bad.xml":   []byte("reject"),
			"good2.xml": []byte("no.met:two"),
		},
		errs: map[string]error{"gone.xml": errors.New("stat: no such file")},
	}
	store := newFakeStore()
	b := NewBulkIndexer(Config{}, store, loader, lineTransformer)

	s, err := b.Bulkindex(context.Background(), []string{"good1.xml", "gone.xml", "bad.xml", "good2.xml"})
	require.NoError(t, err)

	assert.Equal(t, 4, s.FilesProcessed, "failed locations still count as processed")
	assert.Equal(t, 2, s.DocsIndexed)
	assert.Equal(t, 2, s.DocsSkipped)
	_, ok := store.doc("no-met-one")
	assert.True(t, ok)
	_, ok = store.doc("reject")
	assert.False(t, ok)
}

func TestBulkindexChunkWriteFailure(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"a.xml": []byte("no.met:a"),
		"b.xml": []byte("no.met:b"),
		"c.xml": []byte("no.met:c"),
	}}
	store := newFakeStore()
	store.addErr = errors.New("solr returned 503")
	b := NewBulkIndexer(Config{}, store, loader, lineTransformer)

	s, err := b.Bulkindex(context.Background(), []string{"a.xml", "b.xml", "c.xml"})
	require.NoError(t, err, "a failed write costs its documents, not the run")

	assert.Equal(t, 0, s.DocsIndexed)
	assert.Equal(t, 3, s.DocsSkipped)
	assert.Equal(t, 3, s.FilesProcessed)
}

func TestBulkindexParentFromEarlierRun(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"b.xml": []byte("no.met:b>no.met:old"),
	}}
	store := newFakeStore(dataset("no.met:old"))
	b := NewBulkIndexer(Config{}, store, loader, lineTransformer)

	s, err := b.Bulkindex(context.Background(), []string{"b.xml"})
	require.NoError(t, err)

	assert.Empty(t, s.Missing())
	old, _ := store.doc("no-met-old")
	assert.True(t, old.IsParent)
	assert.Equal(t, 1, store.getCount("no-met-old"),
		"the between-chunk pass must not ask the index about ids this run never indexed")
}

func TestBulkindexReportsMissingParents(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"b.xml": []byte("no.met:b>no.met:ghost"),
	}}
	store := newFakeStore()
	b := NewBulkIndexer(Config{}, store, loader, lineTransformer)

	s, err := b.Bulkindex(context.Background(), []string{"b.xml"})
	require.NoError(t, err)

	assert.Equal(t, []string{"no-met-ghost"}, s.Missing())
	assert.Equal(t, 1, s.DocsIndexed, "the child is indexed even when its parent never shows up")
}

func TestRunWorkersReconcilesAcrossWorkers(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"b.xml": []byte("no.met:b>no.met:x"),
		"x.xml": []byte("no.met:x"),
	}}
	store := newFakeStore()
	newIndexer := func() *BulkIndexer {
		return NewBulkIndexer(Config{}, store, loader, lineTransformer)
	}

	s, err := RunWorkers(context.Background(), 2, []string{"b.xml", "x.xml"}, store, newIndexer, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, s.FilesProcessed)
	assert.Equal(t, 2, s.DocsIndexed)
	assert.Empty(t, s.Missing(), "the joined pass sees parents indexed by other workers")
	x, _ := store.doc("no-met-x")
	assert.True(t, x.IsParent)
}

func TestThumbnailSuccessAndFailure(t *testing.T) {
	withWMS := TransformerFunc(func(rec RawRecord) (Document, error) {
		d, err := lineTransformer.Transform(rec)
		if err != nil {
			return d, err
		}
		d.Extra[WMSURLField] = "https://wms.example/" + d.ID
		d.Extra[WMSLayersField] = []string{"ice_conc"}
		return d, nil
	})
	loader := &fakeLoader{data: map[string][]byte{"a.xml": []byte("no.met:a")}}

	t.Run("success sets thumbnail_url", func(t *testing.T) {
		store := newFakeStore()
		thumbs := &fakeThumbs{}
		b := NewBulkIndexer(Config{}, store, loader, withWMS, OptThumbnailer(thumbs))
		_, err := b.Bulkindex(context.Background(), []string{"a.xml"})
		require.NoError(t, err)

		a, _ := store.doc("no-met-a")
		assert.Equal(t, "https://thumbs.example/preview.png", a.Extra[ThumbnailField])
		assert.Equal(t, "https://wms.example/no-met-a", a.Extra[WMSURLField])
		require.Len(t, thumbs.layers, 1)
		assert.Equal(t, []string{"ice_conc"}, thumbs.layers[0])
	})

	t.Run("failure drops the wms url", func(t *testing.T) {
		store := newFakeStore()
		thumbs := &fakeThumbs{err: errors.New("render timed out")}
		b := NewBulkIndexer(Config{}, store, loader, withWMS, OptThumbnailer(thumbs))
		s, err := b.Bulkindex(context.Background(), []string{"a.xml"})
		require.NoError(t, err)

		assert.Equal(t, 1, s.DocsIndexed, "the document is still indexed")
		a, _ := store.doc("no-met-a")
		assert.NotContains(t, a.Extra, WMSURLField)
		assert.NotContains(t, a.Extra, ThumbnailField)
	})
}

func TestFeatureTypeProbe(t *testing.T) {
	withDap := TransformerFunc(func(rec RawRecord) (Document, error) {
		d, err := lineTransformer.Transform(rec)
		if err != nil {
			return d, err
		}
		d.Extra[OpendapURLField] = "https://dap.example/" + d.ID
		return d, nil
	})
	loader := &fakeLoader{data: map[string][]byte{"a.xml": []byte("no.met:a")}}

	t.Run("probe fills feature_type", func(t *testing.T) {
		store := newFakeStore()
		b := NewBulkIndexer(Config{}, store, loader, withDap, OptFeatureTyper(fakeFeatures{typ: "timeSeries"}))
		_, err := b.Bulkindex(context.Background(), []string{"a.xml"})
		require.NoError(t, err)

		a, _ := store.doc("no-met-a")
		assert.Equal(t, "timeSeries", a.Extra[FeatureTypeField])
	})

	t.Run("probe failure leaves the document alone", func(t *testing.T) {
		store := newFakeStore()
		b := NewBulkIndexer(Config{}, store, loader, withDap, OptFeatureTyper(fakeFeatures{err: errors.New("das unreachable")}))
		s, err := b.Bulkindex(context.Background(), []string{"a.xml"})
		require.NoError(t, err)

		assert.Equal(t, 1, s.DocsIndexed)
		a, _ := store.doc("no-met-a")
		assert.NotContains(t, a.Extra, FeatureTypeField)
		assert.Equal(t, "https://dap.example/no-met-a", a.Extra[OpendapURLField])
	})
}

func TestProgressSeesEveryLocation(t *testing.T) {
	loader := &fakeLoader{data: map[string][]byte{
		"a.xml": []byte("no.met:a"),
		"b.xml": []byte("no.met:b"),
		"c.xml": []byte("no.met:c"),
		"d.xml": []byte("no.met:d"),
		"e.xml": []byte("no.met:e"),
	}}
	var calls []int
	b := NewBulkIndexer(Config{ChunkSize: 2}, newFakeStore(), loader, lineTransformer,
		OptProgress(func(n int) { calls = append(calls, n) }))

	_, err := b.Bulkindex(context.Background(), []string{"a.xml", "b.xml", "c.xml", "d.xml", "e.xml"})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, calls)
}

func TestShardLocations(t *testing.T) {
	locs := []string{"a", "b", "c", "d", "e"}

	shards := shardLocations(locs, 2)
	require.Len(t, shards, 2)
	assert.Equal(t, []string{"a", "b", "c"}, shards[0])
	assert.Equal(t, []string{"d", "e"}, shards[1])

	assert.Len(t, shardLocations(locs, 1), 1)
	assert.Len(t, shardLocations(locs, 10), 5, "never more shards than locations")
	assert.Empty(t, shardLocations(nil, 4))
}
