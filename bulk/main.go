// Package bulk wires complete indexing runs: discover locations, load
// and transform records, resolve parent links and push documents to
// the index in chunks.
package bulk

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	solrbulk "github.com/metsis/solrbulk"
	"github.com/metsis/solrbulk/dap"
	"github.com/metsis/solrbulk/file"
	"github.com/metsis/solrbulk/mmd"
	"github.com/metsis/solrbulk/s3"
	"github.com/metsis/solrbulk/solr"
	"github.com/metsis/solrbulk/thumb"
)

// Main holds the options for a bulk indexing run.
type Main struct {
	Directory string `help:"Index every .xml file under this directory."`
	ListFile  string `help:"Index the locations listed in this file, one per line."`
	Bucket    string `help:"Index every object under this S3 bucket."`
	Prefix    string `help:"Only S3 objects matching this prefix are indexed."`
	Region    string `help:"AWS region for S3 locations."`

	SolrServer        string `help:"Solr server URL, up to but not including the core name."`
	SolrCore          string `help:"Solr core holding the dataset index."`
	BasicAuthUsername string `help:"Basic auth username for Solr."`
	BasicAuthPassword string `help:"Basic auth password for Solr."`
	CommitAtEnd       bool   `help:"Commit once at the end of the run instead of on every update."`

	ChunkSize int `help:"Documents per index update."`
	Workers   int `help:"Parallel workers, each indexing its own shard of the input."`
	Threads   int `help:"Concurrent record loads per worker."`

	Thumbnails        bool          `help:"Generate thumbnails for datasets with WMS access."`
	ThumbnailHost     string        `help:"Thumbnail generator API host."`
	ThumbnailEndpoint string        `help:"Thumbnail generator API endpoint path."`
	ThumbnailLayer    string        `help:"Force this WMS layer for every thumbnail."`
	ThumbnailStyle    string        `help:"WMS style passed to the thumbnail generator."`
	ThumbnailCache    string        `help:"Path of the on-disk thumbnail cache. Empty disables caching."`
	ThumbnailRate     float64       `help:"Max thumbnail API requests per second."`
	ThumbnailTimeout  time.Duration `help:"Timeout for a single thumbnail API request."`

	FeatureTypes bool `help:"Probe OPeNDAP datasets for their CF featureType."`
	Progress     bool `help:"Render a progress bar on stderr."`
}

// NewMain returns a Main with the production defaults.
func NewMain() *Main {
	return &Main{
		SolrServer:    "http://localhost:8983/solr",
		SolrCore:      "mmd",
		ChunkSize:        2500,
		Workers:          10,
		Threads:          20,
		ThumbnailRate:    2,
		ThumbnailTimeout: 2 * time.Minute,
	}
}

// Run executes the bulk indexing run.
func (m *Main) Run(ctx context.Context, log zerolog.Logger) error {
	if m.SolrServer == "" {
		return errors.New("solr server is required")
	}
	if m.Thumbnails && m.ThumbnailHost == "" {
		return errors.New("thumbnails requested but no thumbnail host configured")
	}

	store := m.newStore(log)
	if err := store.Ping(ctx); err != nil {
		return err
	}

	locations, loader, err := m.resolveInput(ctx)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		log.Warn().Msg("no input records found")
		return nil
	}
	log.Info().Int("locations", len(locations)).Int("workers", m.Workers).Msg("starting bulk run")

	opts, cleanup, err := m.indexerOptions(log, len(locations))
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := solrbulk.Config{ChunkSize: m.ChunkSize, LoadConcurrency: m.Threads}
	transform := mmd.NewTransformer(log)
	newIndexer := func() *solrbulk.BulkIndexer {
		return solrbulk.NewBulkIndexer(cfg, store, loader, transform, opts...)
	}

	summary, err := solrbulk.RunWorkers(ctx, m.Workers, locations, store, newIndexer, log)
	if summary != nil {
		summary.Log(log)
	}
	if err != nil {
		return err
	}
	if m.CommitAtEnd {
		if err := store.Commit(ctx); err != nil {
			return errors.Wrap(err, "final commit")
		}
	}
	return nil
}

func (m *Main) newStore(log zerolog.Logger) *solr.Client {
	opts := []solr.Option{solr.OptLogger(log), solr.OptAlwaysCommit(!m.CommitAtEnd)}
	if m.BasicAuthUsername != "" {
		opts = append(opts, solr.OptBasicAuth(m.BasicAuthUsername, m.BasicAuthPassword))
	}
	return solr.NewClient(m.SolrServer, m.SolrCore, opts...)
}

// resolveInput discovers the run's locations and builds a loader that
// can fetch all of them.
func (m *Main) resolveInput(ctx context.Context) ([]string, solrbulk.RecordLoader, error) {
	loader := solrbulk.SchemeLoader{"": file.Loader{}}

	var locations []string
	switch {
	case m.Directory != "":
		var err error
		locations, err = file.FindXML(m.Directory)
		if err != nil {
			return nil, nil, err
		}
	case m.ListFile != "":
		var err error
		locations, err = file.ReadList(m.ListFile)
		if err != nil {
			return nil, nil, err
		}
	case m.Bucket != "":
		s3l, err := s3.NewLoader(m.Region)
		if err != nil {
			return nil, nil, err
		}
		loader["s3"] = s3l
		locations, err = s3l.List(ctx, m.Bucket, m.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return locations, loader, nil
	default:
		return nil, nil, errors.New("one of directory, list-file or bucket is required")
	}

	// A list file may mix local paths and s3 uris.
	for _, loc := range locations {
		if strings.HasPrefix(loc, "s3://") {
			s3l, err := s3.NewLoader(m.Region)
			if err != nil {
				return nil, nil, err
			}
			loader["s3"] = s3l
			break
		}
	}
	return locations, loader, nil
}

// indexerOptions assembles the per-run extras: the thumbnail and
// feature type passes and the progress bar. The returned cleanup
// closes whatever the options opened.
func (m *Main) indexerOptions(log zerolog.Logger, total int) ([]solrbulk.Option, func(), error) {
	opts := []solrbulk.Option{solrbulk.OptLogger(log)}
	cleanup := func() {}

	if m.Thumbnails {
		topts := []thumb.Option{thumb.OptLogger(log)}
		if m.ThumbnailLayer != "" {
			topts = append(topts, thumb.OptLayer(m.ThumbnailLayer))
		}
		if m.ThumbnailStyle != "" {
			topts = append(topts, thumb.OptStyle(m.ThumbnailStyle))
		}
		if m.ThumbnailRate > 0 {
			topts = append(topts, thumb.OptRateLimit(m.ThumbnailRate))
		}
		if m.ThumbnailTimeout > 0 {
			topts = append(topts, thumb.OptTimeout(m.ThumbnailTimeout))
		}
		if m.ThumbnailCache != "" {
			cache, err := thumb.OpenCache(m.ThumbnailCache)
			if err != nil {
				return nil, nil, err
			}
			topts = append(topts, thumb.OptCache(cache))
			cleanup = func() { _ = cache.Close() }
		}
		opts = append(opts, solrbulk.OptThumbnailer(thumb.NewGenerator(m.ThumbnailHost, m.ThumbnailEndpoint, topts...)))
	}
	if m.FeatureTypes {
		opts = append(opts, solrbulk.OptFeatureTyper(dap.NewClient(dap.OptLogger(log))))
	}
	if m.Progress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionOnCompletion(func() { os.Stderr.WriteString("\n") }),
		)
		opts = append(opts, solrbulk.OptProgress(func(n int) { _ = bar.Add(n) }))
	}
	return opts, cleanup, nil
}
