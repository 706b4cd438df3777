package bulk

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
	"github.com/metsis/solrbulk/dap"
	"github.com/metsis/solrbulk/file"
	"github.com/metsis/solrbulk/mmd"
	"github.com/metsis/solrbulk/s3"
	"github.com/metsis/solrbulk/solr"
	"github.com/metsis/solrbulk/thumb"
)

// SingleMain holds the options for indexing a handful of records, the
// day-to-day companion to the bulk run. It also covers the small
// maintenance job of flagging an already indexed dataset as a parent.
type SingleMain struct {
	InputFile  string `help:"Metadata file to index."`
	ListFile   string `help:"Index the locations listed in this file, one per line."`
	Region     string `help:"AWS region for S3 locations."`
	MarkParent string `help:"Do not index anything, just mark this dataset id as a parent."`

	SolrServer        string `help:"Solr server URL, up to but not including the core name."`
	SolrCore          string `help:"Solr core holding the dataset index."`
	BasicAuthUsername string `help:"Basic auth username for Solr."`
	BasicAuthPassword string `help:"Basic auth password for Solr."`
	CommitAtEnd       bool   `help:"Commit once at the end of the run instead of on every update."`

	Thumbnails        bool    `help:"Generate thumbnails for datasets with WMS access."`
	ThumbnailHost     string  `help:"Thumbnail generator API host."`
	ThumbnailEndpoint string  `help:"Thumbnail generator API endpoint path."`
	ThumbnailLayer    string  `help:"Force this WMS layer for every thumbnail."`
	ThumbnailStyle    string  `help:"WMS style passed to the thumbnail generator."`

	FeatureTypes bool `help:"Probe OPeNDAP datasets for their CF featureType."`
}

// NewSingleMain returns a SingleMain with the production defaults.
func NewSingleMain() *SingleMain {
	return &SingleMain{
		SolrServer: "http://localhost:8983/solr",
		SolrCore:   "mmd",
	}
}

// Run indexes the requested records, or marks a dataset as parent.
func (m *SingleMain) Run(ctx context.Context, log zerolog.Logger) error {
	if m.SolrServer == "" {
		return errors.New("solr server is required")
	}

	opts := []solr.Option{solr.OptLogger(log), solr.OptAlwaysCommit(!m.CommitAtEnd)}
	if m.BasicAuthUsername != "" {
		opts = append(opts, solr.OptBasicAuth(m.BasicAuthUsername, m.BasicAuthPassword))
	}
	store := solr.NewClient(m.SolrServer, m.SolrCore, opts...)
	if err := store.Ping(ctx); err != nil {
		return err
	}

	if m.MarkParent != "" {
		id := solrbulk.NormalizeID(m.MarkParent)
		if err := solrbulk.UpdateParent(ctx, store, id); err != nil {
			return err
		}
		log.Info().Str("id", id).Msg("marked dataset as parent")
		return m.finish(ctx, store)
	}

	var locations []string
	switch {
	case m.InputFile != "":
		locations = []string{m.InputFile}
	case m.ListFile != "":
		var err error
		locations, err = file.ReadList(m.ListFile)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of input-file, list-file or mark-parent is required")
	}

	loader := solrbulk.SchemeLoader{"": file.Loader{}}
	for _, loc := range locations {
		if strings.HasPrefix(loc, "s3://") {
			s3l, err := s3.NewLoader(m.Region)
			if err != nil {
				return err
			}
			loader["s3"] = s3l
			break
		}
	}

	ixopts := []solrbulk.Option{solrbulk.OptLogger(log)}
	if m.Thumbnails {
		if m.ThumbnailHost == "" {
			return errors.New("thumbnails requested but no thumbnail host configured")
		}
		topts := []thumb.Option{thumb.OptLogger(log)}
		if m.ThumbnailLayer != "" {
			topts = append(topts, thumb.OptLayer(m.ThumbnailLayer))
		}
		if m.ThumbnailStyle != "" {
			topts = append(topts, thumb.OptStyle(m.ThumbnailStyle))
		}
		ixopts = append(ixopts, solrbulk.OptThumbnailer(thumb.NewGenerator(m.ThumbnailHost, m.ThumbnailEndpoint, topts...)))
	}
	if m.FeatureTypes {
		ixopts = append(ixopts, solrbulk.OptFeatureTyper(dap.NewClient(dap.OptLogger(log))))
	}

	indexer := solrbulk.NewBulkIndexer(solrbulk.Config{}, store, loader, mmd.NewTransformer(log), ixopts...)
	summary, err := indexer.Bulkindex(ctx, locations)
	if summary != nil {
		summary.Log(log)
	}
	if err != nil {
		return err
	}
	return m.finish(ctx, store)
}

func (m *SingleMain) finish(ctx context.Context, store *solr.Client) error {
	if !m.CommitAtEnd {
		return nil
	}
	return errors.Wrap(store.Commit(ctx), "final commit")
}
