package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
	"github.com/metsis/solrbulk/mmd"
	"github.com/metsis/solrbulk/solr"
)

// Main holds the options for streaming records from Kafka into the
// index.
type Main struct {
	Hosts   []string `help:"Comma separated list of Kafka hosts and ports."`
	Topics  []string `help:"Comma separated list of Kafka topics to consume."`
	Group   string   `help:"Kafka consumer group id."`
	MaxMsgs int      `help:"Stop after this many messages. 0 streams until interrupted."`

	SolrServer        string `help:"Solr server URL, up to but not including the core name."`
	SolrCore          string `help:"Solr core holding the dataset index."`
	BasicAuthUsername string `help:"Basic auth username for Solr."`
	BasicAuthPassword string `help:"Basic auth password for Solr."`
	CommitAtEnd       bool   `help:"Commit once when the stream ends instead of on every update."`

	ChunkSize int           `help:"Documents per index update."`
	Linger    time.Duration `help:"Flush a partial chunk after this long without filling it."`
}

// NewMain returns a Main with the production defaults.
func NewMain() *Main {
	return &Main{
		Hosts:      []string{"localhost:9092"},
		Topics:     []string{"mmd"},
		Group:      "solrbulk",
		SolrServer: "http://localhost:8983/solr",
		SolrCore:   "mmd",
		ChunkSize:  2500,
		Linger:     5 * time.Second,
	}
}

// Run streams records until the context is canceled or MaxMsgs is
// reached.
func (m *Main) Run(ctx context.Context, log zerolog.Logger) error {
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

	src := NewSource(log)
	src.Hosts = m.Hosts
	src.Topics = m.Topics
	src.Group = m.Group
	src.MaxMsgs = m.MaxMsgs
	if err := src.Open(); err != nil {
		return errors.Wrap(err, "opening kafka source")
	}
	defer src.Close()

	// The source pre-loads records itself, so the indexer only runs
	// the transform stage on the chunks it is handed.
	indexer := solrbulk.NewBulkIndexer(
		solrbulk.Config{ChunkSize: m.ChunkSize},
		store,
		nil,
		mmd.NewTransformer(log),
		solrbulk.OptLogger(log),
	)

	summary, err := Consume(ctx, src, indexer, m.ChunkSize, m.Linger)
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
