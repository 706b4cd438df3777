package solr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
)

// Main holds the options for querying the dataset index. It backs the
// search command, the quick way to check what a run wrote and to clean
// up after one.
type Main struct {
	Query  string `help:"Solr query. Bare terms are matched against the full text field."`
	Rows   int    `help:"Max number of matching datasets."`
	Delete bool   `help:"Delete the matching datasets instead of printing them."`

	SolrServer        string `help:"Solr server URL, up to but not including the core name."`
	SolrCore          string `help:"Solr core holding the dataset index."`
	BasicAuthUsername string `help:"Basic auth username for Solr."`
	BasicAuthPassword string `help:"Basic auth password for Solr."`

	Stdout io.Writer `flag:"-"`
}

// NewMain returns a Main with the production defaults.
func NewMain() *Main {
	return &Main{
		Rows:       10,
		SolrServer: "http://localhost:8983/solr",
		SolrCore:   "mmd",
		Stdout:     os.Stdout,
	}
}

// Run searches the index and prints one line per hit, or deletes the
// hits when Delete is set.
func (m *Main) Run(ctx context.Context, log zerolog.Logger) error {
	if m.SolrServer == "" {
		return errors.New("solr server is required")
	}
	if m.Query == "" {
		return errors.New("a query is required")
	}

	opts := []Option{OptLogger(log), OptAlwaysCommit(true)}
	if m.BasicAuthUsername != "" {
		opts = append(opts, OptBasicAuth(m.BasicAuthUsername, m.BasicAuthPassword))
	}
	client := NewClient(m.SolrServer, m.SolrCore, opts...)

	query := m.Query
	if !strings.Contains(query, ":") {
		query = "full_text:" + query
	}
	res, err := client.Search(ctx, query, m.Rows)
	if err != nil {
		return err
	}

	out := m.Stdout
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "%d datasets match %s\n", res.NumFound, query)
	for _, doc := range res.Docs {
		if m.Delete {
			if err := client.Delete(ctx, doc.ID); err != nil {
				return errors.Wrapf(err, "deleting %s", doc.ID)
			}
			log.Info().Str("id", doc.ID).Msg("deleted")
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", doc.ID, title(doc))
	}
	if m.Delete && res.NumFound > int64(len(res.Docs)) {
		fmt.Fprintf(out, "deleted %d of %d, rerun to delete more\n", len(res.Docs), res.NumFound)
	}
	return nil
}

// title digs the display title out of a fetched document. The index
// stores it either as a plain string or as a single-valued list.
func title(d solrbulk.Document) string {
	switch v := d.Extra["title"].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
