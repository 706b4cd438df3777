package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	rc := NewRootCommand(strings.NewReader(""), &out, &out)
	return rc, &out
}

func TestRootHasSubcommands(t *testing.T) {
	rc, _ := newTestRoot()
	var names []string
	for _, c := range rc.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"bulk", "index", "kafka", "search"} {
		assert.Contains(t, names, want)
	}
}

func TestBulkFlagsDerivedFromMain(t *testing.T) {
	rc, _ := newTestRoot()
	bulkCmd, _, err := rc.Find([]string{"bulk"})
	require.NoError(t, err)

	for _, name := range []string{
		"directory", "list-file", "bucket", "prefix", "region",
		"solr-server", "solr-core", "basic-auth-username", "commit-at-end",
		"chunk-size", "workers", "threads",
		"thumbnails", "thumbnail-host", "thumbnail-cache", "thumbnail-rate",
		"thumbnail-timeout", "feature-types", "progress",
	} {
		assert.NotNil(t, bulkCmd.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "2500", bulkCmd.Flags().Lookup("chunk-size").DefValue)
	assert.Equal(t, "10", bulkCmd.Flags().Lookup("workers").DefValue)
	assert.Equal(t, "20", bulkCmd.Flags().Lookup("threads").DefValue)
}

func TestIndexFlagsDerivedFromMain(t *testing.T) {
	rc, _ := newTestRoot()
	indexCmd, _, err := rc.Find([]string{"index"})
	require.NoError(t, err)

	for _, name := range []string{"input-file", "list-file", "mark-parent", "solr-server", "thumbnails"} {
		assert.NotNil(t, indexCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestEnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("SOLRBULK_SOLR_SERVER", "http://127.0.0.1:1/solr")
	rc, _ := newTestRoot()
	rc.SetArgs([]string{"search", "anything"})

	// Nothing listens on port 1, so the run fails after config is applied.
	require.Error(t, rc.Execute())
	assert.Equal(t, "http://127.0.0.1:1/solr", SearchMain.SolrServer)
}

func TestFlagBeatsEnv(t *testing.T) {
	t.Setenv("SOLRBULK_ROWS", "99")
	rc, _ := newTestRoot()
	rc.SetArgs([]string{"search", "anything", "--rows", "7", "--solr-server", "http://127.0.0.1:1/solr"})

	require.Error(t, rc.Execute())
	assert.Equal(t, 7, SearchMain.Rows)
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "solrbulk.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("solr-server: http://127.0.0.1:1/solr\nrows: 4\n"), 0o644))

	rc, _ := newTestRoot()
	rc.SetArgs([]string{"search", "anything", "--config", cfg})

	require.Error(t, rc.Execute())
	assert.Equal(t, 4, SearchMain.Rows)
	assert.Equal(t, "http://127.0.0.1:1/solr", SearchMain.SolrServer)
}

func TestBadLogLevelIsRejected(t *testing.T) {
	rc, out := newTestRoot()
	rc.SetArgs([]string{"search", "anything", "--log-level", "loud"})

	require.Error(t, rc.Execute())
	assert.Contains(t, out.String(), "parsing log level")
}
