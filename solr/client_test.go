package solr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solrbulk "github.com/metsis/solrbulk"
)

// capture records the last request so tests can assert on it after the
// client call returns.
type capture struct {
	mu     sync.Mutex
	method string
	path   string
	query  url.Values
	body   []byte
	user   string
	pass   string
	hasAuth bool
	ctype  string
}

func captureServer(t *testing.T, got *capture, status int, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got.mu.Lock()
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.body = body
		got.user, got.pass, got.hasAuth = r.BasicAuth()
		got.ctype = r.Header.Get("Content-Type")
		got.mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetMissingDocumentIsNilNil(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{"doc":null}`)

	c := NewClient(srv.URL+"/solr", "mycore")
	doc, err := c.Get(context.Background(), "no-met-x")
	require.NoError(t, err)
	assert.Nil(t, doc)

	assert.Equal(t, "/solr/mycore/get", got.path)
	assert.Equal(t, "no-met-x", got.query.Get("id"))
	assert.Equal(t, "json", got.query.Get("wt"))
}

func TestGetDecodesDocument(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK,
		`{"doc":{"id":"no-met-x","isParent":true,"dataset_type":"Level-1","title":"Sea ice"}}`)

	c := NewClient(srv.URL+"/solr", "mycore")
	doc, err := c.Get(context.Background(), "no-met-x")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "no-met-x", doc.ID)
	assert.True(t, doc.IsParent)
	assert.Equal(t, solrbulk.Level1, doc.DatasetType)
	assert.Equal(t, "Sea ice", doc.Extra["title"])
}

func TestAddPostsFlatDocuments(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{"responseHeader":{"status":0}}`)

	c := NewClient(srv.URL, "core", OptBasicAuth("alice", "secret"))
	err := c.Add(context.Background(), []solrbulk.Document{
		{ID: "a", DatasetType: solrbulk.Level1, Extra: map[string]interface{}{"title": "A"}},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/core/update", got.path)
	assert.Equal(t, "json", got.query.Get("wt"))
	assert.Empty(t, got.query.Get("commit"))
	assert.Equal(t, "application/json", got.ctype)
	assert.True(t, got.hasAuth)
	assert.Equal(t, "alice", got.user)
	assert.Equal(t, "secret", got.pass)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(got.body, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0]["id"])
	assert.Equal(t, "A", docs[0]["title"])
	assert.Equal(t, "Level-1", docs[0]["dataset_type"])
}

func TestAddEmptySliceSkipsRequest(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "core")
	assert.NoError(t, c.Add(context.Background(), nil))
}

func TestAlwaysCommitAddsCommitParam(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{}`)

	c := NewClient(srv.URL, "core", OptAlwaysCommit(true))
	require.NoError(t, c.Add(context.Background(), []solrbulk.Document{{ID: "a"}}))
	assert.Equal(t, "true", got.query.Get("commit"))
}

func TestAddReportsServerError(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusInternalServerError, `{"error":{"msg":"undefined field foo"}}`)

	c := NewClient(srv.URL, "core")
	err := c.Add(context.Background(), []solrbulk.Document{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "undefined field foo")
}

func TestDeleteSendsDeleteCommand(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{}`)

	c := NewClient(srv.URL, "core")
	require.NoError(t, c.Delete(context.Background(), "no-met-x"))

	var cmd map[string]map[string]string
	require.NoError(t, json.Unmarshal(got.body, &cmd))
	assert.Equal(t, "no-met-x", cmd["delete"]["id"])
}

func TestCommit(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{}`)

	c := NewClient(srv.URL, "core")
	require.NoError(t, c.Commit(context.Background()))
	assert.Equal(t, "/core/update", got.path)
	assert.Equal(t, "true", got.query.Get("commit"))
}

func TestSearch(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK,
		`{"response":{"numFound":12,"docs":[{"id":"a"},{"id":"b"}]}}`)

	// Core already folded into the server URL.
	c := NewClient(srv.URL+"/solr/mycore", "")
	res, err := c.Search(context.Background(), "title:ice", 2)
	require.NoError(t, err)

	assert.Equal(t, "/solr/mycore/select", got.path)
	assert.Equal(t, "title:ice", got.query.Get("q"))
	assert.Equal(t, "2", got.query.Get("rows"))
	assert.Equal(t, int64(12), res.NumFound)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "a", res.Docs[0].ID)
}

func TestPing(t *testing.T) {
	var got capture
	srv := captureServer(t, &got, http.StatusOK, `{"status":"OK"}`)

	c := NewClient(srv.URL, "core")
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "/core/admin/ping", got.path)

	bad := NewClient("http://127.0.0.1:1", "core")
	assert.Error(t, bad.Ping(context.Background()))
}
