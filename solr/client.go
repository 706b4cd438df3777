// Package solr is a thin client for the Solr update, real-time get and
// select handlers, covering just what bulk indexing needs.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
)

// DefaultTimeout is generous because a bulk update of a few thousand
// documents with full text attached can take minutes on a busy core.
const DefaultTimeout = 1020 * time.Second

// Client talks to a single Solr core. It is safe for concurrent use.
type Client struct {
	baseURL      string
	http         *http.Client
	username     string
	password     string
	alwaysCommit bool
	log          zerolog.Logger
}

var _ solrbulk.DocumentStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// OptBasicAuth sets credentials sent with every request.
func OptBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// OptTimeout overrides DefaultTimeout.
func OptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// OptAlwaysCommit makes every update request carry commit=true instead
// of leaving commits to the end of the run.
func OptAlwaysCommit(commit bool) Option {
	return func(c *Client) {
		c.alwaysCommit = commit
	}
}

// OptHTTPClient substitutes the underlying HTTP client.
func OptHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// OptLogger sets the logger.
func OptLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "solr").Logger()
	}
}

// NewClient returns a client for the core at server/core. The server
// part may already contain the core, in which case core is left empty.
func NewClient(server, core string, opts ...Option) *Client {
	base := strings.TrimRight(server, "/")
	if core != "" {
		base += "/" + strings.Trim(core, "/")
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks that the core is up.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/admin/ping?wt=json", nil, "")
	return errors.Wrap(err, "pinging solr")
}

// Get fetches one document through the real-time get handler, so
// uncommitted documents are visible. It returns (nil, nil) when the
// core has no document with that id.
func (c *Client) Get(ctx context.Context, id string) (*solrbulk.Document, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/get?wt=json&id="+url.QueryEscape(id), nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s", id)
	}
	var res struct {
		Doc *solrbulk.Document `json:"doc"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decoding get response")
	}
	return res.Doc, nil
}

// Add upserts documents by id.
func (c *Client) Add(ctx context.Context, docs []solrbulk.Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return errors.Wrap(err, "encoding update")
	}
	c.log.Debug().Int("docs", len(docs)).Msg("posting update")
	_, err = c.do(ctx, http.MethodPost, c.updateURL(), bytes.NewReader(payload), "application/json")
	return errors.Wrapf(err, "adding %d documents", len(docs))
}

// Delete removes the document with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"delete": map[string]string{"id": id},
	})
	if err != nil {
		return errors.Wrap(err, "encoding delete")
	}
	_, err = c.do(ctx, http.MethodPost, c.updateURL(), bytes.NewReader(payload), "application/json")
	return errors.Wrapf(err, "deleting %s", id)
}

// Commit flushes pending updates.
func (c *Client) Commit(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, c.baseURL+"/update?wt=json&commit=true", strings.NewReader("{}"), "application/json")
	return errors.Wrap(err, "committing")
}

// SearchResult is the part of a select response the tooling needs.
type SearchResult struct {
	NumFound int64
	Docs     []solrbulk.Document
}

// Search runs a query against the select handler.
func (c *Client) Search(ctx context.Context, query string, rows int) (*SearchResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("rows", strconv.Itoa(rows))
	v.Set("wt", "json")
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/select?"+v.Encode(), nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, "searching %q", query)
	}
	var res struct {
		Response struct {
			NumFound int64               `json:"numFound"`
			Docs     []solrbulk.Document `json:"docs"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decoding select response")
	}
	return &SearchResult{NumFound: res.Response.NumFound, Docs: res.Response.Docs}, nil
}

func (c *Client) updateURL() string {
	u := c.baseURL + "/update?wt=json"
	if c.alwaysCommit {
		u += "&commit=true"
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawurl string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("solr returned %s: %s", resp.Status, snippet(data))
	}
	return data, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
