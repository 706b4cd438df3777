// Package dap probes OPeNDAP endpoints for the CF featureType of a
// dataset by reading its DAS document.
package dap

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
)

// validFeatureTypes are the CF discrete sampling geometries the index
// accepts.
var validFeatureTypes = map[string]struct{}{
	"point":             {},
	"timeSeries":        {},
	"trajectory":        {},
	"profile":           {},
	"timeSeriesProfile": {},
	"trajectoryProfile": {},
}

// featureTypeTypos maps misspellings seen in production archives to
// the canonical value. Keys are lowercase.
var featureTypeTypos = map[string]string{
	"timeseries": "timeSeries",
	"timseries":  "timeSeries",
}

var (
	globalSection   = regexp.MustCompile(`^(NC_GLOBAL|HDF5_GLOBAL)\s*\{`)
	featureTypeAttr = regexp.MustCompile(`^String\s+featureType\s+"([^"]*)"`)
)

// Client fetches DAS documents. It is safe for concurrent use.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

var _ solrbulk.FeatureTyper = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// OptHTTPClient substitutes the underlying HTTP client.
func OptHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// OptTimeout overrides the default 60 second probe timeout.
func OptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// OptLogger sets the logger.
func OptLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "dap").Logger()
	}
}

// NewClient returns a probing client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 60 * time.Second},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeatureType fetches {url}.das and returns the normalized global
// featureType attribute.
func (c *Client) FeatureType(ctx context.Context, url string) (string, error) {
	dasURL := strings.TrimSpace(url) + ".das"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dasURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building das request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching das")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading das")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("das request returned %s", resp.Status)
	}
	ft, err := parseDAS(body)
	if err != nil {
		return "", errors.Wrapf(err, "probing %s", url)
	}
	return NormalizeFeatureType(ft)
}

// NormalizeFeatureType validates a featureType attribute value,
// folding known typos to their canonical spelling.
func NormalizeFeatureType(ft string) (string, error) {
	ft = strings.TrimSpace(ft)
	if _, ok := validFeatureTypes[ft]; ok {
		return ft, nil
	}
	if fixed, ok := featureTypeTypos[strings.ToLower(ft)]; ok {
		return fixed, nil
	}
	return "", errors.Errorf("invalid featureType %q", ft)
}

// parseDAS extracts the featureType attribute from the global section
// of a DAS document. Attributes of individual variables are ignored.
func parseDAS(das []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(das))
	inGlobal := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inGlobal {
			if globalSection.MatchString(line) {
				inGlobal = true
			}
			continue
		}
		if line == "}" {
			break
		}
		if m := featureTypeAttr.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", errors.Wrap(err, "scanning das")
	}
	return "", errors.New("no global featureType attribute")
}
