// Package thumb requests WMS preview images from the thumbnail
// generator service and caches the resulting URLs between runs.
package thumb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	solrbulk "github.com/metsis/solrbulk"
)

// blacklistedLayers are coordinate and service layers that never yield
// a useful preview image.
var blacklistedLayers = map[string]struct{}{
	"latitude":  {},
	"longitude": {},
	"lat":       {},
	"lon":       {},
	"MS":        {},
}

// upgradeHosts serve WMS over https but are still referenced with
// plain http in older records.
var upgradeHosts = []string{
	"http://thredds.nersc",
	"http://nbswms.met.no",
}

// Generator calls the thumbnail API. It is safe for concurrent use.
type Generator struct {
	host     string
	endpoint string
	layer    string
	style    string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *Cache
	log      zerolog.Logger
}

var _ solrbulk.Thumbnailer = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// OptLayer forces one WMS layer for every document instead of picking
// from the document's own layer list.
func OptLayer(layer string) Option {
	return func(g *Generator) {
		g.layer = layer
	}
}

// OptStyle sets the WMS style passed to the API.
func OptStyle(style string) Option {
	return func(g *Generator) {
		g.style = style
	}
}

// OptRateLimit caps requests per second to the API.
func OptRateLimit(rps float64) Option {
	return func(g *Generator) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// OptCache reuses thumbnail URLs generated by earlier runs.
func OptCache(c *Cache) Option {
	return func(g *Generator) {
		g.cache = c
	}
}

// OptHTTPClient substitutes the underlying HTTP client.
func OptHTTPClient(hc *http.Client) Option {
	return func(g *Generator) {
		g.http = hc
	}
}

// OptTimeout overrides the default 2 minute request timeout.
func OptTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.http.Timeout = d
	}
}

// OptLogger sets the logger.
func OptLogger(log zerolog.Logger) Option {
	return func(g *Generator) {
		g.log = log.With().Str("component", "thumb").Logger()
	}
}

// NewGenerator returns a Generator posting to host+endpoint.
func NewGenerator(host, endpoint string, opts ...Option) *Generator {
	g := &Generator{
		host:     strings.TrimRight(host, "/"),
		endpoint: endpoint,
		http:     &http.Client{Timeout: 2 * time.Minute},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type apiRequest struct {
	URL   string `json:"url"`
	Layer string `json:"layer,omitempty"`
	Style string `json:"style,omitempty"`
}

type apiResponse struct {
	Data struct {
		URL     string `json:"url"`
		Message string `json:"message"`
	} `json:"data"`
	Error string `json:"error"`
}

// Thumbnail generates a preview for the dataset behind the WMS url and
// returns the image URL.
func (g *Generator) Thumbnail(ctx context.Context, wmsURL string, layers []string) (string, error) {
	cleaned := CleanWMSURL(wmsURL)
	if cleaned == "" {
		return "", errors.New("empty wms url")
	}
	layer := g.pickLayer(layers)

	if g.cache != nil {
		if url, ok := g.cache.Get(cleaned, layer); ok {
			g.log.Debug().Str("url", cleaned).Msg("thumbnail cache hit")
			return url, nil
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	payload, err := json.Marshal(apiRequest{URL: cleaned, Layer: layer, Style: g.style})
	if err != nil {
		return "", errors.Wrap(err, "encoding thumbnail request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "building thumbnail request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "calling thumbnail api")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading thumbnail response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("thumbnail api returned %s", resp.Status)
	}

	var res apiResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", errors.Wrap(err, "decoding thumbnail response")
	}
	if res.Data.URL == "" {
		if res.Error != "" {
			return "", errors.Errorf("thumbnail api: %s", res.Error)
		}
		return "", errors.New("thumbnail api returned no url")
	}

	if g.cache != nil {
		if err := g.cache.Put(cleaned, layer, res.Data.URL); err != nil {
			g.log.Warn().Err(err).Msg("caching thumbnail url failed")
		}
	}
	return res.Data.URL, nil
}

// pickLayer chooses the layer sent to the API: the configured override
// if any, otherwise the first layer from the record that is not
// blacklisted. Empty means the API picks its own default.
func (g *Generator) pickLayer(layers []string) string {
	if g.layer != "" {
		return g.layer
	}
	for _, l := range layers {
		if _, bad := blacklistedLayers[l]; !bad {
			return l
		}
	}
	return ""
}

// CleanWMSURL strips request parameters from a capabilities URL and
// upgrades known plain-http hosts to https.
func CleanWMSURL(raw string) string {
	u, _, _ := strings.Cut(strings.TrimSpace(raw), "?")
	for _, host := range upgradeHosts {
		if strings.HasPrefix(u, host) {
			return "https://" + strings.TrimPrefix(u, "http://")
		}
	}
	return u
}
