package thumb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanWMSURL(t *testing.T) {
	cases := map[string]string{
		"https://wms.example/ice?service=WMS&request=GetCapabilities": "https://wms.example/ice",
		"https://wms.example/ice":                                     "https://wms.example/ice",
		"http://thredds.nersc.no/thredds/wms/ice.nc?service=WMS":      "https://thredds.nersc.no/thredds/wms/ice.nc",
		"http://nbswms.met.no/thredds/wms/x":                          "https://nbswms.met.no/thredds/wms/x",
		"http://other.example/wms":                                    "http://other.example/wms",
		"  https://wms.example/pad ":                                  "https://wms.example/pad",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanWMSURL(in), in)
	}
}

func TestPickLayer(t *testing.T) {
	g := NewGenerator("http://api", "/thumbnail")
	assert.Equal(t, "ice_conc", g.pickLayer([]string{"latitude", "longitude", "ice_conc"}))
	assert.Equal(t, "", g.pickLayer([]string{"lat", "lon", "MS"}))
	assert.Equal(t, "", g.pickLayer(nil))

	forced := NewGenerator("http://api", "/thumbnail", OptLayer("sst"))
	assert.Equal(t, "sst", forced.pickLayer([]string{"ice_conc"}))
}

func TestThumbnailPostsRequest(t *testing.T) {
	var gotBody []byte
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/thumbnail", r.URL.Path)
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"data":{"url":"https://thumbs.example/x.png"}}`)
	}))
	defer srv.Close()

	g := NewGenerator(srv.URL, "/api/thumbnail", OptStyle("boxfill/redblue"))
	url, err := g.Thumbnail(context.Background(), "https://wms.example/ice?service=WMS", []string{"latitude", "ice_conc"})
	require.NoError(t, err)
	assert.Equal(t, "https://thumbs.example/x.png", url)
	assert.Equal(t, "application/json", gotCT)

	var req map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "https://wms.example/ice", req["url"])
	assert.Equal(t, "ice_conc", req["layer"])
	assert.Equal(t, "boxfill/redblue", req["style"])
}

func TestThumbnailFailures(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "wms unreachable", http.StatusBadGateway)
		}))
		defer srv.Close()
		g := NewGenerator(srv.URL, "/thumbnail")
		_, err := g.Thumbnail(context.Background(), "https://wms.example/ice", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("api error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"data":{"url":null},"error":"no layers found"}`)
		}))
		defer srv.Close()
		g := NewGenerator(srv.URL, "/thumbnail")
		_, err := g.Thumbnail(context.Background(), "https://wms.example/ice", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no layers found")
	})

	t.Run("empty url", func(t *testing.T) {
		g := NewGenerator("http://api", "/thumbnail")
		_, err := g.Thumbnail(context.Background(), "  ", nil)
		assert.Error(t, err)
	})
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := OpenCache(filepath.Join(t.TempDir(), "thumb.db"))
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("https://wms.example/ice", "ice_conc")
	assert.False(t, ok)

	require.NoError(t, c.Put("https://wms.example/ice", "ice_conc", "https://thumbs.example/x.png"))

	url, ok := c.Get("https://wms.example/ice", "ice_conc")
	assert.True(t, ok)
	assert.Equal(t, "https://thumbs.example/x.png", url)

	_, ok = c.Get("https://wms.example/ice", "other_layer")
	assert.False(t, ok)
}

func TestThumbnailUsesCache(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		io.WriteString(w, `{"data":{"url":"https://thumbs.example/x.png"}}`)
	}))
	defer srv.Close()

	c, err := OpenCache(filepath.Join(t.TempDir(), "thumb.db"))
	require.NoError(t, err)
	defer c.Close()

	g := NewGenerator(srv.URL, "/thumbnail", OptCache(c))
	for i := 0; i < 3; i++ {
		url, err := g.Thumbnail(context.Background(), "https://wms.example/ice", []string{"ice_conc"})
		require.NoError(t, err)
		assert.Equal(t, "https://thumbs.example/x.png", url)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}
