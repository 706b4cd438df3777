package thumb

import (
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var thumbBucket = []byte("thumbnails")

// Cache is a local bbolt store of generated thumbnail URLs. Entries
// are keyed by cleaned WMS url and layer, so a reindex of unchanged
// records never hits the generator service.
type Cache struct {
	db *bbolt.DB
}

// OpenCache opens or creates the cache file.
func OpenCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening thumbnail cache %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(thumbBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating thumbnail bucket")
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(wmsURL, layer string) []byte {
	return []byte(wmsURL + "\x00" + layer)
}

// Get returns the cached thumbnail URL, if any.
func (c *Cache) Get(wmsURL, layer string) (url string, ok bool) {
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(thumbBucket).Get(cacheKey(wmsURL, layer)); v != nil {
			url, ok = string(v), true
		}
		return nil
	})
	return url, ok
}

// Put stores a generated thumbnail URL.
func (c *Cache) Put(wmsURL, layer, thumbnailURL string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(thumbBucket).Put(cacheKey(wmsURL, layer), []byte(thumbnailURL))
	})
	return errors.Wrap(err, "writing thumbnail cache")
}
