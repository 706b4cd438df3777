package solrbulk

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// RawRecord is one fetched input record before transformation. Location
// is whatever string the loader was given (a path, an s3:// URI, a
// topic/partition/offset tag) and is only used for reporting.
type RawRecord struct {
	Location string
	Data     []byte
}

// RecordLoader fetches the raw bytes of a record given its location.
// Loaders are called concurrently and must not share mutable state
// between calls.
type RecordLoader interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

// LoaderFunc adapts a function to the RecordLoader interface.
type LoaderFunc func(ctx context.Context, location string) ([]byte, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// SchemeLoader routes locations to loaders by URI scheme. Locations
// without a scheme (plain paths) go to the loader registered under "".
type SchemeLoader map[string]RecordLoader

// Load dispatches to the loader registered for the location's scheme.
func (s SchemeLoader) Load(ctx context.Context, location string) ([]byte, error) {
	scheme := ""
	if i := strings.Index(location, "://"); i >= 0 {
		scheme = location[:i]
	}
	l, ok := s[scheme]
	if !ok {
		return nil, errors.Errorf("no loader for location %q", location)
	}
	return l.Load(ctx, location)
}
