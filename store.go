package solrbulk

import "context"

// DocumentStore is the remote index. The solr sub-package provides the
// real client; tests substitute fakes. Implementations must be safe for
// concurrent use: chunk writes run in the background while the next
// chunk resolves parents, and sharded runs hit one store from several
// workers.
type DocumentStore interface {
	// Get is a real-time point lookup. It returns (nil, nil) when the
	// index has no document with that id.
	Get(ctx context.Context, id string) (*Document, error)

	// Add upserts documents by id.
	Add(ctx context.Context, docs []Document) error

	// Delete removes the document with the given id.
	Delete(ctx context.Context, id string) error

	// Commit flushes pending updates. Stores configured to commit on
	// every add may treat this as a no-op.
	Commit(ctx context.Context) error
}
