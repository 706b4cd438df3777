// Package solrbulk converts discovery metadata records (MMD XML) into
// search documents and bulk-loads them into a Solr index, keeping
// parent/child dataset relationships consistent across batches.
//
// The pipeline has four stages. Interfaces for each are defined here in
// the root package, and implementations live in sub-packages.
//
// 1. Loader
//
//	A RecordLoader fetches one raw record given a location string. The
//	file sub-package reads local XML files, the s3 sub-package reads
//	s3:// objects, and the kafka sub-package consumes records from a
//	harvester topic instead of being pulled through a loader at all.
//	Loads within one chunk run concurrently with a configurable bound,
//	and a location that fails to load costs that record, never the run.
//
// 2. Transformer
//
//	A Transformer turns one raw record into one Document or rejects it
//	with a reason (unparseable XML, missing or unknown identifier,
//	missing temporal start). It is pure and safe to call from many
//	goroutines. The mmd sub-package implements the MMD to Solr field
//	mapping, including the parent/child classification: a record whose
//	related_dataset points at another dataset (and not at a DOI) is a
//	Level-2 child and carries the normalized id of its parent.
//
// 3. ParentTracker
//
//	The ParentTracker owns the cross-chunk relationship state: which
//	parent ids have been referenced by a child (found), which still need
//	a confirmed isParent flag (pending), and which are done (processed).
//	A parent arriving in the same chunk as its child is flipped in
//	memory before the chunk is written. A parent indexed earlier in the
//	run, or by an earlier run, is fetched from the index and re-added
//	with the flag set. Whatever is still pending at the end of the run
//	is reconciled against the index once more, then reported.
//
// 4. BulkIndexer
//
//	The BulkIndexer drives a run: it splits the input into fixed-size
//	chunks, runs load and transform for each chunk, hands the surviving
//	documents to the ParentTracker, and dispatches the chunk write to
//	Solr in the background so the next chunk can start loading while the
//	previous one is on the wire. Background writes are joined before the
//	final reconciliation. Several workers can run over disjoint shards
//	of the input against the same index; their tracker states are merged
//	afterwards and reconciled once more to catch parents indexed by a
//	different worker than the one that saw the child.
package solrbulk
