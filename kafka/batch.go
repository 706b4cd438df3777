package kafka

import (
	"context"
	"io"
	"time"

	solrbulk "github.com/metsis/solrbulk"
)

// RecordSource yields records until io.EOF. *Source implements it;
// tests substitute fakes.
type RecordSource interface {
	Record() (solrbulk.RawRecord, error)
}

// Consume drains src into the indexer, flushing a chunk whenever
// chunkSize records have accumulated or linger has passed with a
// partial chunk waiting. It returns the run summary when the source
// reports io.EOF, fails, or the context is canceled.
func Consume(ctx context.Context, src RecordSource, indexer *solrbulk.BulkIndexer, chunkSize int, linger time.Duration) (*solrbulk.Summary, error) {
	type item struct {
		rec solrbulk.RawRecord
		err error
	}
	items := make(chan item)
	go func() {
		defer close(items)
		for {
			rec, err := src.Record()
			if err == io.EOF {
				return
			}
			select {
			case items <- item{rec: rec, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var timerC <-chan time.Time
	if linger > 0 {
		ticker := time.NewTicker(linger)
		defer ticker.Stop()
		timerC = ticker.C
	}

	chunk := make([]solrbulk.RawRecord, 0, chunkSize)
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		indexer.ProcessChunk(ctx, chunk)
		chunk = make([]solrbulk.RawRecord, 0, chunkSize)
	}

	var srcErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case it, ok := <-items:
			if !ok {
				flush()
				break loop
			}
			if it.err != nil {
				srcErr = it.err
				flush()
				break loop
			}
			chunk = append(chunk, it.rec)
			if len(chunk) >= chunkSize {
				flush()
			}
		case <-timerC:
			flush()
		}
	}

	summary, err := indexer.Finish(ctx)
	if err == nil {
		err = srcErr
	}
	return summary, err
}
