package solrbulk

// Transformer turns one raw record into one Document. A non-nil error
// is a rejection: the record is logged, counted as skipped, and the run
// moves on. Transformers must be pure so chunks can be transformed with
// full concurrency.
type Transformer interface {
	Transform(rec RawRecord) (Document, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(rec RawRecord) (Document, error)

// Transform calls f.
func (f TransformerFunc) Transform(rec RawRecord) (Document, error) {
	return f(rec)
}
