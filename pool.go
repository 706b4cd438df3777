package solrbulk

import (
	"context"
	"sync"
)

// Pair carries one input and the outcome of applying a function to it.
type Pair[I, O any] struct {
	In  I
	Out O
	Err error
}

// Concurrently applies fn to every input with at most limit calls in
// flight and sends results on the returned channel as they complete,
// not in input order. The channel is closed once every input has been
// handled. When ctx is canceled the remaining inputs are abandoned and
// the channel is closed early; results already computed may be dropped.
//
// Load, thumbnail and feature-type passes all run through here: the
// per-item work differs, the bound does not.
func Concurrently[I, O any](ctx context.Context, limit int, inputs []I, fn func(context.Context, I) (O, error)) <-chan Pair[I, O] {
	if limit < 1 {
		limit = 1
	}
	if limit > len(inputs) {
		limit = len(inputs)
	}

	in := make(chan I)
	out := make(chan Pair[I, O], len(inputs))

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range in {
				v, err := fn(ctx, i)
				select {
				case out <- Pair[I, O]{In: i, Out: v, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(in)
		for _, i := range inputs {
			select {
			case in <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
