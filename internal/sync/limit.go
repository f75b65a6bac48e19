package sync

import (
	"context"
	stdsync "sync"

	"golang.org/x/sync/semaphore"
)

// Settled is the outcome of one unit of work: either a value or the error
// that sank it. Failures are carried back to the caller instead of being
// swallowed, so the run summary can report them.
type Settled[T any] struct {
	Value T
	Err   error
}

// mapLimit runs fn over every item with at most limit in flight and returns
// one settled result per item, in input order. A failing item never stops
// the others.
func mapLimit[T, R any](ctx context.Context, limit int64, items []T, fn func(context.Context, T) (R, error)) []Settled[R] {
	results := make([]Settled[R], len(items))
	sem := semaphore.NewWeighted(limit)
	var wg stdsync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Settled[R]{Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			v, err := fn(ctx, item)
			results[i] = Settled[R]{Value: v, Err: err}
		}(i, item)
	}

	wg.Wait()
	return results
}
