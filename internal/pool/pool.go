// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pool runs a set of items through an operation with bounded
// parallelism. As soon as one operation finishes the next queued item
// starts; one item's failure never halts the others.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Result pairs one item's output with its error, at the item's input index.
type Result[T any] struct {
	Value T
	Err   error
}

// Run applies fn to every index in [0, n) with at most concurrency calls
// in flight. Output order matches input order; consumers that stream
// results elsewhere must be order-tolerant.
//
// Run itself only returns an error when the context is cancelled before
// all items were scheduled. Per-item errors are delivered in the result
// slice and must be handled by the caller.
func Run[T any](ctx context.Context, n, concurrency int, fn func(ctx context.Context, i int) (T, error)) ([]Result[T], error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]Result[T], n)

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: mark the unscheduled remainder and stop.
			for j := i; j < n; j++ {
				results[j].Err = ctx.Err()
			}
			// Wait for in-flight operations to finish.
			_ = sem.Acquire(context.Background(), int64(concurrency))
			return results, ctx.Err()
		}

		go func(i int) {
			defer sem.Release(1)
			v, err := fn(ctx, i)
			results[i] = Result[T]{Value: v, Err: err}
		}(i)
	}

	// Drain: acquiring the full weight means every worker released.
	if err := sem.Acquire(context.Background(), int64(concurrency)); err != nil {
		return results, err
	}
	return results, nil
}
