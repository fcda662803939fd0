// Package workpool provides bounded fan-out over a slice of work items.
//
// A fixed number of workers pull item indexes from a shared queue and store
// each outcome in a slice that mirrors the input order. Callers pick the
// failure policy at the call site:
//
//   - [Map] collects every result, success or error, and never stops early.
//   - [MapFailFast] cancels the remaining work on the first error and returns it.
//
// Ordering guarantee: results are indexed by input position, but the order in
// which items execute is unspecified.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotStarted marks items that were never handed to a worker because the
// pool was cancelled first.
var ErrNotStarted = errors.New("workpool: item not started")

// Func processes one item. index is the item's position in the input slice.
type Func[In, Out any] func(ctx context.Context, index int, item In) (Out, error)

// Result is the outcome of one item.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// PanicError is returned for an item whose Func panicked.
type PanicError struct {
	Index int
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workpool: item %d panicked: %v", e.Index, e.Value)
}

// Map runs fn over items with at most limit calls in flight and returns one
// Result per item, in input order. Individual failures do not stop the pool;
// only cancellation of ctx does, in which case unstarted items carry
// ErrNotStarted.
func Map[In, Out any](ctx context.Context, limit int, items []In, fn Func[In, Out]) []Result[Out] {
	results, _ := run(ctx, limit, items, false, fn)
	return results
}

// MapFailFast runs fn over items with at most limit calls in flight. The
// first error cancels the context passed to in-flight calls, stops new items
// from starting, and is returned. On success the outputs are in input order.
func MapFailFast[In, Out any](ctx context.Context, limit int, items []In, fn Func[In, Out]) ([]Out, error) {
	results, err := run(ctx, limit, items, true, fn)
	if err != nil {
		return nil, err
	}
	out := make([]Out, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out, nil
}

// Each is Map for work that produces no value.
func Each[In any](ctx context.Context, limit int, items []In, fn func(ctx context.Context, index int, item In) error) []error {
	results := Map(ctx, limit, items, func(ctx context.Context, i int, item In) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	errs := make([]error, len(results))
	for i, r := range results {
		errs[i] = r.Err
	}
	return errs
}

// EachFailFast is MapFailFast for work that produces no value.
func EachFailFast[In any](ctx context.Context, limit int, items []In, fn func(ctx context.Context, index int, item In) error) error {
	_, err := MapFailFast(ctx, limit, items, func(ctx context.Context, i int, item In) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}

// Succeeded returns the values of results without an error, preserving order.
func Succeeded[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// Failed returns the results that carry an error, preserving order.
func Failed[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

func run[In, Out any](ctx context.Context, limit int, items []In, failFast bool, fn Func[In, Out]) ([]Result[Out], error) {
	results := make([]Result[Out], len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := limit
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan int)

	var mu sync.Mutex
	started := make([]bool, len(items))

	g.Go(func() error {
		defer close(queue)
		for i := range items {
			select {
			case queue <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range queue {
				if gctx.Err() != nil {
					continue
				}
				mu.Lock()
				started[i] = true
				mu.Unlock()

				out, err := call(gctx, i, items[i], fn)
				results[i] = Result[Out]{Index: i, Value: out, Err: err}
				if err != nil && failFast {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()

	for i := range results {
		if !started[i] {
			results[i] = Result[Out]{Index: i, Err: ErrNotStarted}
		}
	}

	if err == nil && failFast && ctx.Err() != nil {
		err = ctx.Err()
	}
	return results, err
}

func call[In, Out any](ctx context.Context, i int, item In, fn Func[In, Out]) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Index: i, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, i, item)
}
