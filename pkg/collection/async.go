package collection

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/vecdb/pkg/payload"
)

// Async wraps a Collection with a bounded worker pool, dispatching each
// synchronous call onto it and returning a future (spec.md §9: "submits
// each operation to a worker pool and returns a future"). It changes
// nothing about the core's semantics or locking — Collection's own
// sync.RWMutex still serializes writers and admits concurrent readers;
// Async only decouples "call" from "wait for result" for a caller that
// wants to fire off several collection operations without blocking its
// own goroutine on each one in turn.
type Async struct {
	c   *Collection
	sem chan struct{}
}

// NewAsync wraps c with a worker pool bounded at maxInFlight concurrent
// dispatched operations (0 or negative means unbounded).
func NewAsync(c *Collection, maxInFlight int) *Async {
	var sem chan struct{}
	if maxInFlight > 0 {
		sem = make(chan struct{}, maxInFlight)
	}
	return &Async{c: c, sem: sem}
}

// InsertResult is the future returned by InsertAsync.
type InsertResult struct{ Err error }

// SearchResultFuture is the future returned by SearchAsync.
type SearchResultFuture struct {
	Results []SearchResult
	Err     error
}

func (a *Async) acquire(ctx context.Context) error {
	if a.sem == nil {
		return nil
	}
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) release() {
	if a.sem != nil {
		<-a.sem
	}
}

// InsertAsync dispatches Insert and returns a channel delivering its
// result. Dropping ctx (the adapter's cancellation point per spec.md §5
// "Cancellation and timeouts") only stops the caller from waiting on the
// channel; the underlying Collection.Insert, once dispatched, always runs
// to completion.
func (a *Async) InsertAsync(ctx context.Context, id uint64, v []float32, p payload.Payload) <-chan InsertResult {
	out := make(chan InsertResult, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- InsertResult{Err: err}
			return
		}
		defer a.release()
		out <- InsertResult{Err: a.c.Insert(id, v, p)}
	}()
	return out
}

// SearchAsync dispatches Search and returns a channel delivering its result.
func (a *Async) SearchAsync(ctx context.Context, query []float32, k int, filter payload.Filter) <-chan SearchResultFuture {
	out := make(chan SearchResultFuture, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- SearchResultFuture{Err: err}
			return
		}
		defer a.release()
		res, err := a.c.Search(query, k, filter)
		out <- SearchResultFuture{Results: res, Err: err}
	}()
	return out
}

// Batch runs multiple write operations concurrently (bounded by the same
// worker pool) and waits for all of them, returning the first error (if
// any) via errgroup — useful for a bulk-load adapter that wants
// all-or-nothing error reporting without giving up the pool bound.
func (a *Async) Batch(ctx context.Context, ops []func(*Collection) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		op := op
		if err := a.acquire(ctx); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		g.Go(func() error {
			defer a.release()
			return op(a.c)
		})
	}
	return g.Wait()
}
