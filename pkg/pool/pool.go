// Package pool offloads CPU-bound work (noise expansion, coordinate-wise
// trimming) onto a bounded set of goroutines so a single large job never
// starves the scheduler handling store I/O and attestation calls.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent CPU-bound work to a fixed number of workers.
type Pool struct {
	sem     *semaphore.Weighted
	workers int64
}

// NewPool creates a pool with the given number of workers. A workers value
// of 0 uses runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: int64(workers),
	}
}

// Workers reports how many goroutines this pool will run concurrently.
func (p *Pool) Workers() int { return int(p.workers) }

// Parallelize runs fn(i) for i in [0, n), bounded to Workers() concurrent
// calls, and returns the first error encountered (if any). It blocks until
// every call has returned or the context is cancelled.
func (p *Pool) Parallelize(ctx context.Context, n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		if err := p.sem.Acquire(gctx, 1); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			return fn(i)
		})
	}
	return g.Wait()
}

// TearDown releases pool resources. The semaphore needs no explicit
// teardown, but the method exists so callers can always `defer
// pl.TearDown()` uniformly, matching the referenced call sites in the
// teacher's test suite.
func (p *Pool) TearDown() {}
