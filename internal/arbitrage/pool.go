package arbitrage

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is a fixed set of goroutines running submitted tasks. It is separate
// from the trading lane so analysis load never delays order placement.
type Pool struct {
	size  int
	tasks chan func()
}

// NewPool creates a pool of size workers. Call Run to start them.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, tasks: make(chan func())}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Run starts the workers and blocks until ctx is cancelled. A task already
// running when ctx ends runs to completion.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case task := <-p.tasks:
					task()
				}
			}
		})
	}
	return g.Wait()
}

// Submit hands task to an idle worker, blocking until one accepts it or ctx
// is done.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
