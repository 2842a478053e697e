package repeat

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// workPool runs n index-addressed tasks and waits for them all. Tasks
// write their results into caller-owned slots keyed by index, so the
// aggregate outcome is identical whichever backend runs them, in whatever
// order. Any task error fails the whole batch.
type workPool interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error
}

// serialPool runs tasks one after another on the calling goroutine.
type serialPool struct{}

func (serialPool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// groupPool fans tasks out over a bounded errgroup.
type groupPool struct {
	workers int
}

func (p groupPool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	workers := p.workers
	if workers > n {
		workers = n
	}
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return task(ctx, i) })
	}
	return g.Wait()
}

func newPool(parallel bool, workers int) workPool {
	if !parallel || workers <= 1 {
		return serialPool{}
	}
	return groupPool{workers: workers}
}
