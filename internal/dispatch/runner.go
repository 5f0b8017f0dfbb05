package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes tasks in the background with bounded concurrency. Each
// task goes through Dispatcher.Run, so a panic or an escaped error fails
// the task instead of leaving it running.
type Runner struct {
	d   *Dispatcher
	ctx context.Context
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewRunner creates a Runner whose background work runs under ctx and at
// most concurrency tasks at a time.
func NewRunner(ctx context.Context, d *Dispatcher, concurrency int) *Runner {
	return &Runner{d: d, ctx: ctx, sem: semaphore.NewWeighted(int64(max(concurrency, 1)))}
}

// Run processes taskID in the calling goroutine.
func (r *Runner) Run(ctx context.Context, taskID string) error {
	return r.d.Run(ctx, taskID)
}

// Submit schedules taskID in the background.
func (r *Runner) Submit(taskID string) {
	r.goBounded(func(ctx context.Context) {
		_ = r.Run(ctx, taskID)
	})
}

// SubmitDrain schedules a drain of all pending tasks in the background.
func (r *Runner) SubmitDrain() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		n, err := r.d.DrainPending(r.ctx)
		if err != nil {
			zap.L().Error("dispatch: background drain", zap.Error(err))
			return
		}
		zap.L().Info("dispatch: background drain finished", zap.Int("tasks", n))
	}()
}

func (r *Runner) goBounded(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.ctx.Err() != nil {
			return
		}
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		fn(r.ctx)
	}()
}

// Wait blocks until all submitted work has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
