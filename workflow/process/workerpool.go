package process

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/cwlgo/wfcore/workflow"
)

// WorkerPoolExecutor is a workflow.JobExecutor that runs every
// dispatched Job on its own goroutine, capped by a weighted semaphore
// so a step (or a wide scatter) never spawns more concurrent work than
// the pool allows regardless of how many Jobs a round's Pull loop
// yields.
type WorkerPoolExecutor struct {
	run func(ctx context.Context, job workflow.Job)
	sem *semaphore.Weighted
}

// NewWorkerPoolExecutor builds a WorkerPoolExecutor bounded to
// maxConcurrency simultaneous Jobs, each run via run.
func NewWorkerPoolExecutor(maxConcurrency int64, run func(ctx context.Context, job workflow.Job)) *WorkerPoolExecutor {
	return &WorkerPoolExecutor{run: run, sem: semaphore.NewWeighted(maxConcurrency)}
}

// Execute acquires a pool slot and runs the job on its own goroutine,
// releasing the slot on completion. If ctx is cancelled while waiting
// for a slot, the job is dropped without running.
func (w *WorkerPoolExecutor) Execute(ctx context.Context, job workflow.Job) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer w.sem.Release(1)
		w.run(ctx, job)
	}()
}
