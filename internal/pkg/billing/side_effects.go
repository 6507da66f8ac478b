package billing

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sourcegraph/conc"
)

// Task is a best-effort secondary action. Its failure is logged and
// discarded; it never changes the acknowledgement and is never retried.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskResult is the logged-and-discarded outcome of a Task.
type TaskResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

func (r TaskResult) OK() bool {
	return r.Err == nil
}

// SideEffects runs tasks after the primary mutation committed.
type SideEffects struct{}

func NewSideEffects() *SideEffects {
	return &SideEffects{}
}

// Run executes all tasks concurrently and waits for them, so nothing outlives
// the request. Panics are converted to task errors.
func (s *SideEffects) Run(ctx context.Context, eventID string, tasks ...Task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	var wg conc.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Go(func() {
			results[i] = runTask(ctx, task)
		})
	}
	wg.Wait()

	for _, r := range results {
		if !r.OK() {
			log.Warnf("[Billing] Side effect %s for event %s failed (ignored): %v", r.Name, eventID, r.Err)
		}
	}
	return results
}

func runTask(ctx context.Context, task Task) (res TaskResult) {
	res.Name = task.Name
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = errors.Newf("panic: %v", p)
		}
		res.Duration = time.Since(start)
	}()
	if task.Run == nil {
		return res
	}
	res.Err = task.Run(ctx)
	return res
}
