package goroutine

import (
	"sync"

	"confgive/internal/shared/logger"
)

// Runner executes fire-and-forget tasks on a bounded number of goroutines.
// Task errors are logged and discarded; callers never wait on a task.
type Runner struct {
	log  logger.Interface
	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	done bool
}

// NewRunner creates a Runner allowing at most limit concurrent tasks.
func NewRunner(log logger.Interface, limit int) *Runner {
	if limit <= 0 {
		limit = 1
	}
	return &Runner{
		log: log,
		sem: make(chan struct{}, limit),
	}
}

// Submit schedules fn for execution. If the runner has been closed the task
// is dropped with a warning.
func (r *Runner) Submit(name string, fn func() error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		r.log.Warnw("background task dropped, runner closed", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	SafeGo(r.log, name, func() {
		defer r.wg.Done()
		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		if err := fn(); err != nil {
			r.log.Errorw("background task failed", "task", name, "error", err)
		}
	})
}

// Close waits for in-flight tasks to finish. New submissions are dropped.
func (r *Runner) Close() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	r.wg.Wait()
}
