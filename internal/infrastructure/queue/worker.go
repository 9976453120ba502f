package queue

import (
	"context"
	"sync"
	"time"

	"confgive/internal/infrastructure/metrics"
	"confgive/internal/shared/logger"
)

// Processor handles one job attempt. A returned error schedules a retry.
type Processor func(ctx context.Context, payload []byte) error

// Source is the queue surface a worker pool consumes.
type Source interface {
	Claim(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, cause error) (dead bool, err error)
}

// promotable is implemented by sources that park retries in a delayed set.
type promotable interface {
	PromoteDue(ctx context.Context) (int, error)
}

// reclaimable is implemented by sources that can recover jobs claimed by a
// worker that died before acking or retrying them.
type reclaimable interface {
	ReclaimStalled(ctx context.Context) (int, error)
}

const (
	promoteInterval = 500 * time.Millisecond
	reclaimInterval = 30 * time.Second
)

// Pool runs a fixed set of competing consumers over one Source. Each worker
// processes a single job at a time; every attempt runs under the configured
// timeout and a timed-out attempt counts as a failure.
type Pool struct {
	source  Source
	proc    Processor
	workers int
	timeout time.Duration
	failed  chan FailedJob
	metrics *metrics.PipelineMetrics
	log     logger.Interface

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPool(source Source, proc Processor, workers int, timeout time.Duration, m *metrics.PipelineMetrics, log logger.Interface) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		source:  source,
		proc:    proc,
		workers: workers,
		timeout: timeout,
		failed:  make(chan FailedJob, 64),
		metrics: m,
		log:     log.Named("worker-pool"),
	}
}

// Failed exposes jobs that exhausted their retry budget. The channel is
// best-effort: when no one drains it, dead letters are still recorded in
// the queue's dead list and logged.
func (p *Pool) Failed() <-chan FailedJob {
	return p.failed
}

// Start launches the workers and, when the source supports it, the promoter
// loop that returns backed-off jobs to visibility.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	if promoter, ok := p.source.(promotable); ok {
		p.wg.Add(1)
		go p.runPromoter(ctx, promoter)
	}

	if reclaimer, ok := p.source.(reclaimable); ok {
		p.wg.Add(1)
		go p.runReclaimer(ctx, reclaimer)
	}

	p.log.Infow("worker pool started", "workers", p.workers, "timeout", p.timeout)
}

// Stop cancels all workers and waits for in-flight attempts to settle.
func (p *Pool) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		close(p.failed)
		p.log.Info("worker pool stopped")
	})
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.source.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorw("failed to claim job", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		p.processJob(ctx, log, job)
	}
}

func (p *Pool) processJob(ctx context.Context, log logger.Interface, job *Job) {
	start := time.Now()
	err := p.runAttempt(ctx, job)
	if p.metrics != nil {
		p.metrics.JobProcessingDuration.Observe(time.Since(start).Seconds())
	}

	// Queue bookkeeping must survive a shutdown that interrupts the
	// attempt, so it runs on its own deadline.
	bkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err == nil {
		if ackErr := p.source.Ack(bkCtx, job); ackErr != nil {
			log.Errorw("failed to ack job", "job_id", job.ID, "error", ackErr)
			return
		}
		if p.metrics != nil {
			p.metrics.JobsCompletedTotal.Inc()
		}
		log.Debugw("job completed", "job_id", job.ID, "attempt", job.Attempt)
		return
	}

	dead, retryErr := p.source.Retry(bkCtx, job, err)
	if retryErr != nil {
		log.Errorw("failed to schedule retry", "job_id", job.ID, "error", retryErr)
		return
	}

	if dead {
		if p.metrics != nil {
			p.metrics.JobsDeadLetteredTotal.Inc()
		}
		log.Errorw("job permanently failed",
			"job_id", job.ID,
			"attempts", job.Attempt,
			"error", err)
		p.emitFailed(FailedJob{
			ID:       job.ID,
			Payload:  job.Payload,
			Attempts: job.Attempt,
			Reason:   err.Error(),
		})
		return
	}

	if p.metrics != nil {
		p.metrics.JobRetriesTotal.Inc()
	}
	log.Warnw("job attempt failed, retry scheduled",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"error", err)
}

// runAttempt invokes the processor under the per-attempt timeout. A stuck
// processor is abandoned: its goroutine may linger, but the attempt is
// counted as failed and the job returns to the queue.
func (p *Pool) runAttempt(ctx context.Context, job *Job) error {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.proc(attemptCtx, job.Payload)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

func (p *Pool) emitFailed(fj FailedJob) {
	select {
	case p.failed <- fj:
	default:
		p.log.Warnw("failure channel full, dropping observation", "job_id", fj.ID)
	}
}

// runReclaimer periodically returns jobs stranded in the active list by a
// dead worker process to the retry path.
func (p *Pool) runReclaimer(ctx context.Context, reclaimer reclaimable) {
	defer p.wg.Done()

	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := reclaimer.ReclaimStalled(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.Errorw("failed to reclaim stalled jobs", "error", err)
				continue
			}
			if n > 0 {
				p.log.Warnw("reclaimed stalled jobs from lost workers", "count", n)
			}
		}
	}
}

func (p *Pool) runPromoter(ctx context.Context, promoter promotable) {
	defer p.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := promoter.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				p.log.Errorw("failed to promote delayed jobs", "error", err)
			}
		}
	}
}
