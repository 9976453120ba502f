// Package queue implements the durable settlement job queue and its worker
// pool. All coordination state (pending, in-flight, delayed, dead) lives in
// Redis so worker processes can compete for jobs across hosts; the
// application itself holds no locks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrEnqueueFailed indicates the backing store rejected the enqueue.
	ErrEnqueueFailed = errors.New("failed to enqueue job")
	// ErrDuplicateJob indicates a job with the same id already exists.
	// The queue deduplicates by the literal job id only, never by payload.
	ErrDuplicateJob = errors.New("duplicate job id")
)

// Options are fixed process-wide job defaults.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
}

// DefaultOptions returns the settlement pipeline defaults: 3 total attempts,
// exponential backoff from 1s, 10s per-attempt timeout.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		Timeout:     10 * time.Second,
	}
}

// BackoffDelay returns the delay before re-attempting a job that has already
// consumed failedAttempts attempts. Delays grow exponentially: base, 2*base,
// 4*base, ...
func BackoffDelay(base time.Duration, failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	return base << (failedAttempts - 1)
}

// Job is the envelope a worker receives for one attempt. Attempt is 1-based.
type Job struct {
	ID      string
	Payload []byte
	Attempt int
}

// FailedJob describes a job that exhausted its retry budget.
type FailedJob struct {
	ID       string
	Payload  []byte
	Attempts int
	Reason   string
}

// claimBlock bounds each blocking claim so workers can observe shutdown.
const claimBlock = 2 * time.Second

// RedisQueue is the Redis-backed durable queue. A job is owned by the queue
// until a worker claims it (pending -> active); ownership returns to the
// queue on a failed attempt (active -> delayed -> pending) and ends on ack
// or dead-letter.
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   Options
}

func NewRedisQueue(client *redis.Client, opts Options) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: "giving:",
		opts:   opts,
	}
}

func (q *RedisQueue) Options() Options {
	return q.opts
}

func (q *RedisQueue) jobKey(id string) string { return q.prefix + "job:" + id }
func (q *RedisQueue) pendingKey() string      { return q.prefix + "pending" }
func (q *RedisQueue) activeKey() string       { return q.prefix + "active" }
func (q *RedisQueue) delayedKey() string      { return q.prefix + "delayed" }
func (q *RedisQueue) deadKey() string         { return q.prefix + "dead" }

// enqueueScript registers the job hash and its pending entry as one atomic
// unit. A partial enqueue must leave no trace: a job hash without a pending
// entry would make every later enqueue under the same id report a duplicate
// for a job that will never run.
var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "payload", ARGV[1], "attempts", 0, "enqueued_at", ARGV[2])
redis.call("LPUSH", KEYS[2], ARGV[3])
return 1
`)

// Enqueue adds a job with the caller-assigned id. A second enqueue with the
// same id returns ErrDuplicateJob and leaves the existing job untouched.
func (q *RedisQueue) Enqueue(ctx context.Context, id string, payload []byte) error {
	created, err := enqueueScript.Run(ctx, q.client,
		[]string{q.jobKey(id), q.pendingKey()},
		payload, time.Now().UnixMilli(), id,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}
	if created == 0 {
		return ErrDuplicateJob
	}

	return nil
}

// Claim moves the next visible job to the active list and returns it. The
// LMOVE is atomic, so a job is visible to exactly one worker at a time.
// Returns (nil, nil) when no job became visible within the claim window.
func (q *RedisQueue) Claim(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT", claimBlock).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		// Orphaned id without a job hash; drop it.
		q.client.LRem(ctx, q.activeKey(), 1, id)
		return nil, nil
	}

	// The claim stamp is what the stalled-job reclaim uses to tell a live
	// attempt from one whose worker died mid-flight.
	if err := q.client.HSet(ctx, q.jobKey(id), "claimed_at", time.Now().UnixMilli()).Err(); err != nil {
		return nil, fmt.Errorf("failed to stamp claim for job %s: %w", id, err)
	}

	attempts, _ := strconv.Atoi(fields["attempts"])

	return &Job{
		ID:      id,
		Payload: []byte(fields["payload"]),
		Attempt: attempts + 1,
	}, nil
}

// Ack removes a completed job.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, job.ID)
	pipe.Del(ctx, q.jobKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

// Retry records a failed attempt. The job becomes visible again after the
// exponential backoff delay, unless the attempt budget is exhausted, in
// which case it is dead-lettered and Retry reports dead=true.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	attempts, err := q.client.HIncrBy(ctx, q.jobKey(job.ID), "attempts", 1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record attempt for job %s: %w", job.ID, err)
	}

	if int(attempts) >= q.opts.MaxAttempts {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.activeKey(), 1, job.ID)
		pipe.LPush(ctx, q.deadKey(), job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), "failed_reason", cause.Error())
		if _, err := pipe.Exec(ctx); err != nil {
			return true, fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
		}
		return true, nil
	}

	delay := BackoffDelay(q.opts.BackoffBase, int(attempts))
	visibleAt := time.Now().Add(delay).UnixMilli()

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, job.ID)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(visibleAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
	}

	return false, nil
}

// PromoteDue moves delayed jobs whose backoff has elapsed back to the
// pending list. The ZRem guards against double promotion when several
// worker processes promote concurrently.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to promote job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), id).Err(); err != nil {
			return promoted, fmt.Errorf("failed to requeue job %s: %w", id, err)
		}
		promoted++
	}

	return promoted, nil
}

// errStalled is the recorded cause for attempts lost to a dead worker.
var errStalled = errors.New("job stalled: worker lost before completion")

// stallGrace extends the per-attempt timeout before an active job counts as
// stalled, covering bookkeeping time and clock skew between workers.
const stallGrace = 30 * time.Second

// ReclaimStalled returns active jobs whose claiming worker died before ack
// or retry. A live attempt is abandoned by its worker at the attempt
// timeout, so any claim stamp older than timeout plus grace has no owner
// left; the reclaim counts as a failed attempt so a job that repeatedly
// kills its worker still dead-letters instead of cycling forever.
func (q *RedisQueue) ReclaimStalled(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan active jobs: %w", err)
	}

	cutoff := time.Now().Add(-(q.opts.Timeout + stallGrace)).UnixMilli()

	reclaimed := 0
	for _, id := range ids {
		raw, err := q.client.HGet(ctx, q.jobKey(id), "claimed_at").Result()
		if errors.Is(err, redis.Nil) {
			exists, existsErr := q.client.Exists(ctx, q.jobKey(id)).Result()
			if existsErr == nil && exists == 0 {
				// Orphaned id without a job hash; drop it.
				q.client.LRem(ctx, q.activeKey(), 1, id)
				continue
			}
			// The hash exists but the claim was never stamped, so no worker
			// owns this job; requeue it.
			if _, err := q.Retry(ctx, &Job{ID: id}, errStalled); err != nil {
				return reclaimed, err
			}
			reclaimed++
			continue
		}
		if err != nil {
			return reclaimed, fmt.Errorf("failed to inspect active job %s: %w", id, err)
		}

		claimedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || claimedAt > cutoff {
			continue
		}

		if _, err := q.Retry(ctx, &Job{ID: id}, errStalled); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}

	return reclaimed, nil
}
