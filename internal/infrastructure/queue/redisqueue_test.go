package queue

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewRedisQueue(client, DefaultOptions()), client
}

func TestEnqueueRegistersJobAtomically(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{"amount":100}`)))

	// The job hash and its pending entry are written as one unit; one
	// without the other would strand the job behind the id dedup.
	fields, err := client.HGetAll(ctx, q.jobKey("giving:T1")).Result()
	require.NoError(t, err)
	assert.Equal(t, `{"amount":100}`, fields["payload"])
	assert.Equal(t, "0", fields["attempts"])
	assert.NotEmpty(t, fields["enqueued_at"])

	pending, err := client.LRange(ctx, q.pendingKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"giving:T1"}, pending)
}

func TestEnqueueDuplicateIDLeavesJobRunnable(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{"v":1}`)))

	err := q.Enqueue(ctx, "giving:T1", []byte(`{"v":2}`))
	assert.ErrorIs(t, err, ErrDuplicateJob)

	length, err := client.LLen(ctx, q.pendingKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	// The deduplicated job must still be the original, claimable one.
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "giving:T1", job.ID)
	assert.Equal(t, []byte(`{"v":1}`), job.Payload)
	assert.Equal(t, 1, job.Attempt)
}

func TestClaimStampsOwnership(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))

	before := time.Now().UnixMilli()
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	active, err := client.LRange(ctx, q.activeKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"giving:T1"}, active)

	raw, err := client.HGet(ctx, q.jobKey("giving:T1"), "claimed_at").Result()
	require.NoError(t, err)
	claimedAt, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, claimedAt, before)
}

func TestAckRemovesJobCompletely(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Ack(ctx, job))

	exists, err := client.Exists(ctx, q.jobKey("giving:T1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	length, err := client.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestRetrySchedulesDelayedRetry(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	dead, err := q.Retry(ctx, job, errors.New("db unavailable"))
	require.NoError(t, err)
	assert.False(t, dead)

	length, err := client.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	score, err := client.ZScore(ctx, q.delayedKey(), "giving:T1").Result()
	require.NoError(t, err)
	assert.Greater(t, int64(score), time.Now().UnixMilli())
}

func TestRetryDeadLettersAfterMaxAttempts(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, client.HSet(ctx, q.jobKey("giving:T1"), "attempts", 2).Err())

	dead, err := q.Retry(ctx, job, errors.New("db unavailable"))
	require.NoError(t, err)
	assert.True(t, dead)

	deadList, err := client.LRange(ctx, q.deadKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"giving:T1"}, deadList)

	reason, err := client.HGet(ctx, q.jobKey("giving:T1"), "failed_reason").Result()
	require.NoError(t, err)
	assert.Equal(t, "db unavailable", reason)
}

func TestPromoteDueReturnsElapsedRetries(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	_, err = q.Retry(ctx, job, errors.New("transient"))
	require.NoError(t, err)

	// Move the backoff deadline into the past so the retry is due.
	require.NoError(t, client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(time.Now().Add(-time.Second).UnixMilli()),
		Member: "giving:T1",
	}).Err())

	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	reclaimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, 2, reclaimed.Attempt)
}

func TestReclaimStalledRecoversJobFromLostWorker(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{"amount":100}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	// A killed worker never acks or retries; only its stale claim stamp
	// remains.
	stale := time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, client.HSet(ctx, q.jobKey("giving:T1"), "claimed_at", stale).Err())

	reclaimed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	length, err := client.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	// The reclaim counted as a failed attempt and parked the job for its
	// backoff; promote it and verify another worker can finish it.
	require.NoError(t, client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(time.Now().Add(-time.Second).UnixMilli()),
		Member: "giving:T1",
	}).Err())

	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	recovered, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, recovered)
	assert.Equal(t, "giving:T1", recovered.ID)
	assert.Equal(t, []byte(`{"amount":100}`), recovered.Payload)
	assert.Equal(t, 2, recovered.Attempt)
}

func TestReclaimStalledLeavesLiveAttempts(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	reclaimed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)

	active, err := client.LRange(ctx, q.activeKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"giving:T1"}, active)
}

func TestReclaimStalledDropsOrphanedIDs(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, q.activeKey(), "ghost").Err())

	reclaimed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)

	length, err := client.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestReclaimStalledDeadLettersExhaustedJob(t *testing.T) {
	q, client := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "giving:T1", []byte(`{}`)))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	stale := time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, client.HSet(ctx, q.jobKey("giving:T1"), "attempts", 2, "claimed_at", stale).Err())

	reclaimed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	deadList, err := client.LRange(ctx, q.deadKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"giving:T1"}, deadList)
}
