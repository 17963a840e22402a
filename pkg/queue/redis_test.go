package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string `json:"symbol"`
}

func newTestQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(client, Config{
		RetryLimit:   1,
		RetryDelay:   10 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		Prefix:       "test",
	}, nil)
	return q, client
}

func TestEnqueueRequiresJob(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Enqueue(context.Background(), "missing", payload{})
	assert.Error(t, err)
}

func TestWorkerHandlesMessages(t *testing.T) {
	q, _ := newTestQueue(t)
	got := make(chan string, 1)
	q.Register(JobFunc("bar", func(_ context.Context, raw json.RawMessage) error {
		p, err := Decode[payload](raw)
		if err != nil {
			return err
		}
		got <- p.Symbol
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	require.Error(t, q.Start(ctx))

	require.NoError(t, q.Enqueue(ctx, "bar", payload{Symbol: "ES"}))
	select {
	case s := <-got:
		assert.Equal(t, "ES", s)
	case <-time.After(3 * time.Second):
		t.Fatal("message not handled")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))
	require.NoError(t, q.Stop(stopCtx))
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	q, _ := newTestQueue(t)
	var calls atomic.Int32
	q.Register(JobFunc("flaky", func(context.Context, json.RawMessage) error {
		if calls.Add(1) == 1 {
			return errors.New("clickhouse down")
		}
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = q.Stop(stopCtx)
	}()

	require.NoError(t, q.Enqueue(ctx, "flaky", payload{Symbol: "NQ"}))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	pending, retrying, dead, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending+retrying+dead)
}

func TestRetryScheduleAndDeadLetter(t *testing.T) {
	q, client := newTestQueue(t)
	t0 := time.Date(2025, 3, 4, 13, 30, 0, 0, time.UTC)
	q.now = func() time.Time { return t0 }
	q.Register(JobFunc("fail", func(context.Context, json.RawMessage) error { return errors.New("nope") }))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "fail", payload{Symbol: "GC"}))
	data, err := client.RPop(ctx, q.key("messages")).Result()
	require.NoError(t, err)

	q.process(ctx, data)
	_, retrying, _, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, retrying)

	n, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "retry is not due yet")

	q.now = func() time.Time { return t0.Add(time.Second) }
	n, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err = client.RPop(ctx, q.key("messages")).Result()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, 1, msg.Attempts)

	// second failure exhausts the retry limit
	q.process(ctx, data)
	pending, retrying, dead, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, retrying)
	assert.EqualValues(t, 1, dead)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	q, client := newTestQueue(t)
	q.Register(JobFunc("bar", func(_ context.Context, raw json.RawMessage) error {
		_, err := Decode[[]int](raw)
		return err
	}))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "bar", payload{Symbol: "ES"}))
	data, err := client.RPop(ctx, q.key("messages")).Result()
	require.NoError(t, err)
	q.process(ctx, data)

	_, retrying, dead, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, retrying)
	assert.EqualValues(t, 1, dead)
}

func TestMalformedMessageIsDeadLettered(t *testing.T) {
	q, _ := newTestQueue(t)
	q.process(context.Background(), "{broken")
	_, _, dead, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, dead)
}

func TestPermanentHelpers(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("bad")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
