package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FKSEngine/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed job queue with delayed retries kept in a sorted set
// and a dead-letter list for messages that exhausted their attempts.
type RedisQueue struct {
	client redis.UniversalClient
	cfg    Config
	log    *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewRedisQueue(client redis.UniversalClient, cfg Config, log *logger.Logger) *RedisQueue {
	cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &RedisQueue{
		client: client,
		cfg:    cfg,
		log:    log.With(logger.String("queue", cfg.Prefix)),
		jobs:   make(map[string]Job),
		now:    time.Now,
	}
}

// Register adds jobs. A second job for the same type is ignored.
func (q *RedisQueue) Register(jobs ...Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range jobs {
		if _, exists := q.jobs[job.Type()]; exists {
			q.log.Warn("job already registered", logger.String("type", job.Type()))
			continue
		}
		q.jobs[job.Type()] = job
	}
}

// Start pings redis and launches the workers and the retry promoter.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = stop
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}
	q.wg.Add(1)
	go q.retryLoop(runCtx)

	q.log.Info("queue started", logger.Int("workers", q.cfg.Workers))
	return nil
}

// Stop cancels the workers and waits for them until ctx expires.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue stores payload as a new message of msgType. The type must have a registered job.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	_, ok := q.jobs[msgType]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Depth reports the pending, retrying and dead-lettered message counts.
func (q *RedisQueue) Depth(ctx context.Context) (pending, retrying, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.key("messages"))
	r := pipe.ZCard(ctx, q.key("retry"))
	d := pipe.LLen(ctx, q.key("dlq"))
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), r.Val(), d.Val(), nil
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(ctx, q.cfg.PollInterval, q.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			q.log.Error("brpop failed", logger.Int("worker", id), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cfg.PollInterval):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		q.process(ctx, res[1])
	}
}

func (q *RedisQueue) process(ctx context.Context, data string) {
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		q.log.Error("drop malformed message", logger.Error(err))
		q.deadLetter(data)
		return
	}

	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		q.deadLetter(data)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	switch {
	case err == nil:
		return
	case ctx.Err() != nil:
		// shutting down: put the message back untouched
		if perr := q.client.RPush(context.WithoutCancel(ctx), q.key("messages"), data).Err(); perr != nil {
			q.log.Error("requeue on shutdown failed", logger.String("id", msg.ID), logger.Error(perr))
		}
	case IsPermanent(err) || msg.Attempts >= q.cfg.RetryLimit:
		q.log.Error("message dead-lettered",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts+1),
			logger.Error(err))
		msg.Attempts++
		q.deadLetterMessage(msg)
	default:
		msg.Attempts++
		q.scheduleRetry(msg)
		q.log.Warn("message retry scheduled",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempt", msg.Attempts),
			logger.Error(err))
	}
}

func (q *RedisQueue) scheduleRetry(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.log.Error("marshal retry", logger.Error(err))
		return
	}
	at := q.now().Add(q.cfg.RetryDelay)
	err = q.client.ZAdd(context.Background(), q.key("retry"), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		q.log.Error("zadd retry", logger.Error(err))
	}
}

func (q *RedisQueue) deadLetterMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.log.Error("marshal dlq", logger.Error(err))
		return
	}
	q.deadLetter(string(data))
}

func (q *RedisQueue) deadLetter(data string) {
	if err := q.client.LPush(context.Background(), q.key("dlq"), data).Err(); err != nil {
		q.log.Error("lpush dlq", logger.Error(err))
	}
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				q.log.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// PromoteDue moves retries whose delay has elapsed back onto the message list.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.key("retry"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, data := range due {
		// only the instance that removes the entry requeues it
		n, err := q.client.ZRem(ctx, q.key("retry"), data).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key("messages"), data).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) key(suffix string) string {
	return q.cfg.Prefix + ":" + suffix
}
