package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job handles every message of one type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// JobFunc adapts a function into a Job.
func JobFunc(msgType string, fn func(context.Context, json.RawMessage) error) Job {
	return funcJob{typ: msgType, fn: fn}
}

type funcJob struct {
	typ string
	fn  func(context.Context, json.RawMessage) error
}

func (j funcJob) Type() string { return j.typ }

func (j funcJob) Handle(ctx context.Context, payload json.RawMessage) error { return j.fn(ctx, payload) }

// Config tunes the workers and the retry policy.
type Config struct {
	Workers      int           // number of workers
	RetryLimit   int           // attempts after the first before a message is dead-lettered
	RetryDelay   time.Duration // delay between attempts
	PollInterval time.Duration // blocking pop timeout and retry promotion period
	Prefix       string        // redis key prefix
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "fks:queue"
	}
}

// Message is the stored envelope of one job payload.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }

func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err so the message goes straight to the dead-letter list.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Decode unmarshals a payload. Malformed payloads are permanent failures.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode payload: %w", err))
	}
	return v, nil
}
