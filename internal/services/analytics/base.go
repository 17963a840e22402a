// Package analytics bridges remote model services into the consensus as components.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"FKSEngine/pkg/config"
	xhttp "FKSEngine/pkg/http"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("analytics service unavailable")

// HTTPServiceBase wraps the shared HTTP client with a base URL and a circuit breaker.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPServiceBase builds the client from the analytics config section.
func NewHTTPServiceBase(name string, cfg config.Analytics) *HTTPServiceBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: cfg.URL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		breaker: newBreaker(name, cfg),
	}
}

func newBreaker(name string, cfg config.Analytics) *gobreaker.CircuitBreaker {
	fails := cfg.Breaker.ConsecutiveFails
	if fails == 0 {
		fails = 3
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= fails {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

// State exposes the breaker state for health reporting.
func (b *HTTPServiceBase) State() gobreaker.State { return b.breaker.State() }

// PostJSON posts payload to path under the base URL and decodes the JSON answer into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("analytics http client not initialized")
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     b.baseURL + path,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    payload,
		}, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("post %s: %w", path, ErrUnavailable)
	}
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transport errors and 429/5xx answers with a linear backoff.
// An open breaker is not retried.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || errors.Is(err, ErrUnavailable) || !xhttp.IsTemporary(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
