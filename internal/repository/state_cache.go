package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/cache"
)

// ErrStateNotFound is returned when no state was cached for a symbol.
var ErrStateNotFound = errors.New("market state not cached")

// CachedState stores the latest market state per symbol under state:<symbol>.
type CachedState struct {
	c   cache.Service
	ttl time.Duration
}

func NewCachedState(c cache.Service, ttl time.Duration) *CachedState {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedState{c: c, ttl: ttl}
}

func stateKey(symbol string) string { return cache.Key("state", symbol) }

func (s *CachedState) SaveState(ctx context.Context, st *models.MarketStateResult) error {
	if st == nil || st.Symbol == "" {
		return fmt.Errorf("save state: symbol is required")
	}
	if err := s.c.Set(ctx, stateKey(st.Symbol), st, s.ttl); err != nil {
		return fmt.Errorf("save state %s: %w", st.Symbol, err)
	}
	return nil
}

func (s *CachedState) LoadState(ctx context.Context, symbol string) (*models.MarketStateResult, error) {
	st, err := cache.GetAs[models.MarketStateResult](ctx, s.c, stateKey(symbol))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("load state %s: %w", symbol, err)
	}
	return &st, nil
}

var _ domrepo.StateCache = (*CachedState)(nil)
