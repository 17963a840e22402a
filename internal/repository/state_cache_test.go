package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
	"FKSEngine/pkg/cache"
)

func TestCachedStateRoundTrip(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := NewCachedState(mem, time.Minute)
	ctx := context.Background()

	st := &models.MarketStateResult{
		Symbol:           "NQ",
		Timestamp:        ts,
		Regime:           models.RegimeBreakout,
		VolatilityRegime: models.VolatilityHigh,
		VolatilityLevel:  models.LevelHigh,
		Session:          models.SessionInfo{Session: models.SessionNYOpen, Progress: 0.25},
		TrendDirection:   models.TrendUp,
		OpportunityScore: 0.7,
		IsTradeable:      true,
		Insights:         models.PredictiveInsights{PressureTrend: models.TrendDown, NextRegime: models.RegimeTrending},
	}
	require.NoError(t, s.SaveState(ctx, st))

	got, err := s.LoadState(ctx, "NQ")
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestCachedStateMissAndValidation(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	s := NewCachedState(mem, 0)

	_, err := s.LoadState(context.Background(), "ES")
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.Error(t, s.SaveState(context.Background(), &models.MarketStateResult{}))
	assert.Error(t, s.SaveState(context.Background(), nil))
}
