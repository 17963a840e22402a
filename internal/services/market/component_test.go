package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
)

func tradeableState(r models.RegimeType, trend models.TrendDirection) models.MarketStateResult {
	return models.MarketStateResult{
		Symbol: "ES", Timestamp: nyOpen,
		Regime: r, RegimeConfidence: 0.8,
		TrendDirection: trend, TrendStrength: 0.5,
		OpportunityScore: 0.6, RegimeStability: 0.8,
		IsTradeable: true,
	}
}

func TestComponentVotesWithRegime(t *testing.T) {
	c := NewComponent()
	require.NoError(t, c.Initialize(context.Background()))

	sig, ok := c.CurrentSignal(context.Background(), service.Input{State: tradeableState(models.RegimeBullish, models.TrendDown)})
	require.True(t, ok)
	assert.Equal(t, models.ComponentMarket, sig.Component)
	assert.Equal(t, models.DirectionLong, sig.Direction)
	assert.InDelta(t, 0.65, sig.Confidence, 1e-9)
	assert.InDelta(t, 0.7, sig.Quality, 1e-9)
	assert.Equal(t, nyOpen, sig.Timestamp)

	sig, ok = c.CurrentSignal(context.Background(), service.Input{State: tradeableState(models.RegimeBearish, models.TrendUp)})
	require.True(t, ok)
	assert.Equal(t, models.DirectionShort, sig.Direction)
}

func TestComponentFallsBackToTrendDirection(t *testing.T) {
	c := NewComponent()
	sig, ok := c.CurrentSignal(context.Background(), service.Input{State: tradeableState(models.RegimeVolatile, models.TrendDown)})
	require.True(t, ok)
	assert.Equal(t, models.DirectionShort, sig.Direction)

	_, ok = c.CurrentSignal(context.Background(), service.Input{State: tradeableState(models.RegimeRanging, models.TrendSideways)})
	assert.False(t, ok)
}

func TestComponentSilentWhenNotTradeable(t *testing.T) {
	st := tradeableState(models.RegimeBullish, models.TrendUp)
	st.IsTradeable = false
	_, ok := NewComponent().CurrentSignal(context.Background(), service.Input{State: st})
	assert.False(t, ok)
}

func TestComponentConfidenceCapped(t *testing.T) {
	st := tradeableState(models.RegimeBullish, models.TrendUp)
	st.RegimeConfidence, st.OpportunityScore, st.TrendStrength = 1, 1, 3
	sig, ok := NewComponent().CurrentSignal(context.Background(), service.Input{State: st})
	require.True(t, ok)
	assert.Equal(t, 0.95, sig.Confidence)
}
