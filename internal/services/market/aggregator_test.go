package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/services/regime"
	"FKSEngine/internal/services/session"
)

// Tuesday 13:30 UTC, inside the NY open window.
var nyOpen = time.Date(2025, 3, 4, 13, 30, 0, 0, time.UTC)

func newAggregator() *Aggregator {
	return NewAggregator("ES", regime.NewAnalyzer("ES", regime.DefaultConfig(), nil), session.NewAnalyzer(nil), DefaultConfig(), nil)
}

func trendBar(ts time.Time) models.Bar {
	return models.Bar{
		Symbol: "ES", Time: ts, Close: 100,
		Volume: 1500, AvgVolume: 1000,
		ADX: 30, ATR: 1.5, TrendStrength: 0.5,
	}
}

func TestTrendingDuringNYOpen(t *testing.T) {
	g := newAggregator()
	var res models.MarketStateResult
	var err error
	for i := 0; i < 5; i++ {
		res, err = g.Analyze(trendBar(nyOpen.Add(time.Duration(i) * time.Minute)))
		require.NoError(t, err)
	}

	assert.Equal(t, models.RegimeTrending, res.Regime)
	assert.Equal(t, models.SessionNYOpen, res.Session.Session)
	assert.Equal(t, models.TrendUp, res.TrendDirection)
	assert.InDelta(t, 1.0, res.MarketPressure, 1e-9)
	assert.InDelta(t, 0.85, res.OpportunityScore, 1e-9)
	assert.InDelta(t, 1.1, res.RiskAdjustment, 1e-9)
	assert.True(t, res.IsHighQuality)
	assert.True(t, res.IsTradeable)
	assert.True(t, res.Insights.EntryWindowOpen)
	assert.Equal(t, models.TrendSideways, res.Insights.PressureTrend)
	assert.Equal(t, models.RegimeTrending, res.Insights.NextRegime)
	assert.Equal(t, 5, res.Insights.Samples)
	assert.Equal(t, 4*time.Minute, res.TimeInRegime)
	assert.Equal(t, 0.65, res.Parameters.SignalThreshold)
}

func TestWeekendIsNotTradeable(t *testing.T) {
	g := newAggregator()
	sat := time.Date(2025, 3, 8, 14, 0, 0, 0, time.UTC)
	res, err := g.Analyze(trendBar(sat))
	require.NoError(t, err)

	assert.Equal(t, models.SessionWeekend, res.Session.Session)
	assert.False(t, res.IsTradeable)
	assert.False(t, res.Insights.EntryWindowOpen)
	assert.InDelta(t, 0.55, res.RiskAdjustment, 1e-9)
	assert.Less(t, res.OpportunityScore, 0.4)
}

func TestInvalidBarKeepsLastResult(t *testing.T) {
	g := newAggregator()
	good, err := g.Analyze(trendBar(nyOpen))
	require.NoError(t, err)

	bad := trendBar(nyOpen.Add(time.Minute))
	bad.ATR = math.NaN()
	res, err := g.Analyze(bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, good, res)
	assert.Len(t, g.States(10), 1)
}

func TestScoresStayInRangeForExtremeInputs(t *testing.T) {
	g := newAggregator()
	bars := []models.Bar{
		{Time: nyOpen, Close: -5, Volume: -1, AvgVolume: -1, ADX: -10, ATR: -2, TrendStrength: -50},
		{Time: nyOpen.Add(time.Minute), Close: 1e-6, Volume: 1e15, AvgVolume: 1, ADX: 1e6, ATR: 1e6, TrendStrength: 1e6},
		{Time: nyOpen.Add(2 * time.Minute), Close: 0, ADX: 0, ATR: 0, TrendStrength: math.NaN(), RSI: math.Inf(1)},
	}
	for _, b := range bars {
		res, err := g.Analyze(b)
		require.NoError(t, err)
		assert.True(t, res.MarketPressure >= 0 && res.MarketPressure <= 2, "pressure %v", res.MarketPressure)
		assert.True(t, res.OpportunityScore >= 0 && res.OpportunityScore <= 1, "opportunity %v", res.OpportunityScore)
		assert.True(t, res.RiskAdjustment >= 0.3 && res.RiskAdjustment <= 2, "risk %v", res.RiskAdjustment)
		assert.True(t, res.RegimeConfidence >= 0 && res.RegimeConfidence <= 1)
		assert.True(t, res.Insights.NextRegimeConfidence >= 0 && res.Insights.NextRegimeConfidence <= 1)
	}
}

func TestTradeableGate(t *testing.T) {
	base := models.MarketStateResult{
		Regime:           models.RegimeTrending,
		OpportunityScore: 0.6,
		MarketPressure:   1.0,
		Session:          models.SessionInfo{Session: models.SessionLondonSession},
	}
	assert.True(t, Tradeable(base))

	low := base
	low.OpportunityScore = 0.39
	assert.False(t, Tradeable(low))

	choppy := base
	choppy.Regime = models.RegimeChoppy
	assert.False(t, Tradeable(choppy))

	volatile := base
	volatile.Regime = models.RegimeVolatile
	volatile.MarketPressure = 1.6
	assert.False(t, Tradeable(volatile))
	volatile.OpportunityScore = 0.8
	assert.True(t, Tradeable(volatile), "volatile with strong opportunity stays tradeable")
}

func TestRiskAdjustmentBounds(t *testing.T) {
	assert.InDelta(t, 0.3, RiskAdjustment(models.RegimeChoppy, models.LevelExtreme, models.SessionWeekend), 1e-9)
	assert.InDelta(t, 1.32, RiskAdjustment(models.RegimeStrongTrend, models.LevelLow, models.SessionNYOpen), 1e-9)
}

func TestHalfTrend(t *testing.T) {
	assert.Equal(t, models.TrendUp, halfTrend([]float64{1, 1, 1.2, 1.3, 1.3}))
	assert.Equal(t, models.TrendDown, halfTrend([]float64{1.3, 1.3, 1.0, 1.0, 1.0}))
	assert.Equal(t, models.TrendSideways, halfTrend([]float64{1, 1.05, 1.02, 1.04, 1.03}))
	assert.Equal(t, models.TrendSideways, halfTrend([]float64{1}))
	assert.Equal(t, models.TrendUp, halfTrend([]float64{0, 0, 0.5}))
}

func TestNextRegimePatterns(t *testing.T) {
	trending := []models.MarketStateResult{{Regime: models.RegimeTrending}, {Regime: models.RegimeTrending}, {Regime: models.RegimeTrending}}
	r, c := nextRegime(trending, trending[2], models.TrendUp, models.TrendSideways)
	assert.Equal(t, models.RegimeStrongTrend, r)
	assert.Equal(t, 0.6, c)

	calm := models.MarketStateResult{Regime: models.RegimeCalm}
	r, _ = nextRegime(nil, calm, models.TrendUp, models.TrendSideways)
	assert.Equal(t, models.RegimeBreakout, r)

	vol := models.MarketStateResult{Regime: models.RegimeHighVolatility}
	r, _ = nextRegime(nil, vol, models.TrendSideways, models.TrendDown)
	assert.Equal(t, models.RegimeRanging, r)

	strong := models.MarketStateResult{Regime: models.RegimeStrongTrend, RegimeStability: 1}
	r, _ = nextRegime(nil, strong, models.TrendDown, models.TrendSideways)
	assert.Equal(t, models.RegimeTrending, r)
	r, c = nextRegime(nil, strong, models.TrendSideways, models.TrendSideways)
	assert.Equal(t, models.RegimeStrongTrend, r)
	assert.InDelta(t, 0.7, c, 1e-9)
}
