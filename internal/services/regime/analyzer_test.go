package regime

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
)

var t0 = time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)

func trendingInput(i int) models.RegimeInput {
	return models.RegimeInput{
		Timestamp: t0.Add(time.Duration(i) * time.Minute),
		ADX:       30, ATR: 1.5, Price: 100,
		Volume: 1000, AvgVolume: 1000,
	}
}

func calmInput(i int) models.RegimeInput {
	return models.RegimeInput{
		Timestamp: t0.Add(time.Duration(i) * time.Minute),
		ADX:       12, ATR: 0.2, Price: 100,
		Volume: 500, AvgVolume: 1000,
	}
}

func TestStrongTrendScenario(t *testing.T) {
	a := NewAnalyzer("GC", DefaultConfig(), nil)
	snap, err := a.Analyze(models.RegimeInput{
		Timestamp: t0, ADX: 35, ATR: 2.0, Price: 2000,
		Volume: 2000, AvgVolume: 1000, TrendStrength: 0.8,
	})
	require.NoError(t, err)
	assert.Contains(t, []models.RegimeType{models.RegimeStrongTrend, models.RegimeTrending}, snap.Regime)
	assert.Greater(t, snap.Confidence, 0.5)
	assert.Equal(t, 2.0, snap.VolumeRatio)
	assert.Equal(t, 1, snap.StabilityCount)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() []models.RegimeSnapshot {
		a := NewAnalyzer("NQ", DefaultConfig(), nil)
		adx := []float64{30, 31, 29, 32}
		atr := []float64{1.0, 1.1, 1.0, 1.2}
		var out []models.RegimeSnapshot
		for i := range adx {
			s, err := a.Analyze(models.RegimeInput{
				Timestamp: t0.Add(time.Duration(i) * time.Minute),
				ADX:       adx[i], ATR: atr[i], Price: 100, Volume: 1000, AvgVolume: 1000,
			})
			require.NoError(t, err)
			out = append(out, s)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSingleOutlierDoesNotSwitch(t *testing.T) {
	a := NewAnalyzer("ES", DefaultConfig(), nil)
	for i := 0; i < 5; i++ {
		_, err := a.Analyze(trendingInput(i))
		require.NoError(t, err)
	}
	before := a.Current().Regime

	snap, err := a.Analyze(calmInput(5))
	require.NoError(t, err)
	assert.Equal(t, before, snap.Regime, "one-off sample must not change the regime")
	assert.NotEqual(t, before, snap.Candidate)

	snap, err = a.Analyze(trendingInput(6))
	require.NoError(t, err)
	assert.Equal(t, before, snap.Regime)
}

func TestTwoOfThreeConfirmsSwitch(t *testing.T) {
	a := NewAnalyzer("ES", DefaultConfig(), nil)
	for i := 0; i < 5; i++ {
		_, _ = a.Analyze(trendingInput(i))
	}
	before := a.Current().Regime

	_, _ = a.Analyze(calmInput(5))
	snap, err := a.Analyze(calmInput(6))
	require.NoError(t, err)
	assert.NotEqual(t, before, snap.Regime)
	assert.Equal(t, 1, snap.StabilityCount, "count resets to 1 on a confirmed switch")
	assert.Equal(t, time.Duration(0), a.TimeInRegime(t0.Add(6*time.Minute)))
	assert.Equal(t, 2*time.Minute, a.TimeInRegime(t0.Add(8*time.Minute)))
}

func TestStabilityCountMonotonicUntilSwitch(t *testing.T) {
	a := NewAnalyzer("CL", DefaultConfig(), nil)
	inputs := []models.RegimeInput{}
	for i := 0; i < 30; i++ {
		if i%7 == 3 || i%11 == 0 {
			inputs = append(inputs, calmInput(i))
		} else {
			inputs = append(inputs, trendingInput(i))
		}
	}
	prev := models.RegimeSnapshot{}
	for i, in := range inputs {
		s, err := a.Analyze(in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Stability, 0.0)
		assert.LessOrEqual(t, s.Stability, 1.0)
		if i > 0 && s.Regime == prev.Regime {
			assert.GreaterOrEqual(t, s.StabilityCount, prev.StabilityCount, "step %d", i)
		}
		prev = s
	}
}

func TestNonFiniteInputKeepsState(t *testing.T) {
	a := NewAnalyzer("GC", DefaultConfig(), nil)
	good, err := a.Analyze(trendingInput(0))
	require.NoError(t, err)

	bad := trendingInput(1)
	bad.ADX = math.NaN()
	snap, err := a.Analyze(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.Equal(t, good, snap)
	assert.Len(t, a.History(10), 1)

	bad.ADX, bad.Price = 30, math.Inf(1)
	_, err = a.Analyze(bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestExtremeInputsStayInRange(t *testing.T) {
	a := NewAnalyzer("BTC", DefaultConfig(), nil)
	cases := []models.RegimeInput{
		{ADX: -50, ATR: -3, Price: -1, Volume: -10, AvgVolume: 0, TrendStrength: -9, RSI: -40},
		{ADX: 1e9, ATR: 1e9, Price: 1e-9, Volume: 1e12, AvgVolume: 1, TrendStrength: 9, RSI: 400},
		{ADX: 0, ATR: 0, Price: 0, Volume: 0, AvgVolume: 0, TrendStrength: math.NaN(), RSI: math.NaN()},
	}
	for i, in := range cases {
		in.Timestamp = t0.Add(time.Duration(i) * time.Minute)
		s, err := a.Analyze(in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Confidence, 0.1)
		assert.LessOrEqual(t, s.Confidence, 0.95)
		assert.False(t, math.IsNaN(s.Volatility))
		assert.False(t, math.IsNaN(s.VolumeRatio))
	}
}

func TestAdaptiveThresholds(t *testing.T) {
	a := NewAnalyzer("ES", DefaultConfig(), nil)
	assert.False(t, a.Thresholds().Adaptive)
	assert.Equal(t, 25.0, a.Thresholds().Trend)

	for i := 0; i < 50; i++ {
		in := trendingInput(i)
		in.ADX = 40
		_, _ = a.Analyze(in)
	}
	th := a.Thresholds()
	assert.True(t, th.Adaptive)
	assert.Equal(t, 35.0, th.Trend, "clamped to upper bound")
	assert.Equal(t, 25.0, th.Range)
	assert.Equal(t, 0.01, th.Volatility, "flat ATR clamps to the floor")
}

func TestVolatilityRegime(t *testing.T) {
	a := NewAnalyzer("ES", DefaultConfig(), nil)
	for i := 0; i < 19; i++ {
		_, _ = a.Analyze(trendingInput(i))
	}
	assert.Equal(t, models.VolatilityNormal, a.CurrentVolatility())

	spike := trendingInput(19)
	spike.ATR = 6
	s, err := a.Analyze(spike)
	require.NoError(t, err)
	// mean = (19*1.5+6)/20 = 1.725; 6/1.725 > 2
	assert.Equal(t, models.VolatilityVeryHigh, s.VolatilityRegime)

	quiet := trendingInput(20)
	quiet.ATR = 0.5
	s, _ = a.Analyze(quiet)
	assert.Equal(t, models.VolatilityVeryLow, s.VolatilityRegime)
	assert.Equal(t, models.LevelLow, s.VolatilityRegime.Level())
}

func TestResetReturnsToColdStart(t *testing.T) {
	a := NewAnalyzer("ES", DefaultConfig(), nil)
	for i := 0; i < 4; i++ {
		_, _ = a.Analyze(trendingInput(i))
	}
	a.Reset()
	assert.Equal(t, 0, a.StabilityCount())
	assert.Equal(t, models.RegimeNeutral, a.Current().Regime)
	assert.Empty(t, a.History(5))

	s, _ := a.Analyze(calmInput(10))
	assert.Equal(t, s.Candidate, s.Regime, "cold start accepts the first candidate")
}

func TestParametersLookup(t *testing.T) {
	p := Parameters(models.RegimeChoppy)
	assert.Equal(t, models.RegimeChoppy, p.Regime)
	assert.True(t, p.RequireConfirmation)
	assert.Equal(t, 0.9, p.SignalThreshold)

	p.PreferredTimeframes[0] = models.TF1m
	assert.Equal(t, models.TF15m, Parameters(models.RegimeChoppy).PreferredTimeframes[0])

	unknown := Parameters(models.RegimeType(99))
	assert.Equal(t, models.RegimeNeutral, unknown.Regime)
}

func TestVolumeRatioFallsBackToRollingMean(t *testing.T) {
	a := NewAnalyzer("CL", DefaultConfig(), nil)
	in := func(i int, vol float64) models.RegimeInput {
		return models.RegimeInput{Timestamp: t0.Add(time.Duration(i) * time.Minute), ADX: 25, ATR: 0.5, Price: 70, Volume: vol}
	}

	// too few samples for a mean: neutral ratio
	snap, err := a.Analyze(in(0, 800))
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.VolumeRatio)

	for i := 1; i < DefaultConfig().VolRegimeMin; i++ {
		_, err = a.Analyze(in(i, 800))
		require.NoError(t, err)
	}
	snap, err = a.Analyze(in(100, 1600))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, snap.VolumeRatio, 1e-9)

	// an explicit average still wins
	withAvg := in(101, 1600)
	withAvg.AvgVolume = 3200
	snap, err = a.Analyze(withAvg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.VolumeRatio, 1e-9)
}
