// Package regime classifies market behaviour from per-bar indicator samples.
package regime

import (
	"math"
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/services/history"
	"FKSEngine/pkg/logger"
)

const (
	defaultTrendThreshold      = 25.0
	defaultRangeThreshold      = 20.0
	defaultVolatilityThreshold = 0.02
)

// Breakpoints split ATR / mean(ATR) into volatility regimes.
type Breakpoints struct {
	VeryHigh float64
	High     float64
	Medium   float64
	Low      float64
	VeryLow  float64
}

// DefaultBreakpoints are the generic futures breakpoints.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{VeryHigh: 2.0, High: 1.5, Medium: 1.2, Low: 0.7, VeryLow: 0.5}
}

// BreakpointsFor reads the breakpoints from a market profile.
func BreakpointsFor(p models.MarketProfile) Breakpoints {
	return Breakpoints{VeryHigh: p.VeryHigh, High: p.High, Medium: p.Medium, Low: p.Low, VeryLow: p.VeryLow}
}

type Config struct {
	Capacity           int // samples kept per indicator
	AdaptiveMinSamples int // ADX samples needed before thresholds adapt
	ATRDeltaWindow     int // window for the volatility threshold
	VolRegimeMin       int // ATR samples needed before the volatility regime leaves Normal
	ConfirmWindow      int // raw candidates considered by the stability filter
	ConfirmVotes       int // votes needed inside ConfirmWindow to switch
	StabilityFull      int // stability count that maps to Stability 1.0
	SnapshotHistory    int
	Breakpoints        Breakpoints
}

func DefaultConfig() Config {
	return Config{
		Capacity:           50,
		AdaptiveMinSamples: 50,
		ATRDeltaWindow:     20,
		VolRegimeMin:       20,
		ConfirmWindow:      3,
		ConfirmVotes:       2,
		StabilityFull:      5,
		SnapshotHistory:    100,
		Breakpoints:        DefaultBreakpoints(),
	}
}

// Analyzer holds the rolling state for one symbol. It is not safe for
// concurrent use; the owning engine serialises calls.
type Analyzer struct {
	cfg    Config
	symbol string
	log    *logger.Logger
	now    func() time.Time

	adx        *history.Floats
	atr        *history.Floats
	volume     *history.Floats
	candidates *history.Buffer[models.RegimeType]
	snapshots  *history.Buffer[models.RegimeSnapshot]

	thresholds     models.RegimeThresholds
	current        models.RegimeSnapshot
	stabilityCount int
	changedAt      time.Time
}

func NewAnalyzer(symbol string, cfg Config, log *logger.Logger) *Analyzer {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.AdaptiveMinSamples <= 0 {
		cfg.AdaptiveMinSamples = cfg.Capacity
	}
	if cfg.ATRDeltaWindow <= 1 {
		cfg.ATRDeltaWindow = def.ATRDeltaWindow
	}
	if cfg.VolRegimeMin <= 0 {
		cfg.VolRegimeMin = def.VolRegimeMin
	}
	if cfg.ConfirmWindow <= 0 {
		cfg.ConfirmWindow = def.ConfirmWindow
	}
	if cfg.ConfirmVotes <= 0 {
		cfg.ConfirmVotes = def.ConfirmVotes
	}
	if cfg.StabilityFull <= 0 {
		cfg.StabilityFull = def.StabilityFull
	}
	if cfg.SnapshotHistory <= 0 {
		cfg.SnapshotHistory = def.SnapshotHistory
	}
	if cfg.Breakpoints == (Breakpoints{}) {
		cfg.Breakpoints = def.Breakpoints
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &Analyzer{
		cfg:    cfg,
		symbol: symbol,
		log:    log,
		now:    time.Now,
	}
	a.Reset()
	return a
}

// WithClock replaces the wall clock used when inputs carry no timestamp.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Reset drops all history and returns to the cold-start state.
func (a *Analyzer) Reset() {
	a.adx = history.NewFloats(a.cfg.Capacity)
	a.atr = history.NewFloats(a.cfg.Capacity)
	a.volume = history.NewFloats(a.cfg.Capacity)
	a.candidates = history.New[models.RegimeType](a.cfg.ConfirmWindow)
	a.snapshots = history.New[models.RegimeSnapshot](a.cfg.SnapshotHistory)
	a.thresholds = models.RegimeThresholds{
		Trend:      defaultTrendThreshold,
		Range:      defaultRangeThreshold,
		Volatility: defaultVolatilityThreshold,
	}
	a.current = models.RegimeSnapshot{
		Symbol:           a.symbol,
		Regime:           models.RegimeNeutral,
		Candidate:        models.RegimeNeutral,
		VolatilityRegime: models.VolatilityNormal,
		VolumeRatio:      1,
		RSI:              50,
	}
	a.stabilityCount = 0
	a.changedAt = time.Time{}
}

// Analyze folds one sample into the rolling state and returns the filtered classification.
// On invalid input or an internal fault the previous snapshot is returned with an error.
func (a *Analyzer) Analyze(in models.RegimeInput) (snap models.RegimeSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.Recovered("regime.Analyze", r)
			a.log.Error("regime analysis panicked",
				logger.String("symbol", a.symbol),
				logger.Any("panic", r),
			)
			snap = a.current
		}
	}()

	if !finite(in.ADX) || !finite(in.ATR) || !finite(in.Price) {
		return a.current, models.Errorf(models.KindInvalidInput, "regime.Analyze",
			"non-finite input adx=%v atr=%v price=%v", in.ADX, in.ATR, in.Price)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}

	adx := clamp(in.ADX, 0, 100)
	atr := math.Max(in.ATR, 0)
	// hosts without a volume average get the rolling mean of earlier bars
	avgVolume := in.AvgVolume
	if !(avgVolume > 0) || !finite(avgVolume) {
		avgVolume = 0
		if a.volume.Len() >= a.cfg.VolRegimeMin {
			avgVolume = a.volume.Mean()
		}
	}
	a.adx.Add(adx)
	a.atr.Add(atr)
	if finite(in.Volume) && in.Volume >= 0 {
		a.volume.Add(in.Volume)
	}

	volatility := 0.0
	if in.Price > 0 {
		volatility = atr / in.Price
	}
	volumeRatio := 1.0
	if avgVolume > 0 && finite(in.Volume) && in.Volume >= 0 {
		volumeRatio = in.Volume / avgVolume
	}
	rsi := in.RSI
	if rsi == 0 || !finite(rsi) {
		rsi = 50
	}
	rsiNorm := clamp((rsi-50)/50, -1, 1)
	trendStrength := in.TrendStrength
	if !finite(trendStrength) {
		trendStrength = 0
	}
	trendStrength = clamp(trendStrength, -1, 1)

	a.adaptThresholds()

	t := classify(adx, volatility, trendStrength, volumeRatio, rsiNorm, a.thresholds)
	candidate, _ := bestRegime(t)
	previous := a.current.Regime
	regime := a.filter(candidate, ts)

	snap = models.RegimeSnapshot{
		Symbol:           a.symbol,
		Timestamp:        ts,
		Regime:           regime,
		Candidate:        candidate,
		VolatilityRegime: a.volatilityRegime(atr),
		ADX:              adx,
		ATR:              atr,
		Volatility:       volatility,
		TrendStrength:    trendStrength,
		VolumeRatio:      volumeRatio,
		RSI:              rsi,
		Confidence:       confidenceFor(regime, adx, volatility, volumeRatio, rsiNorm, a.thresholds),
		Stability:        a.Stability(),
		StabilityCount:   a.stabilityCount,
	}
	a.current = snap
	a.snapshots.Add(snap)

	if regime != previous && a.snapshots.Len() > 1 {
		a.log.Debug("regime changed",
			logger.String("symbol", a.symbol),
			logger.String("from", previous.String()),
			logger.String("to", regime.String()),
			logger.Float64("confidence", snap.Confidence),
		)
	}
	return snap, nil
}

// filter applies the 2-of-3 confirmation rule and maintains the stability count.
func (a *Analyzer) filter(candidate models.RegimeType, ts time.Time) models.RegimeType {
	a.candidates.Add(candidate)

	if a.stabilityCount == 0 {
		a.current.Regime = candidate
		a.stabilityCount = 1
		a.changedAt = ts
		return candidate
	}
	if candidate == a.current.Regime {
		a.stabilityCount++
		return candidate
	}

	votes := 0
	for _, c := range a.candidates.Values() {
		if c == candidate {
			votes++
		}
	}
	if votes >= a.cfg.ConfirmVotes {
		a.stabilityCount = 1
		a.changedAt = ts
		return candidate
	}
	a.stabilityCount++
	return a.current.Regime
}

func (a *Analyzer) adaptThresholds() {
	if a.adx.Len() < a.cfg.AdaptiveMinSamples {
		return
	}
	mean, sd := a.adx.Mean(), a.adx.StdDev()
	a.thresholds.Trend = clamp(mean+0.5*sd, 20, 35)
	a.thresholds.Range = clamp(mean-0.5*sd, 15, 25)
	a.thresholds.Volatility = clamp(2*a.atr.MeanAbsDelta(a.cfg.ATRDeltaWindow), 0.01, 0.05)
	a.thresholds.Adaptive = true
}

func (a *Analyzer) volatilityRegime(atr float64) models.VolatilityRegime {
	if a.atr.Len() < a.cfg.VolRegimeMin {
		return models.VolatilityNormal
	}
	mean := a.atr.Mean()
	if mean <= 0 {
		return models.VolatilityNormal
	}
	ratio := atr / mean
	bp := a.cfg.Breakpoints
	switch {
	case ratio > bp.VeryHigh:
		return models.VolatilityVeryHigh
	case ratio > bp.High:
		return models.VolatilityHigh
	case ratio > bp.Medium:
		return models.VolatilityMedium
	case ratio < bp.VeryLow:
		return models.VolatilityVeryLow
	case ratio < bp.Low:
		return models.VolatilityLow
	default:
		return models.VolatilityNormal
	}
}

// Current returns the latest filtered snapshot.
func (a *Analyzer) Current() models.RegimeSnapshot { return a.current }

func (a *Analyzer) CurrentVolatility() models.VolatilityRegime { return a.current.VolatilityRegime }

// Stability is min(1, count/StabilityFull).
func (a *Analyzer) Stability() float64 {
	return math.Min(1, float64(a.stabilityCount)/float64(a.cfg.StabilityFull))
}

func (a *Analyzer) StabilityCount() int { return a.stabilityCount }

// TimeInRegime is the time since the last confirmed switch.
func (a *Analyzer) TimeInRegime(now time.Time) time.Duration {
	if a.changedAt.IsZero() || now.Before(a.changedAt) {
		return 0
	}
	return now.Sub(a.changedAt)
}

func (a *Analyzer) Thresholds() models.RegimeThresholds { return a.thresholds }

// History returns up to n recent snapshots, oldest first.
func (a *Analyzer) History(n int) []models.RegimeSnapshot { return a.snapshots.LastN(n) }

// Parameters returns the trading policy of regime r.
func (a *Analyzer) Parameters(r models.RegimeType) models.RegimeParameters { return Parameters(r) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
