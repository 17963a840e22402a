// Package market combines regime and session analysis into one market state per bar.
package market

import (
	"errors"
	"math"
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/services/history"
	"FKSEngine/internal/services/regime"
	"FKSEngine/internal/services/session"
	"FKSEngine/pkg/logger"
)

type Config struct {
	InsightWindow int // states considered by the insight heuristics
	HistorySize   int
}

func DefaultConfig() Config {
	return Config{InsightWindow: 5, HistorySize: 100}
}

// Aggregator owns the regime analyzer of one symbol. Not safe for concurrent use.
type Aggregator struct {
	cfg      Config
	symbol   string
	regime   *regime.Analyzer
	sessions *session.Analyzer
	log      *logger.Logger
	now      func() time.Time

	states  *history.Buffer[models.MarketStateResult]
	last    models.MarketStateResult
	hasLast bool
}

func NewAggregator(symbol string, ra *regime.Analyzer, sa *session.Analyzer, cfg Config, log *logger.Logger) *Aggregator {
	if cfg.InsightWindow < 2 {
		cfg.InsightWindow = DefaultConfig().InsightWindow
	}
	if cfg.HistorySize < cfg.InsightWindow {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if log == nil {
		log = logger.Nop()
	}
	if sa == nil {
		sa = session.NewAnalyzer(nil)
	}
	return &Aggregator{
		cfg:      cfg,
		symbol:   symbol,
		regime:   ra,
		sessions: sa,
		log:      log,
		now:      time.Now,
		states:   history.New[models.MarketStateResult](cfg.HistorySize),
		last:     neutralState(symbol),
	}
}

// WithClock replaces the clock used for bars without a timestamp.
func (g *Aggregator) WithClock(now func() time.Time) *Aggregator {
	g.now = now
	g.regime.WithClock(now)
	return g
}

func neutralState(symbol string) models.MarketStateResult {
	return models.MarketStateResult{
		Symbol:           symbol,
		Regime:           models.RegimeNeutral,
		VolatilityRegime: models.VolatilityNormal,
		VolatilityLevel:  models.LevelNormal,
		VolumeRatio:      1,
		RiskAdjustment:   1,
		Parameters:       regime.Parameters(models.RegimeNeutral),
	}
}

// Analyze runs one market analysis. On failure it returns the last good result and an error.
func (g *Aggregator) Analyze(bar models.Bar) (res models.MarketStateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.Recovered("market.Analyze", r)
			g.log.Error("market analysis panicked",
				logger.String("symbol", g.symbol),
				logger.Any("panic", r),
			)
			res = g.last
		}
	}()

	ts := bar.Time
	if ts.IsZero() {
		ts = g.now()
	}
	in := bar.RegimeInput()
	in.Timestamp = ts

	snap, err := g.regime.Analyze(in)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidInput) {
			g.log.Warn("regime analysis failed", logger.String("symbol", g.symbol), logger.Error(err))
		}
		return g.last, err
	}

	info := g.sessions.Info(ts)
	th := g.regime.Thresholds()
	level := snap.VolatilityRegime.Level()

	res = models.MarketStateResult{
		Symbol:           g.symbol,
		Timestamp:        ts,
		Regime:           snap.Regime,
		RegimeConfidence: snap.Confidence,
		VolatilityRegime: snap.VolatilityRegime,
		VolatilityLevel:  level,
		Volatility:       snap.Volatility,
		Session:          info,
		TrendDirection:   trendDirection(snap.TrendStrength),
		TrendStrength:    snap.TrendStrength,
		VolumeRatio:      snap.VolumeRatio,
		RegimeStability:  snap.Stability,
		TimeInRegime:     g.regime.TimeInRegime(ts),
		Parameters:       regime.Parameters(snap.Regime),
	}
	res.MarketPressure = Pressure(snap, th.Volatility)
	res.OpportunityScore = Opportunity(snap.Regime, info.Session, res.MarketPressure, snap.Stability)
	res.RiskAdjustment = RiskAdjustment(snap.Regime, level, info.Session)
	res.IsHighQuality = res.OpportunityScore >= 0.7 && res.RegimeStability >= 0.6 && level != models.LevelExtreme
	res.IsTradeable = Tradeable(res)

	g.states.Add(res)
	res.Insights = g.insights(res)

	g.last = res
	g.hasLast = true
	return res, nil
}

// Pressure blends volume, volatility, trend, ADX and regime into [0,2].
func Pressure(snap models.RegimeSnapshot, volThreshold float64) float64 {
	volScaled := 0.0
	if volThreshold > 0 {
		volScaled = snap.Volatility / volThreshold
	}
	p := clamp(snap.VolumeRatio, 0, 2)*0.25 +
		clamp(volScaled, 0, 2)*0.30 +
		clamp(math.Abs(snap.TrendStrength), 0, 1)*0.20 +
		clamp(snap.ADX/25, 0, 2)*0.15 +
		regimePressure[snap.Regime]*0.10
	return clamp(p, 0, 2)
}

// Opportunity scores how favourable conditions are for new entries, in [0,1].
func Opportunity(r models.RegimeType, s models.Session, pressure, stability float64) float64 {
	o := 0.4 + regimeOpportunity[r] + sessionOpportunity[s] + (pressure-1)*0.15 + stability*0.10
	if s == models.SessionWeekend {
		o -= weekendPenalty
	}
	return clamp(o, 0, 1)
}

// RiskAdjustment scales position risk, in [0.3,2].
func RiskAdjustment(r models.RegimeType, level models.VolatilityLevel, s models.Session) float64 {
	rf, ok := regimeRisk[r]
	if !ok {
		rf = 1
	}
	lf, ok := levelRisk[level]
	if !ok {
		lf = 1
	}
	return clamp(1.0*rf*lf*sessionRisk(s), 0.3, 2.0)
}

// Tradeable gates new entries.
func Tradeable(res models.MarketStateResult) bool {
	if res.OpportunityScore < 0.4 {
		return false
	}
	if res.Session.Session == models.SessionWeekend || res.Regime == models.RegimeChoppy {
		return false
	}
	if res.Regime == models.RegimeVolatile && res.MarketPressure > 1.5 && res.OpportunityScore <= 0.75 {
		return false
	}
	return true
}

func trendDirection(ts float64) models.TrendDirection {
	switch {
	case ts > 0.2:
		return models.TrendUp
	case ts < -0.2:
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

// Last returns the last good result; false before the first successful analysis.
func (g *Aggregator) Last() (models.MarketStateResult, bool) { return g.last, g.hasLast }

// States returns up to n recent results, oldest first.
func (g *Aggregator) States(n int) []models.MarketStateResult { return g.states.LastN(n) }

func (g *Aggregator) Regime() *regime.Analyzer { return g.regime }

func (g *Aggregator) Sessions() *session.Analyzer { return g.sessions }

// Reset clears the regime state and the state history.
func (g *Aggregator) Reset() {
	g.regime.Reset()
	g.states.Clear()
	g.last = neutralState(g.symbol)
	g.hasLast = false
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
