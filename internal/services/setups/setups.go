// Package setups holds the trade-setup detectors. Each detector is a pure function of one bar.
package setups

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"FKSEngine/internal/domain/models"
)

// Context carries the non-bar inputs a detector needs.
type Context struct {
	Symbol     string
	Session    models.Session
	Regime     models.RegimeType
	TickSize   float64
	MaxRiskPct float64 // reject when risk exceeds this percent of entry
	StopBuffer float64 // ATR multiple placed beyond the anchor level
	RewardRisk float64 // target distance as a multiple of risk
}

// DefaultContext is used when no market profile is known.
func DefaultContext(symbol string) Context {
	return Context{
		Symbol:     symbol,
		Session:    models.SessionLondonSession,
		Regime:     models.RegimeNeutral,
		TickSize:   0.01,
		MaxRiskPct: 2.5,
		StopBuffer: 0.5,
		RewardRisk: 2.0,
	}
}

func (c Context) normalized() Context {
	d := DefaultContext(c.Symbol)
	if c.MaxRiskPct <= 0 {
		c.MaxRiskPct = d.MaxRiskPct
	}
	if c.StopBuffer <= 0 {
		c.StopBuffer = d.StopBuffer
	}
	if c.RewardRisk <= 0 {
		c.RewardRisk = d.RewardRisk
	}
	return c
}

// Detector evaluates one setup pattern.
type Detector func(bar models.Bar, ctx Context) models.TradingSetup

// Named pairs a detector with the component it reports as.
type Named struct {
	ID     models.ComponentID
	Detect Detector
}

// Detectors lists every detector in a stable order.
var Detectors = []Named{
	{models.ComponentBreakout, BullishBreakout},
	{models.ComponentBreakdown, BearishBreakdown},
	{models.ComponentVWAPRejection, VWAPRejection},
	{models.ComponentAOSaucer, AOSaucer},
	{models.ComponentAOZeroCross, AOZeroCross},
}

// All runs every detector.
func All(bar models.Bar, ctx Context) []models.TradingSetup {
	out := make([]models.TradingSetup, 0, len(Detectors))
	for _, d := range Detectors {
		out = append(out, d.Detect(bar, ctx))
	}
	return out
}

// Best returns the valid setup with the highest quality score.
func Best(bar models.Bar, ctx Context) (models.TradingSetup, bool) {
	var best models.TradingSetup
	found := false
	for _, s := range All(bar, ctx) {
		if !s.IsValid {
			continue
		}
		if !found || s.QualityScore > best.QualityScore {
			best, found = s, true
		}
	}
	return best, found
}

type check struct {
	name   string
	ok     bool
	reason string
}

// evaluation is the intermediate form every detector fills before scoring.
type evaluation struct {
	name       string
	direction  models.Direction
	pattern    bool   // mandatory pattern present
	patternMsg string // reason when the pattern is present
	checks     []check
	minConfirm int
	anchor     float64 // level the stop is placed beyond
	bonuses    []bool
}

func finish(bar models.Bar, ctx Context, ev evaluation) models.TradingSetup {
	ctx = ctx.normalized()
	s := models.TradingSetup{
		Name:            ev.name,
		Symbol:          firstNonEmpty(bar.Symbol, ctx.Symbol),
		Direction:       ev.direction,
		Checks:          make(map[string]bool, len(ev.checks)+1),
		MarketCondition: ctx.Regime,
		Timestamp:       bar.Time,
	}

	if !validBar(bar) {
		s.Reasons = []string{"invalid input: close and ATR must be finite and positive"}
		return s
	}

	s.Checks["pattern"] = ev.pattern
	if ev.pattern {
		s.Reasons = append(s.Reasons, ev.patternMsg)
	}
	for _, c := range ev.checks {
		s.Checks[c.name] = c.ok
		if c.ok {
			s.Confirmations++
			s.Reasons = append(s.Reasons, c.reason)
		}
	}

	ratio := float64(s.Confirmations) / float64(len(ev.checks))
	conf := 0.3 + 0.5*ratio
	for _, b := range ev.bonuses {
		if b {
			conf += 0.05
		}
	}
	s.Confidence = clamp(math.Min(conf, 0.95), 0, 1)

	if !ev.pattern {
		s.Reasons = append(s.Reasons, "rejected: pattern not present")
		return s
	}
	if s.Confirmations < ev.minConfirm {
		s.Reasons = append(s.Reasons, fmt.Sprintf("rejected: %d confirmations, need %d", s.Confirmations, ev.minConfirm))
		return s
	}

	entry := bar.Close
	var stop, target float64
	switch ev.direction {
	case models.DirectionLong:
		stop = ev.anchor - ctx.StopBuffer*bar.ATR
		risk := entry - stop
		target = entry + ctx.RewardRisk*risk
	case models.DirectionShort:
		stop = ev.anchor + ctx.StopBuffer*bar.ATR
		risk := stop - entry
		target = entry - ctx.RewardRisk*risk
	default:
		s.Reasons = append(s.Reasons, "rejected: no direction")
		return s
	}
	s.Entry = roundTick(entry, ctx.TickSize)
	s.Stop = roundTick(stop, ctx.TickSize)
	s.Target = roundTick(target, ctx.TickSize)

	risk := math.Abs(s.Entry - s.Stop)
	if risk <= 0 || (ev.direction == models.DirectionLong && s.Stop >= s.Entry) || (ev.direction == models.DirectionShort && s.Stop <= s.Entry) {
		s.Reasons = append(s.Reasons, "rejected: stop is not beyond entry")
		return s
	}
	s.RiskPercent = risk / s.Entry * 100
	s.RewardRisk = math.Abs(s.Target-s.Entry) / risk
	if s.RiskPercent > ctx.MaxRiskPct {
		s.Reasons = append(s.Reasons, fmt.Sprintf("rejected: risk %.2f%% exceeds %.2f%%", s.RiskPercent, ctx.MaxRiskPct))
		return s
	}

	s.QualityScore = clamp(0.6*s.Confidence+0.4*ratio, 0, 1)
	s.IsValid = true
	return s
}

func validBar(b models.Bar) bool {
	return finite(b.Close) && finite(b.ATR) && b.Close > 0 && b.ATR > 0 &&
		finite(b.EMA9) && finite(b.VWAP) && finite(b.AO) && finite(b.PrevAO)
}

// roundTick snaps p to the nearest multiple of tick using decimal arithmetic.
func roundTick(p, tick float64) float64 {
	if tick <= 0 || !finite(p) {
		return p
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(p).Div(t).Round(0).Mul(t).InexactFloat64()
}

func rsiOf(b models.Bar) float64 {
	if b.RSI == 0 || !finite(b.RSI) {
		return 50
	}
	return b.RSI
}

func sessionOpen(s models.Session) bool { return s != models.SessionWeekend }

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
