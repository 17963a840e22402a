package market

import (
	"math"

	"FKSEngine/internal/domain/models"
)

// insights are heuristic hints over the recent states; they are pattern matches, not forecasts.
func (g *Aggregator) insights(cur models.MarketStateResult) models.PredictiveInsights {
	window := g.states.LastN(g.cfg.InsightWindow)
	in := models.PredictiveInsights{
		NextRegime: cur.Regime,
		Samples:    len(window),
	}

	pressure := make([]float64, len(window))
	vol := make([]float64, len(window))
	for i, s := range window {
		pressure[i] = s.MarketPressure
		vol[i] = s.Volatility
	}
	in.PressureTrend = halfTrend(pressure)
	in.VolatilityTrend = halfTrend(vol)

	in.NextRegime, in.NextRegimeConfidence = nextRegime(window, cur, in.PressureTrend, in.VolatilityTrend)
	in.EntryWindowOpen = cur.IsTradeable && mainSession(cur.Session.Session) && cur.Session.Progress < 0.5
	return in
}

// halfTrend compares the mean of the first half against the second half; >10% is a trend.
func halfTrend(v []float64) models.TrendDirection {
	if len(v) < 2 {
		return models.TrendSideways
	}
	mid := len(v) / 2
	first, second := mean(v[:mid]), mean(v[mid:])
	if math.Abs(first) < 1e-12 {
		if second > 1e-12 {
			return models.TrendUp
		}
		return models.TrendSideways
	}
	change := (second - first) / math.Abs(first)
	switch {
	case change > 0.10:
		return models.TrendUp
	case change < -0.10:
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

func nextRegime(window []models.MarketStateResult, cur models.MarketStateResult, pressure, vol models.TrendDirection) (models.RegimeType, float64) {
	switch cur.Regime {
	case models.RegimeTrending:
		if pressure == models.TrendUp && repeated(window, models.RegimeTrending, 3) {
			return models.RegimeStrongTrend, 0.6
		}
	case models.RegimeCalm, models.RegimeLowVolatility:
		if pressure == models.TrendUp {
			return models.RegimeBreakout, 0.55
		}
	case models.RegimeVolatile, models.RegimeHighVolatility:
		if vol == models.TrendDown {
			return models.RegimeRanging, 0.5
		}
	case models.RegimeStrongTrend:
		if pressure == models.TrendDown {
			return models.RegimeTrending, 0.55
		}
	}
	return cur.Regime, clamp(0.3+0.4*cur.RegimeStability, 0, 1)
}

// repeated reports whether the newest n states all carry regime r.
func repeated(window []models.MarketStateResult, r models.RegimeType, n int) bool {
	if len(window) < n {
		return false
	}
	for _, s := range window[len(window)-n:] {
		if s.Regime != r {
			return false
		}
	}
	return true
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
