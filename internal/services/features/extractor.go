package features

import (
	"math"
	"time"

	"FKSEngine/internal/domain/models"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last window returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// TrendStrength is a signed efficiency ratio in [-1,1]: net move over path length,
// doubled for sensitivity. Positive means up.
func TrendStrength(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	net := closes[len(closes)-1] - closes[0]
	path := 0.0
	for i := 1; i < len(closes); i++ {
		path += math.Abs(closes[i] - closes[i-1])
	}
	if path == 0 || math.IsNaN(path) || math.IsInf(path, 0) {
		return 0
	}
	er := math.Min(2*math.Abs(net)/path, 1)
	if net < 0 {
		return -er
	}
	return er
}

// BarsPerYear returns the approximate number of bars per year for a timeframe.
func BarsPerYear(tf models.Timeframe) float64 {
	switch tf {
	case models.TF1m:
		return 365 * 24 * 60
	case models.TF2m:
		return 365 * 24 * 30
	case models.TF5m:
		return 365 * 24 * 12
	case models.TF15m:
		return 365 * 24 * 4
	case models.TF1h:
		return 365 * 24
	default:
		return 365 * 24 * 12
	}
}

// Duration is the bar length of tf.
func Duration(tf models.Timeframe) time.Duration {
	switch tf {
	case models.TF1m:
		return time.Minute
	case models.TF2m:
		return 2 * time.Minute
	case models.TF15m:
		return 15 * time.Minute
	case models.TF1h:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

// AlignBarTime rounds t down to its bar boundary.
func AlignBarTime(t time.Time, tf models.Timeframe) time.Time {
	return t.Truncate(Duration(tf))
}
