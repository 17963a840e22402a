package regime

import "FKSEngine/internal/domain/models"

type adxTier int

const (
	adxStrong adxTier = iota
	adxTrending
	adxModerate
	adxWeak
)

type volTier int

const (
	volExtreme volTier = iota
	volHigh
	volNormal
	volLow
)

type trendTier int

const (
	trendStrong trendTier = iota
	trendModerate
	trendMild
	trendWeak
)

type volumeTier int

const (
	volumeHigh volumeTier = iota
	volumeNormal
	volumeLow
)

type rsiTier int

const (
	rsiBull rsiTier = iota
	rsiBear
	rsiFlat
)

// tiers is the discretised view of one input sample.
type tiers struct {
	adx    adxTier
	vol    volTier
	trend  trendTier
	volume volumeTier
	rsi    rsiTier
}

func classify(adx, volatility, trendStrength, volumeRatio, rsiNorm float64, th models.RegimeThresholds) tiers {
	var t tiers
	switch {
	case adx >= th.Trend+10:
		t.adx = adxStrong
	case adx >= th.Trend:
		t.adx = adxTrending
	case adx <= th.Range:
		t.adx = adxWeak
	default:
		t.adx = adxModerate
	}

	vt := th.Volatility
	switch {
	case volatility >= 2*vt:
		t.vol = volExtreme
	case volatility >= vt:
		t.vol = volHigh
	case volatility < 0.5*vt:
		t.vol = volLow
	default:
		t.vol = volNormal
	}

	ts := abs(trendStrength)
	switch {
	case ts >= 0.7:
		t.trend = trendStrong
	case ts >= 0.4:
		t.trend = trendModerate
	case ts < 0.2:
		t.trend = trendWeak
	default:
		t.trend = trendMild
	}

	switch {
	case volumeRatio >= 1.5:
		t.volume = volumeHigh
	case volumeRatio <= 0.7:
		t.volume = volumeLow
	default:
		t.volume = volumeNormal
	}

	switch {
	case rsiNorm > 0.2:
		t.rsi = rsiBull
	case rsiNorm < -0.2:
		t.rsi = rsiBear
	default:
		t.rsi = rsiFlat
	}
	return t
}

// Factor weights.
const (
	weightADX    = 0.40
	weightVol    = 0.25
	weightTrend  = 0.20
	weightVolume = 0.10
	weightRSI    = 0.05
)

// affinity rows: how well each tier matches a regime, in [0,1].
type affinity struct {
	adx    [4]float64 // strong, trending, moderate, weak
	vol    [4]float64 // extreme, high, normal, low
	trend  [4]float64 // strong, moderate, mild, weak
	volume [3]float64 // high, normal, low
	rsi    [3]float64 // bull, bear, flat
}

var affinities = map[models.RegimeType]affinity{
	models.RegimeTrending: {
		adx: [4]float64{0.6, 1.0, 0.4, 0}, vol: [4]float64{0.2, 0.6, 1.0, 0.5},
		trend: [4]float64{0.7, 1.0, 0.4, 0}, volume: [3]float64{0.8, 1.0, 0.3}, rsi: [3]float64{0.5, 0.5, 0.5},
	},
	models.RegimeStrongTrend: {
		adx: [4]float64{1.0, 0.5, 0.1, 0}, vol: [4]float64{0.3, 0.8, 0.8, 0.3},
		trend: [4]float64{1.0, 0.6, 0.1, 0}, volume: [3]float64{1.0, 0.6, 0.2}, rsi: [3]float64{0.6, 0.6, 0.2},
	},
	models.RegimeRanging: {
		adx: [4]float64{0, 0.1, 0.6, 1.0}, vol: [4]float64{0, 0.2, 0.8, 1.0},
		trend: [4]float64{0, 0.1, 0.5, 1.0}, volume: [3]float64{0.2, 0.8, 1.0}, rsi: [3]float64{0.2, 0.2, 1.0},
	},
	models.RegimeVolatile: {
		adx: [4]float64{0.2, 0.3, 0.6, 0.5}, vol: [4]float64{1.0, 0.9, 0.2, 0},
		trend: [4]float64{0.2, 0.3, 0.5, 0.5}, volume: [3]float64{1.0, 0.6, 0.1}, rsi: [3]float64{0.4, 0.4, 0.6},
	},
	models.RegimeHighVolatility: {
		adx: [4]float64{0.3, 0.3, 0.4, 0.3}, vol: [4]float64{0.8, 1.0, 0.3, 0},
		trend: [4]float64{0.3, 0.4, 0.4, 0.3}, volume: [3]float64{0.8, 0.7, 0.2}, rsi: [3]float64{0.4, 0.4, 0.5},
	},
	models.RegimeLowVolatility: {
		adx: [4]float64{0, 0.2, 0.6, 0.9}, vol: [4]float64{0, 0, 0.4, 1.0},
		trend: [4]float64{0.1, 0.2, 0.5, 0.8}, volume: [3]float64{0, 0.4, 1.0}, rsi: [3]float64{0.3, 0.3, 0.8},
	},
	models.RegimeBreakout: {
		adx: [4]float64{0.5, 0.8, 0.4, 0.1}, vol: [4]float64{0.6, 1.0, 0.4, 0},
		trend: [4]float64{0.6, 0.8, 0.4, 0.1}, volume: [3]float64{1.0, 0.4, 0}, rsi: [3]float64{0.6, 0.6, 0.2},
	},
	models.RegimeBullish: {
		adx: [4]float64{0.4, 0.7, 0.6, 0.2}, vol: [4]float64{0.1, 0.4, 0.8, 0.6},
		trend: [4]float64{0.3, 0.5, 0.6, 0.4}, volume: [3]float64{0.6, 0.8, 0.5}, rsi: [3]float64{1.0, 0, 0.3},
	},
	models.RegimeBearish: {
		adx: [4]float64{0.4, 0.7, 0.6, 0.2}, vol: [4]float64{0.1, 0.4, 0.8, 0.6},
		trend: [4]float64{0.3, 0.5, 0.6, 0.4}, volume: [3]float64{0.6, 0.8, 0.5}, rsi: [3]float64{0, 1.0, 0.3},
	},
	models.RegimeNeutral: {
		adx: [4]float64{0.1, 0.3, 0.8, 0.6}, vol: [4]float64{0.1, 0.3, 0.8, 0.6},
		trend: [4]float64{0, 0.2, 0.7, 0.8}, volume: [3]float64{0.3, 0.9, 0.6}, rsi: [3]float64{0.3, 0.3, 1.0},
	},
	models.RegimeCalm: {
		adx: [4]float64{0, 0.1, 0.5, 0.8}, vol: [4]float64{0, 0, 0.5, 1.0},
		trend: [4]float64{0, 0.1, 0.5, 0.9}, volume: [3]float64{0, 0.5, 1.0}, rsi: [3]float64{0.2, 0.2, 1.0},
	},
	models.RegimeChoppy: {
		adx: [4]float64{0, 0.1, 0.7, 0.9}, vol: [4]float64{0.4, 0.8, 0.5, 0.1},
		trend: [4]float64{0, 0.1, 0.4, 1.0}, volume: [3]float64{0.5, 0.7, 0.4}, rsi: [3]float64{0.3, 0.3, 0.8},
	},
}

func (a affinity) score(t tiers) float64 {
	return weightADX*a.adx[t.adx] +
		weightVol*a.vol[t.vol] +
		weightTrend*a.trend[t.trend] +
		weightVolume*a.volume[t.volume] +
		weightRSI*a.rsi[t.rsi]
}

// bestRegime returns the highest scoring regime; ties go to the earlier one in AllRegimes.
func bestRegime(t tiers) (models.RegimeType, float64) {
	best, bestScore := models.RegimeNeutral, -1.0
	for _, r := range models.AllRegimes {
		if s := affinities[r].score(t); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, bestScore
}

// confidenceFor measures how far the sample sits past the regime's characteristic threshold.
func confidenceFor(r models.RegimeType, adx, volatility, volumeRatio, rsiNorm float64, th models.RegimeThresholds) float64 {
	var c float64
	switch r {
	case models.RegimeTrending:
		c = 0.5 + (adx-th.Trend)/th.Trend
	case models.RegimeStrongTrend:
		c = 0.6 + (adx-(th.Trend+10))/20
	case models.RegimeRanging, models.RegimeChoppy:
		c = 0.5 + (th.Range-adx)/th.Range
	case models.RegimeVolatile, models.RegimeHighVolatility:
		c = 0.5 + 0.5*(volatility-th.Volatility)/th.Volatility
	case models.RegimeLowVolatility, models.RegimeCalm:
		half := 0.5 * th.Volatility
		c = 0.5 + 0.5*(half-volatility)/half
	case models.RegimeBreakout:
		c = 0.5 + (volumeRatio-1.5)/1.5
	case models.RegimeBullish:
		c = 0.5 + 0.5*rsiNorm
	case models.RegimeBearish:
		c = 0.5 - 0.5*rsiNorm
	default:
		c = 0.5 - 0.5*abs(rsiNorm)
	}
	return clamp(c, 0.1, 0.95)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
