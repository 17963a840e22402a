package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RegimeType is a discrete classification of current market behaviour.
type RegimeType int

const (
	RegimeTrending RegimeType = iota
	RegimeStrongTrend
	RegimeRanging
	RegimeVolatile
	RegimeHighVolatility
	RegimeLowVolatility
	RegimeBreakout
	RegimeBullish
	RegimeBearish
	RegimeNeutral
	RegimeCalm
	RegimeChoppy
)

// AllRegimes lists every regime in declaration order. Scoring ties resolve to the earlier entry.
var AllRegimes = []RegimeType{
	RegimeTrending,
	RegimeStrongTrend,
	RegimeRanging,
	RegimeVolatile,
	RegimeHighVolatility,
	RegimeLowVolatility,
	RegimeBreakout,
	RegimeBullish,
	RegimeBearish,
	RegimeNeutral,
	RegimeCalm,
	RegimeChoppy,
}

var regimeNames = map[RegimeType]string{
	RegimeTrending:       "trending",
	RegimeStrongTrend:    "strong_trend",
	RegimeRanging:        "ranging",
	RegimeVolatile:       "volatile",
	RegimeHighVolatility: "high_volatility",
	RegimeLowVolatility:  "low_volatility",
	RegimeBreakout:       "breakout",
	RegimeBullish:        "bullish",
	RegimeBearish:        "bearish",
	RegimeNeutral:        "neutral",
	RegimeCalm:           "calm",
	RegimeChoppy:         "choppy",
}

func (r RegimeType) String() string {
	if s, ok := regimeNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRegime converts the textual form back into a RegimeType.
func ParseRegime(s string) (RegimeType, error) {
	for r, name := range regimeNames {
		if name == s {
			return r, nil
		}
	}
	return RegimeNeutral, fmt.Errorf("unknown regime %q", s)
}

func (r RegimeType) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *RegimeType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRegime(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// VolatilityRegime buckets ATR relative to its own recent average.
type VolatilityRegime int

const (
	VolatilityVeryLow VolatilityRegime = iota
	VolatilityLow
	VolatilityNormal
	VolatilityMedium
	VolatilityHigh
	VolatilityVeryHigh
)

func (v VolatilityRegime) String() string {
	switch v {
	case VolatilityVeryLow:
		return "very_low"
	case VolatilityLow:
		return "low"
	case VolatilityNormal:
		return "normal"
	case VolatilityMedium:
		return "medium"
	case VolatilityHigh:
		return "high"
	case VolatilityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

func (v VolatilityRegime) MarshalJSON() ([]byte, error) { return json.Marshal(v.String()) }

// Level collapses the six-step volatility regime into the four-step level used for risk.
func (v VolatilityRegime) Level() VolatilityLevel {
	switch v {
	case VolatilityVeryLow, VolatilityLow:
		return LevelLow
	case VolatilityHigh:
		return LevelHigh
	case VolatilityVeryHigh:
		return LevelExtreme
	default:
		return LevelNormal
	}
}

// VolatilityLevel is the coarse volatility bucket used by risk and quality gates.
type VolatilityLevel int

const (
	LevelLow VolatilityLevel = iota
	LevelNormal
	LevelHigh
	LevelExtreme
)

func (l VolatilityLevel) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelNormal:
		return "normal"
	case LevelHigh:
		return "high"
	case LevelExtreme:
		return "extreme"
	default:
		return "unknown"
	}
}

func (l VolatilityLevel) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

// RegimeInput is one update fed to the regime analyzer.
type RegimeInput struct {
	Timestamp     time.Time
	ADX           float64
	ATR           float64
	Price         float64
	Volume        float64
	AvgVolume     float64
	TrendStrength float64
	RSI           float64 // 0 means "not supplied" and is treated as 50
}

// RegimeSnapshot is an immutable record of one regime classification.
type RegimeSnapshot struct {
	Symbol           string           `json:"symbol"`
	Timestamp        time.Time        `json:"timestamp"`
	Regime           RegimeType       `json:"regime"`
	Candidate        RegimeType       `json:"candidate"`
	VolatilityRegime VolatilityRegime `json:"volatility_regime"`
	ADX              float64          `json:"adx"`
	ATR              float64          `json:"atr"`
	Volatility       float64          `json:"volatility"`
	TrendStrength    float64          `json:"trend_strength"`
	VolumeRatio      float64          `json:"volume_ratio"`
	RSI              float64          `json:"rsi"`
	Confidence       float64          `json:"confidence"`
	Stability        float64          `json:"stability"`
	StabilityCount   int              `json:"stability_count"`
}

// RegimeThresholds are the adaptive ADX/volatility cut-offs currently in force.
type RegimeThresholds struct {
	Trend      float64 `json:"trend"`
	Range      float64 `json:"range"`
	Volatility float64 `json:"volatility"`
	Adaptive   bool    `json:"adaptive"`
}

// RegimeParameters is the trading policy attached to a regime.
type RegimeParameters struct {
	Regime              RegimeType  `json:"regime"`
	SignalThreshold     float64     `json:"signal_threshold"`
	StopATRMultiplier   float64     `json:"stop_atr_multiplier"`
	TargetATRMultiplier float64     `json:"target_atr_multiplier"`
	RiskPercent         float64     `json:"risk_percent"`
	RequireConfirmation bool        `json:"require_confirmation"`
	ConfirmationBars    int         `json:"confirmation_bars"`
	PreferredTimeframes []Timeframe `json:"preferred_timeframes"`
}
