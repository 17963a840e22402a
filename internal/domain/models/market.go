package models

import (
	"encoding/json"
	"math"
	"time"
)

// Session is a wall-clock trading session.
type Session int

const (
	SessionAsian Session = iota
	SessionLondonOpen
	SessionLondonSession
	SessionNYOpen
	SessionNYSession
	SessionLondonClose
	SessionNYClose
	SessionWeekend
)

func (s Session) String() string {
	switch s {
	case SessionAsian:
		return "asian"
	case SessionLondonOpen:
		return "london_open"
	case SessionLondonSession:
		return "london_session"
	case SessionNYOpen:
		return "ny_open"
	case SessionNYSession:
		return "ny_session"
	case SessionLondonClose:
		return "london_close"
	case SessionNYClose:
		return "ny_close"
	case SessionWeekend:
		return "weekend"
	default:
		return "unknown"
	}
}

func (s Session) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// IsOpening reports whether the session is one of the two high-liquidity opens.
func (s Session) IsOpening() bool { return s == SessionLondonOpen || s == SessionNYOpen }

// SessionInfo describes where a timestamp sits inside its session window.
type SessionInfo struct {
	Session            Session       `json:"session"`
	Start              time.Time     `json:"start"`
	End                time.Time     `json:"end"`
	Progress           float64       `json:"progress"`
	Remaining          time.Duration `json:"remaining"`
	ExpectedVolatility float64       `json:"expected_volatility"`
	ExpectedVolume     float64       `json:"expected_volume"`
	ExpectedSpread     float64       `json:"expected_spread"`
}

// TrendDirection is a coarse up/down/sideways reading.
type TrendDirection int

const (
	TrendSideways TrendDirection = iota
	TrendUp
	TrendDown
)

func (t TrendDirection) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "sideways"
	}
}

func (t TrendDirection) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// PredictiveInsights are best-effort hints derived from recent market states.
// They are heuristic pattern matches, not forecasts.
type PredictiveInsights struct {
	PressureTrend        TrendDirection `json:"pressure_trend"`
	VolatilityTrend      TrendDirection `json:"volatility_trend"`
	NextRegime           RegimeType     `json:"next_regime"`
	NextRegimeConfidence float64        `json:"next_regime_confidence"`
	EntryWindowOpen      bool           `json:"entry_window_open"`
	Samples              int            `json:"samples"`
}

// MarketStateResult is the aggregate output of one market analysis.
type MarketStateResult struct {
	Symbol           string             `json:"symbol"`
	Timestamp        time.Time          `json:"timestamp"`
	Regime           RegimeType         `json:"regime"`
	RegimeConfidence float64            `json:"regime_confidence"`
	VolatilityRegime VolatilityRegime   `json:"volatility_regime"`
	VolatilityLevel  VolatilityLevel    `json:"volatility_level"`
	Volatility       float64            `json:"volatility"`
	Session          SessionInfo        `json:"session"`
	TrendDirection   TrendDirection     `json:"trend_direction"`
	TrendStrength    float64            `json:"trend_strength"`
	VolumeRatio      float64            `json:"volume_ratio"`
	MarketPressure   float64            `json:"market_pressure"`
	OpportunityScore float64            `json:"opportunity_score"`
	RiskAdjustment   float64            `json:"risk_adjustment"`
	RegimeStability  float64            `json:"regime_stability"`
	TimeInRegime     time.Duration      `json:"time_in_regime"`
	IsHighQuality    bool               `json:"is_high_quality"`
	IsTradeable      bool               `json:"is_tradeable"`
	Parameters       RegimeParameters   `json:"parameters"`
	Insights         PredictiveInsights `json:"insights"`
}

// Bar is the per-update indicator snapshot supplied by the host.
type Bar struct {
	Symbol        string    `json:"symbol"`
	Time          time.Time `json:"time"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	AvgVolume     float64   `json:"avg_volume"`
	ADX           float64   `json:"adx"`
	ATR           float64   `json:"atr"`
	RSI           float64   `json:"rsi"`
	EMA9          float64   `json:"ema9"`
	VWAP          float64   `json:"vwap"`
	AO            float64   `json:"ao"`
	PrevAO        float64   `json:"prev_ao"`
	PrevAO2       float64   `json:"prev_ao2"`
	PrevAO3       float64   `json:"prev_ao3"`
	TrendStrength float64   `json:"trend_strength"`
	Support       float64   `json:"support"`
	Resistance    float64   `json:"resistance"`
}

// VolumeRatio returns volume over its average, or 1 when the average is unknown.
func (b Bar) VolumeRatio() float64 {
	if b.AvgVolume <= 0 || !finite(b.Volume) || !finite(b.AvgVolume) {
		return 1
	}
	return b.Volume / b.AvgVolume
}

// RegimeInput projects the bar onto the regime analyzer input.
func (b Bar) RegimeInput() RegimeInput {
	return RegimeInput{
		Timestamp:     b.Time,
		ADX:           b.ADX,
		ATR:           b.ATR,
		Price:         b.Close,
		Volume:        b.Volume,
		AvgVolume:     b.AvgVolume,
		TrendStrength: b.TrendStrength,
		RSI:           b.RSI,
	}
}

// MarketProfile carries the per-instrument constants the engine needs.
type MarketProfile struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	TickSize   float64 `json:"tick_size" yaml:"tick_size"`
	VeryHigh   float64 `json:"very_high" yaml:"very_high"`
	High       float64 `json:"high" yaml:"high"`
	Medium     float64 `json:"medium" yaml:"medium"`
	Low        float64 `json:"low" yaml:"low"`
	VeryLow    float64 `json:"very_low" yaml:"very_low"`
	MaxRiskPct float64 `json:"max_risk_pct" yaml:"max_risk_pct"`
}

// DefaultProfile is used for symbols without a configured profile.
func DefaultProfile(symbol string) MarketProfile {
	return MarketProfile{
		Symbol:     symbol,
		TickSize:   0.01,
		VeryHigh:   2.0,
		High:       1.5,
		Medium:     1.2,
		Low:        0.7,
		VeryLow:    0.5,
		MaxRiskPct: 2.5,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
