package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ComponentID identifies a signal source. Only the IDs below are accepted.
type ComponentID string

const (
	ComponentAI            ComponentID = "fks_ai"
	ComponentVWAP          ComponentID = "fks_vwap"
	ComponentMarket        ComponentID = "fks_market"
	ComponentBreakout      ComponentID = "setup_breakout"
	ComponentBreakdown     ComponentID = "setup_breakdown"
	ComponentVWAPRejection ComponentID = "setup_vwap_rejection"
	ComponentAOSaucer      ComponentID = "setup_ao_saucer"
	ComponentAOZeroCross   ComponentID = "setup_ao_zero_cross"
)

// KnownComponents lists every accepted component with its default base weight.
var KnownComponents = map[ComponentID]float64{
	ComponentAI:            1.0,
	ComponentVWAP:          0.9,
	ComponentMarket:        0.8,
	ComponentBreakout:      0.8,
	ComponentBreakdown:     0.8,
	ComponentVWAPRejection: 0.7,
	ComponentAOSaucer:      0.6,
	ComponentAOZeroCross:   0.6,
}

// ParseComponentID validates a raw component name.
func ParseComponentID(s string) (ComponentID, error) {
	id := ComponentID(s)
	if _, ok := KnownComponents[id]; !ok {
		return "", fmt.Errorf("unknown component %q", s)
	}
	return id, nil
}

// ComponentState is the lifecycle of a component inside the coordinator.
type ComponentState int

const (
	StateUnregistered ComponentState = iota
	StateRegistered
	StateStale
)

func (s ComponentState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateStale:
		return "stale"
	default:
		return "unregistered"
	}
}

func (s ComponentState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Minimum confidence for a component signal to be accepted.
const MinSignalConfidence = 0.3

// ComponentSignal is the latest opinion of one component.
type ComponentSignal struct {
	Component    ComponentID `json:"component"`
	Direction    Direction   `json:"direction"`
	Confidence   float64     `json:"confidence"`
	Quality      float64     `json:"quality"`
	Timestamp    time.Time   `json:"timestamp"`
	RegisteredAt time.Time   `json:"registered_at"`
	Active       bool        `json:"active"`
	Source       string      `json:"source,omitempty"`
	// External marks signals pushed by the host rather than computed by a local component.
	External bool `json:"external,omitempty"`
}

// IsValid requires a side and more than minimal confidence.
func (s ComponentSignal) IsValid() bool {
	return s.Direction != DirectionNeutral && s.Confidence > MinSignalConfidence
}

// IsStale reports whether the signal is older than maxAge at now.
func (s ComponentSignal) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.RegisteredAt) > maxAge
}

// Contribution records one component's part in a composite signal.
type Contribution struct {
	Component       ComponentID `json:"component"`
	Direction       Direction   `json:"direction"`
	Confidence      float64     `json:"confidence"`
	EffectiveWeight float64     `json:"effective_weight"`
}

// CompositeSignal is the consensus across components.
type CompositeSignal struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Direction      Direction      `json:"direction"`
	WeightedScore  float64        `json:"weighted_score"`
	Confidence     float64        `json:"confidence"`
	QualityScore   float64        `json:"quality_score"`
	ComponentCount int            `json:"component_count"`
	Contributions  []Contribution `json:"contributions"`
	Reasons        []string       `json:"reasons"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ComponentMetrics are the running counters kept per component.
type ComponentMetrics struct {
	Component             ComponentID `json:"component"`
	TotalSignals          int64       `json:"total_signals"`
	ValidSignals          int64       `json:"valid_signals"`
	StrongSignals         int64       `json:"strong_signals"`
	Evaluated             int64       `json:"evaluated"`
	CorrectPredictions    int64       `json:"correct_predictions"`
	Accuracy              float64     `json:"accuracy"`
	PerformanceMultiplier float64     `json:"performance_multiplier"`
	AvgProfitFactor       float64     `json:"avg_profit_factor"`
	LastSignalAt          time.Time   `json:"last_signal_at"`
}

// ValidRatio is the share of accepted signals, 0.5 when nothing was seen yet.
func (m ComponentMetrics) ValidRatio() float64 {
	if m.TotalSignals == 0 {
		return 0.5
	}
	return float64(m.ValidSignals) / float64(m.TotalSignals)
}

// ComponentHealth is the per-component line of a health report.
type ComponentHealth struct {
	Component       ComponentID    `json:"component"`
	State           ComponentState `json:"state"`
	Accuracy        float64        `json:"accuracy"`
	Multiplier      float64        `json:"multiplier"`
	EffectiveWeight float64        `json:"effective_weight"`
	TotalSignals    int64          `json:"total_signals"`
	ValidSignals    int64          `json:"valid_signals"`
	LastSignalAge   time.Duration  `json:"last_signal_age"`
}

// HealthReport summarises coordinator state for dashboards.
type HealthReport struct {
	Symbol           string            `json:"symbol"`
	Timestamp        time.Time         `json:"timestamp"`
	ActiveComponents int               `json:"active_components"`
	StaleComponents  int               `json:"stale_components"`
	Consensuses      int64             `json:"consensuses"`
	LastComposite    time.Time         `json:"last_composite"`
	Components       []ComponentHealth `json:"components"`
}
