package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the side of a trade idea.
type Direction int

const (
	DirectionNeutral Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "neutral"
	}
}

// ParseDirection accepts long/short/neutral (and buy/sell aliases).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long", "buy":
		return DirectionLong, nil
	case "short", "sell":
		return DirectionShort, nil
	case "neutral", "":
		return DirectionNeutral, nil
	default:
		return DirectionNeutral, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// TradingSetup is a scored candidate produced by a setup detector.
type TradingSetup struct {
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	Direction       Direction       `json:"direction"`
	Confidence      float64         `json:"confidence"`
	Entry           float64         `json:"entry"`
	Stop            float64         `json:"stop"`
	Target          float64         `json:"target"`
	RiskPercent     float64         `json:"risk_percent"`
	RewardRisk      float64         `json:"reward_risk"`
	Reasons         []string        `json:"reasons"`
	Checks          map[string]bool `json:"checks"`
	Confirmations   int             `json:"confirmations"`
	QualityScore    float64         `json:"quality_score"`
	MarketCondition RegimeType      `json:"market_condition"`
	Timestamp       time.Time       `json:"timestamp"`
	IsValid         bool            `json:"is_valid"`
}
