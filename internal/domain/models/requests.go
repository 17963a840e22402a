package models

import "time"

// SignalRequest carries a host component's signal, from HTTP or the signals topic.
type SignalRequest struct {
	Symbol     string    `json:"symbol" validate:"required,max=32"`
	Component  string    `json:"component" validate:"required"`
	Direction  string    `json:"direction" validate:"required,oneof=long short buy sell"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	Quality    float64   `json:"quality" default:"0.5" validate:"gte=0,lte=1"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source" validate:"max=64"`
}

// Signal converts the request into a typed component signal.
func (r SignalRequest) Signal() (ComponentID, ComponentSignal, error) {
	id, err := ParseComponentID(r.Component)
	if err != nil {
		return "", ComponentSignal{}, Errorf(KindInvalidInput, "SignalRequest", "%v", err)
	}
	dir, err := ParseDirection(r.Direction)
	if err != nil {
		return "", ComponentSignal{}, Errorf(KindInvalidInput, "SignalRequest", "%v", err)
	}
	return id, ComponentSignal{
		Component:  id,
		Direction:  dir,
		Confidence: r.Confidence,
		Quality:    r.Quality,
		Timestamp:  r.Timestamp,
		Source:     r.Source,
	}, nil
}

// OutcomeRequest reports how a composite signal played out.
type OutcomeRequest struct {
	Symbol       string  `json:"symbol" validate:"required,max=32"`
	CompositeID  string  `json:"composite_id" validate:"required"`
	Actual       string  `json:"actual" validate:"required,oneof=long short buy sell"`
	ProfitFactor float64 `json:"profit_factor" validate:"gte=0"`
}

func (r OutcomeRequest) Direction() (Direction, error) {
	d, err := ParseDirection(r.Actual)
	if err != nil {
		return DirectionNeutral, Errorf(KindInvalidInput, "OutcomeRequest", "%v", err)
	}
	if d == DirectionNeutral {
		return d, Errorf(KindInvalidInput, "OutcomeRequest", "actual direction must be long or short")
	}
	return d, nil
}

// BarRequest is the HTTP form of a bar.
type BarRequest struct {
	Bar
	Symbol string    `json:"symbol" validate:"required,max=32"`
	Time   time.Time `json:"time" validate:"required"`
	Close  float64   `json:"close" validate:"gt=0"`
	ATR    float64   `json:"atr" validate:"gte=0"`
	Volume float64   `json:"volume" validate:"gte=0"`
}

// ToBar merges the validated fields back into the bar.
func (r BarRequest) ToBar() Bar {
	b := r.Bar
	b.Symbol, b.Time, b.Close, b.ATR, b.Volume = r.Symbol, r.Time, r.Close, r.ATR, r.Volume
	return b
}

// StateQuery selects a symbol for read endpoints.
type StateQuery struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

// ResetRequest clears the market history of one engine.
type ResetRequest struct {
	Symbol string `json:"symbol" validate:"required,max=32"`
}

// HealthQuery selects one symbol, or every engine when Symbol is empty.
type HealthQuery struct {
	Symbol string `query:"symbol" validate:"omitempty,max=32"`
}
