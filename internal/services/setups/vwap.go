package setups

import (
	"context"
	"math"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
)

// VWAPTrend is the local stand-in for the host's VWAP indicator vote: price and EMA9 on the
// same side of VWAP, with confidence growing with the distance in ATR units.
// Host-supplied fks_vwap signals registered through the API take its place when present.
type VWAPTrend struct{}

func NewVWAPTrend() *VWAPTrend { return &VWAPTrend{} }

func (v *VWAPTrend) ID() models.ComponentID { return models.ComponentVWAP }

func (v *VWAPTrend) Initialize(context.Context) error { return nil }

func (v *VWAPTrend) Shutdown(context.Context) error { return nil }

func (v *VWAPTrend) CurrentSignal(_ context.Context, in service.Input) (models.ComponentSignal, bool) {
	b := in.Bar
	if !validBar(b) || b.VWAP <= 0 {
		return models.ComponentSignal{}, false
	}
	var dir models.Direction
	switch {
	case b.Close > b.VWAP && b.EMA9 > b.VWAP:
		dir = models.DirectionLong
	case b.Close < b.VWAP && b.EMA9 < b.VWAP:
		dir = models.DirectionShort
	default:
		return models.ComponentSignal{}, false
	}

	dist := math.Abs(b.Close-b.VWAP) / b.ATR
	conf := 0.45 + math.Min(0.3, 0.15*dist)
	if (dir == models.DirectionLong && b.AO > 0) || (dir == models.DirectionShort && b.AO < 0) {
		conf += 0.1
	}
	if b.VolumeRatio() >= 1.2 {
		conf += 0.05
	}
	sig := models.ComponentSignal{
		Component:  models.ComponentVWAP,
		Direction:  dir,
		Confidence: clamp(conf, 0, 0.95),
		Quality:    clamp(0.5+0.1*dist, 0, 1),
		Timestamp:  b.Time,
		Active:     true,
		Source:     "vwap_trend",
	}
	return sig, sig.IsValid()
}

var _ service.Component = (*VWAPTrend)(nil)
