package market

import (
	"context"
	"math"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
)

// Component votes with the aggregated market state: trend direction weighted by regime
// confidence, opportunity and trend strength.
type Component struct{}

func NewComponent() *Component { return &Component{} }

func (c *Component) ID() models.ComponentID { return models.ComponentMarket }

func (c *Component) Initialize(context.Context) error { return nil }

func (c *Component) Shutdown(context.Context) error { return nil }

func (c *Component) CurrentSignal(_ context.Context, in service.Input) (models.ComponentSignal, bool) {
	st := in.State
	if !st.IsTradeable {
		return models.ComponentSignal{}, false
	}
	dir := stateDirection(st)
	if dir == models.DirectionNeutral {
		return models.ComponentSignal{}, false
	}
	conf := 0.4*st.RegimeConfidence + 0.3*st.OpportunityScore + 0.3*math.Min(1, math.Abs(st.TrendStrength))
	sig := models.ComponentSignal{
		Component:  models.ComponentMarket,
		Direction:  dir,
		Confidence: clamp(conf, 0, 0.95),
		Quality:    clamp(0.5*st.OpportunityScore+0.5*st.RegimeStability, 0, 1),
		Timestamp:  st.Timestamp,
		Active:     true,
		Source:     st.Regime.String(),
	}
	return sig, sig.IsValid()
}

func stateDirection(st models.MarketStateResult) models.Direction {
	switch st.Regime {
	case models.RegimeBullish:
		return models.DirectionLong
	case models.RegimeBearish:
		return models.DirectionShort
	}
	switch st.TrendDirection {
	case models.TrendUp:
		return models.DirectionLong
	case models.TrendDown:
		return models.DirectionShort
	}
	return models.DirectionNeutral
}

var _ service.Component = (*Component)(nil)
