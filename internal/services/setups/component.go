package setups

import (
	"context"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
)

// Component exposes one detector as a consensus component.
type Component struct {
	named   Named
	profile models.MarketProfile
}

// NewComponents wraps every detector for the given market profile.
func NewComponents(profile models.MarketProfile) []service.Component {
	out := make([]service.Component, 0, len(Detectors))
	for _, d := range Detectors {
		out = append(out, &Component{named: d, profile: profile})
	}
	return out
}

func (c *Component) ID() models.ComponentID { return c.named.ID }

func (c *Component) Initialize(context.Context) error { return nil }

func (c *Component) Shutdown(context.Context) error { return nil }

// CurrentSignal runs the detector on the bar and reports only valid setups.
func (c *Component) CurrentSignal(_ context.Context, in service.Input) (models.ComponentSignal, bool) {
	s := c.named.Detect(in.Bar, ContextFor(c.profile, in.State))
	if !s.IsValid {
		return models.ComponentSignal{}, false
	}
	return models.ComponentSignal{
		Component:  c.named.ID,
		Direction:  s.Direction,
		Confidence: s.Confidence,
		Quality:    s.QualityScore,
		Timestamp:  s.Timestamp,
		Active:     true,
		Source:     s.Name,
	}, true
}

// ContextFor builds a detector context from a profile and the current market state.
func ContextFor(p models.MarketProfile, st models.MarketStateResult) Context {
	ctx := DefaultContext(p.Symbol)
	ctx.Session = st.Session.Session
	ctx.Regime = st.Regime
	if p.TickSize > 0 {
		ctx.TickSize = p.TickSize
	}
	if p.MaxRiskPct > 0 {
		ctx.MaxRiskPct = p.MaxRiskPct
	}
	return ctx
}

var _ service.Component = (*Component)(nil)
