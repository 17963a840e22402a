package service

import (
	"context"

	"FKSEngine/internal/domain/models"
)

// Component is a signal source plugged into a symbol engine.
// CurrentSignal returns false when the component has no opinion this cycle.
type Component interface {
	ID() models.ComponentID
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	CurrentSignal(ctx context.Context, in Input) (models.ComponentSignal, bool)
}

// Input is what an engine hands to each component on every bar.
type Input struct {
	Bar   models.Bar
	State models.MarketStateResult
}
