package repository

import (
	"context"
	"time"

	"FKSEngine/internal/domain/models"
)

// BarStream is a live source of indicator bars pushed by the host bridge.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalPublisher ships engine outputs to downstream consumers.
type SignalPublisher interface {
	PublishComposite(ctx context.Context, c *models.CompositeSignal) error
	PublishSetup(ctx context.Context, s *models.TradingSetup) error
	Close() error
}

// Journal is the append-only analysis log.
type Journal interface {
	Init(ctx context.Context) error // ensure tables, health checks
	AppendRegime(ctx context.Context, s models.RegimeSnapshot) error
	AppendComposite(ctx context.Context, c *models.CompositeSignal) error
	AppendMetrics(ctx context.Context, symbol string, at time.Time, m []models.ComponentMetrics) error
	RecentComposites(ctx context.Context, symbol string, limit int) ([]models.CompositeSignal, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// StateCache keeps the latest market state per symbol.
type StateCache interface {
	SaveState(ctx context.Context, s *models.MarketStateResult) error
	LoadState(ctx context.Context, symbol string) (*models.MarketStateResult, error)
}

type Metrics interface {
	RecordBar(symbol string)
	RecordRegimeChange(symbol, from, to string)
	RecordComposite(symbol, direction string)
	RecordSetup(symbol, name string)
	RecordMarketState(symbol string, opportunity, pressure, risk float64)
	RecordComponentMultiplier(symbol, component string, v float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
