package usecase

import (
	"context"
	"fmt"
	"time"

	"FKSEngine/internal/domain/models"
	drepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/logger"
)

// BarProcessor runs bars through the engines and fans the results out to the sinks.
// Publisher, journal and cache are optional.
type BarProcessor struct {
	engines *Engines
	pub     drepo.SignalPublisher
	journal drepo.Journal
	cache   drepo.StateCache
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewBarProcessor creates a new BarProcessor instance.
func NewBarProcessor(
	engines *Engines,
	pub drepo.SignalPublisher,
	journal drepo.Journal,
	cache drepo.StateCache,
	metrics drepo.Metrics,
	log *logger.Logger,
) *BarProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &BarProcessor{
		engines: engines,
		pub:     pub,
		journal: journal,
		cache:   cache,
		metrics: metrics,
		log:     log,
	}
}

// Process satisfies the pipeline processor contract.
func (p *BarProcessor) Process(ctx context.Context, b *models.Bar) error {
	_, err := p.ProcessBar(ctx, b)
	return err
}

// ProcessBar analyses one bar. Sink failures are logged and counted but do not fail the bar,
// so a retry never analyses the same bar twice.
func (p *BarProcessor) ProcessBar(ctx context.Context, b *models.Bar) (Output, error) {
	if b == nil {
		return Output{}, models.Errorf(models.KindInvalidInput, "processor.Process", "bar is nil")
	}
	start := time.Now()

	out, err := p.engines.Process(ctx, *b)
	p.metrics.RecordBar(b.Symbol)
	if err != nil {
		p.metrics.RecordError(models.KindOf(err).String())
		return out, fmt.Errorf("process bar: %w", err)
	}

	st := out.State
	p.metrics.RecordMarketState(out.Symbol, st.OpportunityScore, st.MarketPressure, st.RiskAdjustment)
	if out.RegimeChanged {
		p.metrics.RecordRegimeChange(out.Symbol, out.PrevRegime.String(), out.Snapshot.Regime.String())
		p.log.Info("regime changed",
			logger.String("symbol", out.Symbol),
			logger.String("from", out.PrevRegime.String()),
			logger.String("to", out.Snapshot.Regime.String()),
			logger.Float64("confidence", out.Snapshot.Confidence),
		)
	}

	if p.cache != nil {
		if err := p.cache.SaveState(ctx, &st); err != nil {
			p.sinkError("cache_state", out.Symbol, err)
		}
	}
	if p.journal != nil {
		if err := p.journal.AppendRegime(ctx, out.Snapshot); err != nil {
			p.sinkError("journal_regime", out.Symbol, err)
		}
	}
	if c := out.Composite; c != nil {
		p.metrics.RecordComposite(c.Symbol, c.Direction.String())
		if p.pub != nil {
			if err := p.pub.PublishComposite(ctx, c); err != nil {
				p.sinkError("publish_composite", out.Symbol, err)
			}
		}
		if p.journal != nil {
			if err := p.journal.AppendComposite(ctx, c); err != nil {
				p.sinkError("journal_composite", out.Symbol, err)
			}
		}
	}
	if s := out.Setup; s != nil {
		p.metrics.RecordSetup(out.Symbol, s.Name)
		if p.pub != nil {
			if err := p.pub.PublishSetup(ctx, s); err != nil {
				p.sinkError("publish_setup", out.Symbol, err)
			}
		}
	}

	p.metrics.RecordLatency("process_bar", time.Since(start).Seconds())
	return out, nil
}

// ProcessBatch processes bars in order and returns the first error.
func (p *BarProcessor) ProcessBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	var first error
	for _, b := range bars {
		if err := p.Process(ctx, b); err != nil && first == nil {
			first = err
		}
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return first
}

func (p *BarProcessor) sinkError(op, symbol string, err error) {
	p.metrics.RecordError(op)
	p.log.Warn("sink failed",
		logger.String("op", op),
		logger.String("symbol", symbol),
		logger.Error(err),
	)
}

// Engines exposes the registry for the API layer.
func (p *BarProcessor) Engines() *Engines { return p.engines }

// Close closes underlying resources if available.
func (p *BarProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.journal != nil {
		_ = p.journal.Close()
	}
}
