package usecase

import (
	"errors"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
)

// Ingest applies host component signals and trade outcomes to the engines.
// The Kafka handlers and the HTTP API share it.
type Ingest struct {
	engines *Engines
	metrics domrepo.Metrics
}

func NewIngest(engines *Engines, metrics domrepo.Metrics) *Ingest {
	return &Ingest{engines: engines, metrics: metrics}
}

// SignalResult is the component state after registration and the composite the new
// signal completed, if any.
type SignalResult struct {
	State     models.ComponentState   `json:"state"`
	Composite *models.CompositeSignal `json:"composite,omitempty"`
}

// Signal registers an external component signal and recomputes consensus so a host vote
// can complete a composite between bars.
func (i *Ingest) Signal(req models.SignalRequest) (SignalResult, error) {
	id, sig, err := req.Signal()
	if err != nil {
		i.metrics.RecordError("ingest_signal")
		return SignalResult{State: models.StateUnregistered}, err
	}
	e, err := i.engines.Get(req.Symbol)
	if err != nil {
		return SignalResult{State: models.StateUnregistered}, err
	}
	if err := e.RegisterSignal(id, sig); err != nil {
		i.metrics.RecordError(models.KindOf(err).String())
		return SignalResult{State: e.Coordinator().State(id)}, err
	}

	res := SignalResult{State: e.Coordinator().State(id)}
	comp, err := e.Consensus()
	switch {
	case err == nil:
		res.Composite = comp
		i.metrics.RecordComposite(e.Symbol(), comp.Direction.String())
	case !errors.Is(err, models.ErrNoConsensus):
		i.metrics.RecordError(models.KindOf(err).String())
	}
	return res, nil
}

// Outcome feeds a realised direction back into the engine that emitted the composite.
func (i *Ingest) Outcome(req models.OutcomeRequest) error {
	dir, err := req.Direction()
	if err != nil {
		i.metrics.RecordError("ingest_outcome")
		return err
	}
	e, ok := i.engines.Lookup(req.Symbol)
	if !ok {
		return models.Errorf(models.KindInvalidInput, "ingest.Outcome", "no engine for %s", req.Symbol)
	}
	if err := e.RecordOutcome(req.CompositeID, dir, req.ProfitFactor); err != nil {
		if errors.Is(err, models.ErrOutcomeRecorded) {
			i.metrics.RecordError("outcome_duplicate")
		} else {
			i.metrics.RecordError(models.KindOf(err).String())
		}
		return err
	}
	return nil
}

// Reset clears the market history of symbol's engine; component trust is kept.
func (i *Ingest) Reset(symbol string) error {
	e, ok := i.engines.Lookup(symbol)
	if !ok {
		return models.Errorf(models.KindInsufficientData, "ingest.Reset", "no engine for %s", symbol)
	}
	e.Reset()
	return nil
}
