package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/logger"
	"FKSEngine/pkg/queue"
)

const (
	JobJournalRegime    = "journal.regime"
	JobJournalComposite = "journal.composite"
	JobJournalMetrics   = "journal.metrics"
)

// Spool parks a payload for a later attempt.
type Spool interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

type metricsBatch struct {
	Symbol  string                    `json:"symbol"`
	At      time.Time                 `json:"at"`
	Metrics []models.ComponentMetrics `json:"metrics"`
}

// SpooledJournal writes through to a journal. A failed append is handed to the spool
// and reported as success; only a failure to spool reaches the caller.
type SpooledJournal struct {
	domrepo.Journal
	spool Spool
	log   *logger.Logger
}

func NewSpooledJournal(j domrepo.Journal, spool Spool, log *logger.Logger) *SpooledJournal {
	if log == nil {
		log = logger.Nop()
	}
	return &SpooledJournal{Journal: j, spool: spool, log: log}
}

func (s *SpooledJournal) AppendRegime(ctx context.Context, snap models.RegimeSnapshot) error {
	if err := s.Journal.AppendRegime(ctx, snap); err != nil {
		return s.park(ctx, JobJournalRegime, snap.Symbol, snap, err)
	}
	return nil
}

func (s *SpooledJournal) AppendComposite(ctx context.Context, c *models.CompositeSignal) error {
	if err := s.Journal.AppendComposite(ctx, c); err != nil {
		if c == nil {
			return err
		}
		return s.park(ctx, JobJournalComposite, c.Symbol, c, err)
	}
	return nil
}

func (s *SpooledJournal) AppendMetrics(ctx context.Context, symbol string, at time.Time, m []models.ComponentMetrics) error {
	if err := s.Journal.AppendMetrics(ctx, symbol, at, m); err != nil {
		return s.park(ctx, JobJournalMetrics, symbol, metricsBatch{Symbol: symbol, At: at, Metrics: m}, err)
	}
	return nil
}

func (s *SpooledJournal) park(ctx context.Context, job, symbol string, payload interface{}, cause error) error {
	if err := s.spool.Enqueue(ctx, job, payload); err != nil {
		return fmt.Errorf("%w (spool: %v)", cause, err)
	}
	s.log.Warn("journal write spooled",
		logger.String("job", job),
		logger.String("symbol", symbol),
		logger.Error(cause))
	return nil
}

// Jobs replay spooled writes straight into the underlying journal.
func (s *SpooledJournal) Jobs() []queue.Job {
	return []queue.Job{
		queue.JobFunc(JobJournalRegime, func(ctx context.Context, raw json.RawMessage) error {
			snap, err := queue.Decode[models.RegimeSnapshot](raw)
			if err != nil {
				return err
			}
			return s.Journal.AppendRegime(ctx, snap)
		}),
		queue.JobFunc(JobJournalComposite, func(ctx context.Context, raw json.RawMessage) error {
			c, err := queue.Decode[models.CompositeSignal](raw)
			if err != nil {
				return err
			}
			return s.Journal.AppendComposite(ctx, &c)
		}),
		queue.JobFunc(JobJournalMetrics, func(ctx context.Context, raw json.RawMessage) error {
			b, err := queue.Decode[metricsBatch](raw)
			if err != nil {
				return err
			}
			return s.Journal.AppendMetrics(ctx, b.Symbol, b.At, b.Metrics)
		}),
	}
}

var _ domrepo.Journal = (*SpooledJournal)(nil)
