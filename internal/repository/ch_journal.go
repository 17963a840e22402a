package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
	pkgch "FKSEngine/pkg/clickhouse"
	"FKSEngine/pkg/logger"
)

// Schema is the idempotent DDL of the analysis journal.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS regime_snapshots (
		symbol            LowCardinality(String),
		ts                DateTime64(3, 'UTC'),
		regime            LowCardinality(String),
		candidate         LowCardinality(String),
		volatility_regime LowCardinality(String),
		adx               Float64,
		atr               Float64,
		volatility        Float64,
		trend_strength    Float64,
		volume_ratio      Float64,
		rsi               Float64,
		confidence        Float64,
		stability         Float64,
		stability_count   UInt32
	) ENGINE = MergeTree ORDER BY (symbol, ts) TTL toDateTime(ts) + INTERVAL 90 DAY`,
	`CREATE TABLE IF NOT EXISTS composite_signals (
		id              String,
		symbol          LowCardinality(String),
		ts              DateTime64(3, 'UTC'),
		direction       LowCardinality(String),
		weighted_score  Float64,
		confidence      Float64,
		quality_score   Float64,
		component_count UInt16,
		contributions   String,
		reasons         String
	) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts, id)`,
	`CREATE TABLE IF NOT EXISTS component_metrics (
		symbol          LowCardinality(String),
		ts              DateTime64(3, 'UTC'),
		component       LowCardinality(String),
		total_signals   Int64,
		valid_signals   Int64,
		strong_signals  Int64,
		evaluated       Int64,
		correct         Int64,
		accuracy        Float64,
		multiplier      Float64,
		avg_profit      Float64
	) ENGINE = MergeTree ORDER BY (symbol, component, ts)`,
}

type regimeRow struct {
	Symbol           string    `db:"symbol"`
	Timestamp        time.Time `db:"ts"`
	Regime           string    `db:"regime"`
	Candidate        string    `db:"candidate"`
	VolatilityRegime string    `db:"volatility_regime"`
	ADX              float64   `db:"adx"`
	ATR              float64   `db:"atr"`
	Volatility       float64   `db:"volatility"`
	TrendStrength    float64   `db:"trend_strength"`
	VolumeRatio      float64   `db:"volume_ratio"`
	RSI              float64   `db:"rsi"`
	Confidence       float64   `db:"confidence"`
	Stability        float64   `db:"stability"`
	StabilityCount   uint32    `db:"stability_count"`
}

type compositeRow struct {
	ID             string    `db:"id"`
	Symbol         string    `db:"symbol"`
	Timestamp      time.Time `db:"ts"`
	Direction      string    `db:"direction"`
	WeightedScore  float64   `db:"weighted_score"`
	Confidence     float64   `db:"confidence"`
	QualityScore   float64   `db:"quality_score"`
	ComponentCount uint16    `db:"component_count"`
	Contributions  string    `db:"contributions"`
	Reasons        string    `db:"reasons"`
}

type metricsRow struct {
	Symbol     string    `db:"symbol"`
	Timestamp  time.Time `db:"ts"`
	Component  string    `db:"component"`
	Total      int64     `db:"total_signals"`
	Valid      int64     `db:"valid_signals"`
	Strong     int64     `db:"strong_signals"`
	Evaluated  int64     `db:"evaluated"`
	Correct    int64     `db:"correct"`
	Accuracy   float64   `db:"accuracy"`
	Multiplier float64   `db:"multiplier"`
	AvgProfit  float64   `db:"avg_profit"`
}

const (
	insertRegime = `INSERT INTO regime_snapshots
		(symbol, ts, regime, candidate, volatility_regime, adx, atr, volatility, trend_strength,
		 volume_ratio, rsi, confidence, stability, stability_count)
		VALUES (:symbol, :ts, :regime, :candidate, :volatility_regime, :adx, :atr, :volatility, :trend_strength,
		 :volume_ratio, :rsi, :confidence, :stability, :stability_count)`

	insertComposite = `INSERT INTO composite_signals
		(id, symbol, ts, direction, weighted_score, confidence, quality_score, component_count, contributions, reasons)
		VALUES (:id, :symbol, :ts, :direction, :weighted_score, :confidence, :quality_score, :component_count, :contributions, :reasons)`

	insertMetrics = `INSERT INTO component_metrics
		(symbol, ts, component, total_signals, valid_signals, strong_signals, evaluated, correct, accuracy, multiplier, avg_profit)
		VALUES (:symbol, :ts, :component, :total_signals, :valid_signals, :strong_signals, :evaluated, :correct, :accuracy, :multiplier, :avg_profit)`

	selectComposites = `SELECT id, symbol, ts, direction, weighted_score, confidence, quality_score,
		component_count, contributions, reasons
		FROM composite_signals
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?`
)

// CHJournal is the ClickHouse-backed analysis journal.
type CHJournal struct {
	db      *sqlx.DB
	timeout time.Duration
	log     *logger.Logger
}

func NewCHJournal(db *sqlx.DB, timeout time.Duration, log *logger.Logger) *CHJournal {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CHJournal{db: db, timeout: timeout, log: log.With(logger.String("component", "ch_journal"))}
}

func (j *CHJournal) Init(ctx context.Context) error {
	if err := pkgch.InitSchema(ctx, j.db, Schema); err != nil {
		return err
	}
	j.log.Info("journal schema ready", logger.Int("tables", len(Schema)))
	return nil
}

func (j *CHJournal) AppendRegime(ctx context.Context, s models.RegimeSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	row := regimeRow{
		Symbol:           s.Symbol,
		Timestamp:        s.Timestamp.UTC(),
		Regime:           s.Regime.String(),
		Candidate:        s.Candidate.String(),
		VolatilityRegime: s.VolatilityRegime.String(),
		ADX:              s.ADX,
		ATR:              s.ATR,
		Volatility:       s.Volatility,
		TrendStrength:    s.TrendStrength,
		VolumeRatio:      s.VolumeRatio,
		RSI:              s.RSI,
		Confidence:       s.Confidence,
		Stability:        s.Stability,
		StabilityCount:   uint32(max(s.StabilityCount, 0)),
	}
	if _, err := j.db.NamedExecContext(ctx, insertRegime, row); err != nil {
		return fmt.Errorf("append regime %s: %w", s.Symbol, err)
	}
	return nil
}

func (j *CHJournal) AppendComposite(ctx context.Context, c *models.CompositeSignal) error {
	if c == nil {
		return nil
	}
	row, err := toCompositeRow(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if _, err := j.db.NamedExecContext(ctx, insertComposite, row); err != nil {
		return fmt.Errorf("append composite %s: %w", c.ID, err)
	}
	return nil
}

// AppendMetrics writes one row per component in a single batch insert.
func (j *CHJournal) AppendMetrics(ctx context.Context, symbol string, at time.Time, ms []models.ComponentMetrics) error {
	if len(ms) == 0 {
		return nil
	}
	rows := make([]metricsRow, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, metricsRow{
			Symbol:     symbol,
			Timestamp:  at.UTC(),
			Component:  string(m.Component),
			Total:      m.TotalSignals,
			Valid:      m.ValidSignals,
			Strong:     m.StrongSignals,
			Evaluated:  m.Evaluated,
			Correct:    m.CorrectPredictions,
			Accuracy:   m.Accuracy,
			Multiplier: m.PerformanceMultiplier,
			AvgProfit:  m.AvgProfitFactor,
		})
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if _, err := j.db.NamedExecContext(ctx, insertMetrics, rows); err != nil {
		return fmt.Errorf("append metrics %s: %w", symbol, err)
	}
	return nil
}

// RecentComposites returns the newest composites of symbol, newest first.
func (j *CHJournal) RecentComposites(ctx context.Context, symbol string, limit int) ([]models.CompositeSignal, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	start := time.Now()

	var rows []compositeRow
	if err := j.db.SelectContext(ctx, &rows, selectComposites, symbol, limit); err != nil {
		j.log.Error("recent composites query failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("recent composites: %w", err)
	}
	out := make([]models.CompositeSignal, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel()
		if err != nil {
			j.log.Warn("skipping undecodable composite", logger.String("id", r.ID), logger.Error(err))
			continue
		}
		out = append(out, c)
	}
	j.log.Debug("recent composites",
		logger.String("symbol", symbol),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (j *CHJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the ClickHouse client.
func (j *CHJournal) Close() error { return nil }

func toCompositeRow(c *models.CompositeSignal) (compositeRow, error) {
	contrib, err := json.Marshal(c.Contributions)
	if err != nil {
		return compositeRow{}, fmt.Errorf("encode contributions: %w", err)
	}
	reasons, err := json.Marshal(c.Reasons)
	if err != nil {
		return compositeRow{}, fmt.Errorf("encode reasons: %w", err)
	}
	return compositeRow{
		ID:             c.ID,
		Symbol:         c.Symbol,
		Timestamp:      c.Timestamp.UTC(),
		Direction:      c.Direction.String(),
		WeightedScore:  c.WeightedScore,
		Confidence:     c.Confidence,
		QualityScore:   c.QualityScore,
		ComponentCount: uint16(c.ComponentCount),
		Contributions:  string(contrib),
		Reasons:        string(reasons),
	}, nil
}

func (r compositeRow) toModel() (models.CompositeSignal, error) {
	dir, err := models.ParseDirection(r.Direction)
	if err != nil {
		return models.CompositeSignal{}, err
	}
	c := models.CompositeSignal{
		ID:             r.ID,
		Symbol:         r.Symbol,
		Timestamp:      r.Timestamp,
		Direction:      dir,
		WeightedScore:  r.WeightedScore,
		Confidence:     r.Confidence,
		QualityScore:   r.QualityScore,
		ComponentCount: int(r.ComponentCount),
	}
	if r.Contributions != "" {
		if err := json.Unmarshal([]byte(r.Contributions), &c.Contributions); err != nil {
			return c, fmt.Errorf("decode contributions: %w", err)
		}
	}
	if r.Reasons != "" {
		if err := json.Unmarshal([]byte(r.Reasons), &c.Reasons); err != nil {
			return c, fmt.Errorf("decode reasons: %w", err)
		}
	}
	return c, nil
}

var _ domrepo.Journal = (*CHJournal)(nil)
