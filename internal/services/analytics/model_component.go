package analytics

import (
	"context"
	"math"
	"sync"
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/domain/service"
	"FKSEngine/pkg/config"
	"FKSEngine/pkg/logger"
)

type modelRequest struct {
	Symbol           string  `json:"symbol"`
	Time             int64   `json:"time"`
	Close            float64 `json:"close"`
	ADX              float64 `json:"adx"`
	ATR              float64 `json:"atr"`
	RSI              float64 `json:"rsi"`
	EMA9             float64 `json:"ema9"`
	VWAP             float64 `json:"vwap"`
	AO               float64 `json:"ao"`
	VolumeRatio      float64 `json:"volume_ratio"`
	Regime           string  `json:"regime"`
	Session          string  `json:"session"`
	MarketPressure   float64 `json:"market_pressure"`
	OpportunityScore float64 `json:"opportunity_score"`
}

type modelResponse struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
	Model      string  `json:"model"`
}

// ModelComponent asks a remote model service for the fks_ai vote.
// Answers are reused for PollInterval of bar time so the service is not hit on every bar.
type ModelComponent struct {
	base     *HTTPServiceBase
	interval time.Duration
	log      *logger.Logger

	mu    sync.Mutex
	cache map[string]models.ComponentSignal
}

func NewModelComponent(cfg config.Analytics, log *logger.Logger) *ModelComponent {
	if log == nil {
		log = logger.Nop()
	}
	return &ModelComponent{
		base:     NewHTTPServiceBase("fks_ai", cfg),
		interval: cfg.PollInterval,
		log:      log,
		cache:    make(map[string]models.ComponentSignal),
	}
}

func (m *ModelComponent) ID() models.ComponentID { return models.ComponentAI }

func (m *ModelComponent) Initialize(context.Context) error { return nil }

func (m *ModelComponent) Shutdown(context.Context) error { return nil }

func (m *ModelComponent) CurrentSignal(ctx context.Context, in service.Input) (models.ComponentSignal, bool) {
	b := in.Bar
	m.mu.Lock()
	if sig, ok := m.cache[b.Symbol]; ok && !b.Time.Before(sig.Timestamp) && b.Time.Sub(sig.Timestamp) < m.interval {
		m.mu.Unlock()
		return sig, sig.IsValid()
	}
	m.mu.Unlock()

	var resp modelResponse
	err := m.base.PostJSONWithRetry(ctx, "/signal", modelRequest{
		Symbol:           b.Symbol,
		Time:             b.Time.Unix(),
		Close:            b.Close,
		ADX:              b.ADX,
		ATR:              b.ATR,
		RSI:              b.RSI,
		EMA9:             b.EMA9,
		VWAP:             b.VWAP,
		AO:               b.AO,
		VolumeRatio:      b.VolumeRatio(),
		Regime:           in.State.Regime.String(),
		Session:          in.State.Session.Session.String(),
		MarketPressure:   in.State.MarketPressure,
		OpportunityScore: in.State.OpportunityScore,
	}, &resp, 2)
	if err != nil {
		m.log.Warn("model signal unavailable",
			logger.String("symbol", b.Symbol),
			logger.String("breaker", m.base.State().String()),
			logger.Error(err),
		)
		return models.ComponentSignal{}, false
	}

	dir, err := models.ParseDirection(resp.Direction)
	if err != nil || math.IsNaN(resp.Confidence) {
		m.log.Warn("model returned an unusable signal",
			logger.String("symbol", b.Symbol),
			logger.String("direction", resp.Direction),
		)
		return models.ComponentSignal{}, false
	}
	sig := models.ComponentSignal{
		Component:  models.ComponentAI,
		Direction:  dir,
		Confidence: math.Max(0, math.Min(1, resp.Confidence)),
		Quality:    math.Max(0, math.Min(1, resp.Quality)),
		Timestamp:  b.Time,
		Active:     true,
		Source:     resp.Model,
	}

	m.mu.Lock()
	m.cache[b.Symbol] = sig
	m.mu.Unlock()
	return sig, sig.IsValid()
}

var _ service.Component = (*ModelComponent)(nil)
