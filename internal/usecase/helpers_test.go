package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FKSEngine/internal/domain/models"
	domsvc "FKSEngine/internal/domain/service"
	"FKSEngine/internal/services/session"
)

// Tuesday 13:30 UTC, inside the NY open window.
var nyOpen = time.Date(2025, 3, 4, 13, 30, 0, 0, time.UTC)

func trendBar(sym string, ts time.Time) models.Bar {
	return models.Bar{
		Symbol: sym, Time: ts, Close: 100,
		Volume: 1500, AvgVolume: 1000,
		ADX: 30, ATR: 1.5, TrendStrength: 0.5,
	}
}

type stubComponent struct {
	id      models.ComponentID
	dir     models.Direction
	conf    float64
	initErr error
}

func (s *stubComponent) ID() models.ComponentID { return s.id }

func (s *stubComponent) Initialize(context.Context) error { return s.initErr }

func (s *stubComponent) Shutdown(context.Context) error { return nil }

func (s *stubComponent) CurrentSignal(_ context.Context, in domsvc.Input) (models.ComponentSignal, bool) {
	if s.dir == models.DirectionNeutral {
		return models.ComponentSignal{}, false
	}
	return models.ComponentSignal{Direction: s.dir, Confidence: s.conf, Quality: 0.7, Timestamp: in.Bar.Time}, true
}

// longVoters makes every engine see two agreeing long components.
func longVoters(models.MarketProfile) []domsvc.Component {
	return []domsvc.Component{
		&stubComponent{id: models.ComponentAI, dir: models.DirectionLong, conf: 0.8},
		&stubComponent{id: models.ComponentVWAP, dir: models.DirectionLong, conf: 0.8},
	}
}

func noComponents(models.MarketProfile) []domsvc.Component { return nil }

func newTestEngines(factory ComponentFactory) *Engines {
	cfg := DefaultEngineConfig()
	cfg.BarClock = true
	return NewEngines(NewProfiles(nil), session.NewAnalyzer(nil), factory, cfg, nil)
}

type fakeMetrics struct {
	mu          sync.Mutex
	bars        int
	composites  int
	setups      int
	changes     int
	errors      map[string]int
	multipliers map[string]float64
	latency     map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, multipliers: map[string]float64{}, latency: map[string]int{}}
}

func (m *fakeMetrics) RecordBar(string) { m.mu.Lock(); m.bars++; m.mu.Unlock() }

func (m *fakeMetrics) RecordRegimeChange(string, string, string) {
	m.mu.Lock()
	m.changes++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordComposite(string, string) {
	m.mu.Lock()
	m.composites++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordSetup(string, string) { m.mu.Lock(); m.setups++; m.mu.Unlock() }

func (m *fakeMetrics) RecordMarketState(string, float64, float64, float64) {}

func (m *fakeMetrics) RecordComponentMultiplier(symbol, component string, v float64) {
	m.mu.Lock()
	m.multipliers[symbol+"/"+component] = v
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	m.latency[op]++
	m.mu.Unlock()
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

var errSinkDown = errors.New("sink down")

type fakeJournal struct {
	mu         sync.Mutex
	regimes    []models.RegimeSnapshot
	composites []models.CompositeSignal
	metrics    map[string][]models.ComponentMetrics
	recent     []models.CompositeSignal
	fail       bool
}

func (j *fakeJournal) Init(context.Context) error { return nil }

func (j *fakeJournal) AppendRegime(_ context.Context, s models.RegimeSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errSinkDown
	}
	j.regimes = append(j.regimes, s)
	return nil
}

func (j *fakeJournal) AppendComposite(_ context.Context, c *models.CompositeSignal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errSinkDown
	}
	j.composites = append(j.composites, *c)
	return nil
}

func (j *fakeJournal) AppendMetrics(_ context.Context, symbol string, _ time.Time, m []models.ComponentMetrics) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errSinkDown
	}
	if j.metrics == nil {
		j.metrics = map[string][]models.ComponentMetrics{}
	}
	j.metrics[symbol] = m
	return nil
}

func (j *fakeJournal) RecentComposites(_ context.Context, _ string, limit int) ([]models.CompositeSignal, error) {
	if j.fail {
		return nil, errSinkDown
	}
	out := append([]models.CompositeSignal(nil), j.recent...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *fakeJournal) Health(context.Context) error { return nil }

func (j *fakeJournal) Close() error { return nil }

type fakePublisher struct {
	mu         sync.Mutex
	composites int
	setups     int
	err        error
}

func (p *fakePublisher) PublishComposite(context.Context, *models.CompositeSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.composites++
	return p.err
}

func (p *fakePublisher) PublishSetup(context.Context, *models.TradingSetup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setups++
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeStateCache struct {
	mu     sync.Mutex
	states map[string]models.MarketStateResult
}

func (c *fakeStateCache) SaveState(_ context.Context, s *models.MarketStateResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states == nil {
		c.states = map[string]models.MarketStateResult{}
	}
	c.states[s.Symbol] = *s
	return nil
}

func (c *fakeStateCache) LoadState(_ context.Context, symbol string) (*models.MarketStateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[symbol]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s, nil
}
