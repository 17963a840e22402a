package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"FKSEngine/internal/domain/models"
	domsvc "FKSEngine/internal/domain/service"
	"FKSEngine/internal/services/features"
	"FKSEngine/internal/services/history"
	"FKSEngine/internal/services/market"
	"FKSEngine/internal/services/regime"
	"FKSEngine/internal/services/session"
	"FKSEngine/internal/services/setups"
	"FKSEngine/internal/services/signals"
	"FKSEngine/pkg/logger"
)

// EngineConfig bundles the tunables of every analyzer an engine owns.
type EngineConfig struct {
	Regime                regime.Config
	Market                market.Config
	Signals               signals.Config
	CompositeHistory      int
	ComponentTimeout      time.Duration
	EstimateTrendStrength bool
	// BarClock drives staleness and time-in-regime from bar timestamps instead of the wall clock.
	BarClock bool
	// ResetOnWeekOpen clears market history on the first bar after the weekend.
	ResetOnWeekOpen bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Regime:                regime.DefaultConfig(),
		Market:                market.DefaultConfig(),
		Signals:               signals.DefaultConfig(),
		CompositeHistory:      100,
		ComponentTimeout:      2 * time.Second,
		EstimateTrendStrength: true,
	}
}

// Output is what one Process call produces for a bar.
type Output struct {
	Symbol        string                   `json:"symbol"`
	State         models.MarketStateResult `json:"state"`
	Snapshot      models.RegimeSnapshot    `json:"snapshot"`
	RegimeChanged bool                     `json:"regime_changed"`
	PrevRegime    models.RegimeType        `json:"prev_regime"`
	Signals       []models.ComponentSignal `json:"signals"`
	Composite     *models.CompositeSignal  `json:"composite,omitempty"`
	Setup         *models.TradingSetup     `json:"setup,omitempty"`
}

// Engine is the analysis context of one symbol. It owns its analyzers, coordinator and
// components; nothing is shared between engines.
type Engine struct {
	mu         sync.Mutex
	symbol     string
	profile    models.MarketProfile
	cfg        EngineConfig
	agg        *market.Aggregator
	coord      *signals.Coordinator
	components []domsvc.Component
	closes     *history.Floats
	composites *history.Buffer[models.CompositeSignal]
	log        *logger.Logger

	now         func() time.Time
	barTime     atomic.Int64
	started     bool
	lastSession models.Session

	// composite IDs whose outcome was applied, oldest first
	evaluated     map[string]struct{}
	evaluatedList []string
}

func NewEngine(profile models.MarketProfile, sa *session.Analyzer, components []domsvc.Component, cfg EngineConfig, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.CompositeHistory <= 0 {
		cfg.CompositeHistory = DefaultEngineConfig().CompositeHistory
	}
	if cfg.ComponentTimeout <= 0 {
		cfg.ComponentTimeout = DefaultEngineConfig().ComponentTimeout
	}
	log = log.With(logger.String("symbol", profile.Symbol))

	rcfg := cfg.Regime
	rcfg.Breakpoints = regime.BreakpointsFor(profile)
	ra := regime.NewAnalyzer(profile.Symbol, rcfg, log)

	e := &Engine{
		symbol:     profile.Symbol,
		profile:    profile,
		cfg:        cfg,
		agg:        market.NewAggregator(profile.Symbol, ra, sa, cfg.Market, log),
		coord:      signals.NewCoordinator(profile.Symbol, cfg.Signals, log),
		components: components,
		closes:     history.NewFloats(rcfg.Capacity),
		composites: history.New[models.CompositeSignal](cfg.CompositeHistory),
		log:        log,
		evaluated:  make(map[string]struct{}),
	}
	if cfg.BarClock {
		e.WithClock(e.lastBarTime)
	} else {
		e.WithClock(time.Now)
	}
	return e
}

// WithClock replaces the clock of the engine and everything it owns.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.agg.WithClock(now)
	e.coord.WithClock(now)
	return e
}

func (e *Engine) lastBarTime() time.Time {
	ns := e.barTime.Load()
	if ns == 0 {
		return time.Now()
	}
	return time.Unix(0, ns).UTC()
}

func (e *Engine) Symbol() string { return e.symbol }

func (e *Engine) Profile() models.MarketProfile { return e.profile }

func (e *Engine) Coordinator() *signals.Coordinator { return e.coord }

// Initialize starts every component. A failing component is logged and left out.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	kept := e.components[:0]
	for _, c := range e.components {
		if err := c.Initialize(ctx); err != nil {
			e.log.Warn("component failed to initialize",
				logger.String("component", string(c.ID())),
				logger.Error(err),
			)
			continue
		}
		kept = append(kept, c)
	}
	e.components = kept
	e.started = true
	return nil
}

// Shutdown stops every component and returns the first error.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for _, c := range e.components {
		if err := c.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	e.started = false
	return first
}

// Process runs one bar through market analysis, the components, the coordinator and the detectors.
// Invalid input yields the last good state together with the error.
func (e *Engine) Process(ctx context.Context, bar models.Bar) (out Output, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = models.Recovered("engine.Process", r)
			e.log.Error("engine panicked", logger.Any("panic", r))
		}
	}()

	out.Symbol = e.symbol
	if bar.Symbol == "" {
		bar.Symbol = e.symbol
	}
	if bar.Symbol != e.symbol {
		last, _ := e.agg.Last()
		out.State = last
		return out, models.Errorf(models.KindInvalidInput, "engine.Process", "bar for %s sent to engine %s", bar.Symbol, e.symbol)
	}
	if !bar.Time.IsZero() {
		e.barTime.Store(bar.Time.UnixNano())
		e.rollover(bar.Time)
	}

	if finite(bar.Close) && bar.Close > 0 {
		e.closes.Add(bar.Close)
	}
	// hosts without a trend indicator send 0
	if e.cfg.EstimateTrendStrength && bar.TrendStrength == 0 {
		bar.TrendStrength = features.TrendStrength(e.closes.Values())
	}

	prev := e.agg.Regime().Current()
	state, err := e.agg.Analyze(bar)
	out.State = state
	if err != nil {
		return out, err
	}
	out.Snapshot = e.agg.Regime().Current()
	out.PrevRegime = prev.Regime
	out.RegimeChanged = !prev.Timestamp.IsZero() && prev.Regime != out.Snapshot.Regime

	out.Signals = e.collect(ctx, domsvc.Input{Bar: bar, State: state})
	kept := out.Signals[:0]
	for _, sig := range out.Signals {
		// a fresh host signal outranks the local stand-in for the same component
		if e.coord.HasExternal(sig.Component) {
			continue
		}
		kept = append(kept, sig)
	}
	out.Signals = kept
	for _, sig := range out.Signals {
		if rerr := e.coord.RegisterSignal(sig.Component, sig); rerr != nil {
			e.log.Debug("component signal not registered",
				logger.String("component", string(sig.Component)),
				logger.Error(rerr),
			)
		}
	}

	comp, cerr := e.coord.ComputeConsensus()
	switch {
	case cerr == nil:
		e.composites.Add(*comp)
		out.Composite = comp
	case errors.Is(cerr, models.ErrNoConsensus):
	default:
		e.log.Warn("consensus failed", logger.Error(cerr))
	}

	if best, ok := setups.Best(bar, setups.ContextFor(e.profile, state)); ok {
		out.Setup = &best
	}
	return out, nil
}

// rollover resets market history when trading resumes after the weekend.
func (e *Engine) rollover(t time.Time) {
	s := e.agg.Sessions().Classify(t)
	prev := e.lastSession
	e.lastSession = s
	if !e.cfg.ResetOnWeekOpen || prev != models.SessionWeekend || s == models.SessionWeekend {
		return
	}
	e.resetLocked()
	e.log.Info("week open, market history reset", logger.String("session", s.String()))
}

// collect asks every component for its signal concurrently and returns them in component order.
func (e *Engine) collect(ctx context.Context, in domsvc.Input) []models.ComponentSignal {
	if len(e.components) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ComponentTimeout)
	defer cancel()

	type item struct {
		idx int
		sig models.ComponentSignal
		ok  bool
	}
	ch := make(chan item, len(e.components))
	var wg sync.WaitGroup
	for i, c := range e.components {
		wg.Add(1)
		go func(i int, c domsvc.Component) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("component panicked",
						logger.String("component", string(c.ID())),
						logger.Any("panic", r),
					)
					ch <- item{idx: i}
				}
			}()
			sig, ok := c.CurrentSignal(ctx, in)
			sig.Component = c.ID()
			ch <- item{idx: i, sig: sig, ok: ok}
		}(i, c)
	}
	go func() { wg.Wait(); close(ch) }()

	got := make([]*models.ComponentSignal, len(e.components))
	for it := range ch {
		if it.ok {
			s := it.sig
			got[it.idx] = &s
		}
	}
	out := make([]models.ComponentSignal, 0, len(got))
	for _, s := range got {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// RegisterSignal accepts a signal from an external component such as a host indicator.
// Until it goes stale it takes precedence over a local component with the same ID.
func (e *Engine) RegisterSignal(id models.ComponentID, sig models.ComponentSignal) error {
	sig.External = true
	return e.coord.RegisterSignal(id, sig)
}

// Consensus recomputes the composite from the signals currently on file and keeps it
// for later outcome feedback.
func (e *Engine) Consensus() (*models.CompositeSignal, error) {
	comp, err := e.coord.ComputeConsensus()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.composites.Add(*comp)
	e.mu.Unlock()
	return comp, nil
}

// RecordOutcome feeds the realised direction of a previously emitted composite back into the coordinator.
// Each composite is evaluated once; a repeat wraps ErrOutcomeRecorded.
func (e *Engine) RecordOutcome(compositeID string, actual models.Direction, profitFactor float64) error {
	const op = "engine.RecordOutcome"
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.evaluated[compositeID]; done {
		return models.NewError(models.KindInvalidInput, op, fmt.Errorf("%w: composite %q", models.ErrOutcomeRecorded, compositeID))
	}
	comp, ok := e.compositeLocked(compositeID)
	if !ok {
		return models.Errorf(models.KindInvalidInput, op, "composite %q not found", compositeID)
	}
	if err := e.coord.RecordOutcome(&comp, actual, profitFactor); err != nil {
		return err
	}
	e.markEvaluated(compositeID)
	return nil
}

// markEvaluated remembers as many IDs as the composite history holds; older
// composites can no longer be looked up anyway.
func (e *Engine) markEvaluated(id string) {
	e.evaluated[id] = struct{}{}
	e.evaluatedList = append(e.evaluatedList, id)
	if len(e.evaluatedList) > e.cfg.CompositeHistory {
		delete(e.evaluated, e.evaluatedList[0])
		e.evaluatedList = e.evaluatedList[1:]
	}
}

// Composite looks up a recent composite by ID.
func (e *Engine) Composite(id string) (models.CompositeSignal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compositeLocked(id)
}

func (e *Engine) compositeLocked(id string) (models.CompositeSignal, bool) {
	vals := e.composites.Values()
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i].ID == id {
			return vals[i], true
		}
	}
	return models.CompositeSignal{}, false
}

// Composites returns up to n recent composites, newest last.
func (e *Engine) Composites(n int) []models.CompositeSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composites.LastN(n)
}

// State returns the latest market state, if any bar was processed.
func (e *Engine) State() (models.MarketStateResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Last()
}

// Regimes returns up to n recent regime snapshots.
func (e *Engine) Regimes(n int) []models.RegimeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Regime().History(n)
}

// Parameters returns the policy bundle of the current regime.
func (e *Engine) Parameters() models.RegimeParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return regime.Parameters(e.agg.Regime().Current().Regime)
}

func (e *Engine) Health(now time.Time) models.HealthReport { return e.coord.Health(now) }

func (e *Engine) Sweep(now time.Time) int { return e.coord.Sweep(now) }

func (e *Engine) Metrics() []models.ComponentMetrics { return e.coord.Metrics() }

// Now is the engine clock, which follows bar time in replay mode.
func (e *Engine) Now() time.Time { return e.now() }

// Reset clears market history; component trust is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.agg.Reset()
	e.closes.Clear()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
