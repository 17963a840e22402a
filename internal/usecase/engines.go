package usecase

import (
	"context"
	"sort"
	"sync"

	"FKSEngine/internal/domain/models"
	domsvc "FKSEngine/internal/domain/service"
	"FKSEngine/internal/services/market"
	"FKSEngine/internal/services/session"
	"FKSEngine/internal/services/setups"
	"FKSEngine/pkg/logger"
)

// ComponentFactory builds the local components of a new engine.
type ComponentFactory func(profile models.MarketProfile) []domsvc.Component

// LocalComponents returns the detectors, the VWAP vote and the market-state vote,
// followed by any shared extras such as the remote model component.
func LocalComponents(extra ...domsvc.Component) ComponentFactory {
	return func(profile models.MarketProfile) []domsvc.Component {
		out := setups.NewComponents(profile)
		out = append(out, setups.NewVWAPTrend(), market.NewComponent())
		return append(out, extra...)
	}
}

// Engines is the per-symbol engine registry. Engines are created on first use.
type Engines struct {
	mu       sync.RWMutex
	engines  map[string]*Engine
	profiles *Profiles
	sessions *session.Analyzer
	factory  ComponentFactory
	cfg      EngineConfig
	log      *logger.Logger
}

func NewEngines(profiles *Profiles, sessions *session.Analyzer, factory ComponentFactory, cfg EngineConfig, log *logger.Logger) *Engines {
	if log == nil {
		log = logger.Nop()
	}
	if profiles == nil {
		profiles = NewProfiles(nil)
	}
	if factory == nil {
		factory = LocalComponents()
	}
	return &Engines{
		engines:  make(map[string]*Engine),
		profiles: profiles,
		sessions: sessions,
		factory:  factory,
		cfg:      cfg,
		log:      log,
	}
}

// Get returns the engine of symbol, creating it with its market profile if needed.
// Unknown symbols fall back to the default profile with a warning.
func (r *Engines) Get(symbol string) (*Engine, error) {
	if symbol == "" {
		return nil, models.Errorf(models.KindInvalidInput, "engines.Get", "symbol is required")
	}
	r.mu.RLock()
	e, ok := r.engines[symbol]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[symbol]; ok {
		return e, nil
	}
	profile, known := r.profiles.Lookup(symbol)
	if !known {
		r.log.Warn("no market profile for symbol, using defaults",
			logger.String("symbol", symbol),
			logger.Float64("tick_size", profile.TickSize),
		)
	}
	e = NewEngine(profile, r.sessions, r.factory(profile), r.cfg, r.log)
	if err := e.Initialize(context.Background()); err != nil {
		return nil, err
	}
	r.engines[symbol] = e
	r.log.Info("engine created", logger.String("symbol", symbol))
	return e, nil
}

// Lookup returns an existing engine without creating one.
func (r *Engines) Lookup(symbol string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[symbol]
	return e, ok
}

// Process routes the bar to the engine of its symbol.
func (r *Engines) Process(ctx context.Context, bar models.Bar) (Output, error) {
	e, err := r.Get(bar.Symbol)
	if err != nil {
		return Output{Symbol: bar.Symbol}, err
	}
	return e.Process(ctx, bar)
}

// Symbols lists the symbols with a live engine, sorted.
func (r *Engines) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for s := range r.engines {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// All returns the live engines ordered by symbol.
func (r *Engines) All() []*Engine {
	syms := r.Symbols()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, 0, len(syms))
	for _, s := range syms {
		if e, ok := r.engines[s]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Warm creates engines for the configured symbols up front.
func (r *Engines) Warm(symbols []string) error {
	for _, s := range symbols {
		if _, err := r.Get(s); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every engine's components.
func (r *Engines) Shutdown(ctx context.Context) error {
	var first error
	for _, e := range r.All() {
		if err := e.Shutdown(ctx); err != nil {
			r.log.Warn("engine shutdown failed", logger.String("symbol", e.Symbol()), logger.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
