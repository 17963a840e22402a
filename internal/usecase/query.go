package usecase

import (
	"context"
	"sync"
	"time"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/logger"
)

const maxCompositeLimit = 500

// Query serves read endpoints from the live engines, falling back to the state cache and
// the journal for symbols this process has not seen since it started.
type Query struct {
	engines *Engines
	cache   domrepo.StateCache
	journal domrepo.Journal
	timeout time.Duration
	log     *logger.Logger
}

// NewQuery builds the read side. cache and journal may be nil.
func NewQuery(engines *Engines, cache domrepo.StateCache, journal domrepo.Journal, log *logger.Logger) *Query {
	if log == nil {
		log = logger.Nop()
	}
	return &Query{engines: engines, cache: cache, journal: journal, timeout: 5 * time.Second, log: log}
}

// Overview is the combined view of one symbol; parts that failed are listed in Errors.
type Overview struct {
	Symbol     string                    `json:"symbol"`
	Timestamp  time.Time                 `json:"timestamp"`
	State      *models.MarketStateResult `json:"state,omitempty"`
	Health     *models.HealthReport      `json:"health,omitempty"`
	Parameters *models.RegimeParameters  `json:"parameters,omitempty"`
	Composites []models.CompositeSignal  `json:"composites,omitempty"`
	Errors     map[string]string         `json:"errors,omitempty"`
}

// State returns the latest market state of symbol.
func (q *Query) State(ctx context.Context, symbol string) (models.MarketStateResult, error) {
	if symbol == "" {
		return models.MarketStateResult{}, models.Errorf(models.KindInvalidInput, "query.State", "symbol is required")
	}
	if e, ok := q.engines.Lookup(symbol); ok {
		if st, ok := e.State(); ok {
			return st, nil
		}
	}
	if q.cache != nil {
		st, err := q.cache.LoadState(ctx, symbol)
		if err == nil {
			return *st, nil
		}
		q.log.Debug("state cache miss", logger.String("symbol", symbol), logger.Error(err))
	}
	return models.MarketStateResult{}, models.Errorf(models.KindInsufficientData, "query.State", "no state for %s", symbol)
}

// Composites returns up to limit recent composites of symbol, newest last.
func (q *Query) Composites(ctx context.Context, symbol string, limit int) ([]models.CompositeSignal, error) {
	if symbol == "" {
		return nil, models.Errorf(models.KindInvalidInput, "query.Composites", "symbol is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxCompositeLimit {
		limit = maxCompositeLimit
	}
	if e, ok := q.engines.Lookup(symbol); ok {
		if cs := e.Composites(limit); len(cs) > 0 {
			return cs, nil
		}
	}
	if q.journal == nil {
		return []models.CompositeSignal{}, nil
	}
	cs, err := q.journal.RecentComposites(ctx, symbol, limit)
	if err != nil {
		return nil, models.NewError(models.KindInternal, "query.Composites", err)
	}
	// the journal answers newest first
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
	return cs, nil
}

// Health returns the coordinator health of symbol.
func (q *Query) Health(symbol string) (models.HealthReport, error) {
	e, err := q.engine("query.Health", symbol)
	if err != nil {
		return models.HealthReport{}, err
	}
	return e.Health(e.Now()), nil
}

// HealthAll returns the health of every live engine.
func (q *Query) HealthAll() []models.HealthReport {
	engines := q.engines.All()
	out := make([]models.HealthReport, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Health(e.Now()))
	}
	return out
}

// Parameters returns the policy bundle of symbol's current regime.
func (q *Query) Parameters(symbol string) (models.RegimeParameters, error) {
	e, err := q.engine("query.Parameters", symbol)
	if err != nil {
		return models.RegimeParameters{}, err
	}
	return e.Parameters(), nil
}

// Regimes returns up to limit recent regime snapshots of symbol, newest last.
func (q *Query) Regimes(symbol string, limit int) ([]models.RegimeSnapshot, error) {
	e, err := q.engine("query.Regimes", symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return e.Regimes(limit), nil
}

// Overview gathers state, health, parameters and composites concurrently.
func (q *Query) Overview(ctx context.Context, symbol string, limit int) (*Overview, error) {
	if symbol == "" {
		return nil, models.Errorf(models.KindInvalidInput, "query.Overview", "symbol is required")
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	res := &Overview{Symbol: symbol, Timestamp: time.Now().UTC(), Errors: map[string]string{}}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup
	run := func(name string, fn func() (interface{}, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fn()
			ch <- item{name, v, err}
		}()
	}
	run("state", func() (interface{}, error) { return q.State(ctx, symbol) })
	run("health", func() (interface{}, error) { return q.Health(symbol) })
	run("parameters", func() (interface{}, error) { return q.Parameters(symbol) })
	run("composites", func() (interface{}, error) { return q.Composites(ctx, symbol, limit) })
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch v := it.val.(type) {
		case models.MarketStateResult:
			res.State = &v
		case models.HealthReport:
			res.Health = &v
		case models.RegimeParameters:
			res.Parameters = &v
		case []models.CompositeSignal:
			res.Composites = v
		}
	}

	if res.State == nil && res.Health == nil {
		return nil, models.Errorf(models.KindInsufficientData, "query.Overview", "nothing known about %s", symbol)
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

func (q *Query) engine(op, symbol string) (*Engine, error) {
	if symbol == "" {
		return nil, models.Errorf(models.KindInvalidInput, op, "symbol is required")
	}
	e, ok := q.engines.Lookup(symbol)
	if !ok {
		return nil, models.Errorf(models.KindInsufficientData, op, "no engine for %s", symbol)
	}
	return e, nil
}

