package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "FKSEngine/internal/domain/repository"
	"FKSEngine/pkg/logger"
)

// Housekeeper runs the periodic health pass of every engine on its own ticker:
// stale signals are swept, multipliers exported and component metrics journaled.
type Housekeeper struct {
	engines  *Engines
	journal  domrepo.Journal
	metrics  domrepo.Metrics
	interval time.Duration
	log      *logger.Logger
	tasks    []func(now time.Time)

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewHousekeeper creates a housekeeper. journal may be nil.
func NewHousekeeper(engines *Engines, journal domrepo.Journal, metrics domrepo.Metrics, interval time.Duration, log *logger.Logger) *Housekeeper {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Housekeeper{
		engines:  engines,
		journal:  journal,
		metrics:  metrics,
		interval: interval,
		log:      log.With(logger.String("component", "housekeeper")),
		stop:     make(chan struct{}),
	}
}

// AddTask registers extra periodic work, such as pruning idle rate limiter keys.
func (h *Housekeeper) AddTask(fn func(now time.Time)) {
	if fn != nil {
		h.tasks = append(h.tasks, fn)
	}
}

// Start runs the ticker until ctx is done or Stop is called.
func (h *Housekeeper) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-t.C:
				h.RunOnce(ctx)
			}
		}
	}()
	h.log.Info("housekeeper started", logger.Duration("interval_ms", h.interval))
}

// Stop ends the ticker and waits for a running pass to finish.
func (h *Housekeeper) Stop() {
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()
}

// RunOnce performs a single pass over all engines.
func (h *Housekeeper) RunOnce(ctx context.Context) {
	start := time.Now()
	for _, e := range h.engines.All() {
		now := e.Now()
		symbol := e.Symbol()

		if n := e.Sweep(now); n > 0 {
			h.log.Info("stale signals swept", logger.String("symbol", symbol), logger.Int("count", n))
		}
		report := e.Health(now)
		if report.StaleComponents > 0 {
			h.log.Warn("stale components",
				logger.String("symbol", symbol),
				logger.Int("stale", report.StaleComponents),
				logger.Int("active", report.ActiveComponents),
			)
		}

		ms := e.Metrics()
		for _, m := range ms {
			h.metrics.RecordComponentMultiplier(symbol, string(m.Component), m.PerformanceMultiplier)
		}
		if h.journal != nil && len(ms) > 0 {
			if err := h.journal.AppendMetrics(ctx, symbol, now, ms); err != nil {
				h.metrics.RecordError("journal_metrics")
				h.log.Warn("journal metrics failed", logger.String("symbol", symbol), logger.Error(err))
			}
		}
	}
	for _, fn := range h.tasks {
		fn(start)
	}
	h.metrics.RecordLatency("housekeeping", time.Since(start).Seconds())
}
