package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// RealtimePipeline sits between the bar stream and the engines.
// It validates, optionally transforms, drops out-of-order bars and throttles bursts per symbol.
// Bars are never retried: a late replay would reach the engine after newer bars.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastBar   map[string]time.Time // per-symbol last accepted bar time
	transform func(*models.Bar) *models.Bar
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max bars per second per symbol; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform sets a hook that rewrites bars before processing, e.g. symbol aliasing.
func WithTransform(fn func(*models.Bar) *models.Bar) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		limiters: make(map[string]*rate.Limiter),
		lastBar:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles and forwards the bar. Dropped bars return nil.
func (p *RealtimePipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if err := validateBar(b); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		b = p.transform(b)
		if err := validateBar(b); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(b, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		return err
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateBar(b *models.Bar) error {
	switch {
	case b == nil:
		return fmt.Errorf("bar nil")
	case b.Symbol == "":
		return fmt.Errorf("symbol empty")
	case b.Time.IsZero():
		return fmt.Errorf("time missing")
	case math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0:
		return fmt.Errorf("close invalid")
	case b.Volume < 0 || b.AvgVolume < 0:
		return fmt.Errorf("negative volume")
	}
	return nil
}

// allow drops bars not newer than the last accepted one and bursts above maxRPS.
func (p *RealtimePipeline) allow(b *models.Bar, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastBar[b.Symbol]; ok && !b.Time.After(last) {
		return false
	}
	if p.maxRPS > 0 {
		l, ok := p.limiters[b.Symbol]
		if !ok {
			l = rate.NewLimiter(rate.Limit(p.maxRPS), 1)
			p.limiters[b.Symbol] = l
		}
		if !l.AllowN(now, 1) {
			return false
		}
	}
	p.lastBar[b.Symbol] = b.Time
	return true
}
