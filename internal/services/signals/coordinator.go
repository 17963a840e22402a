// Package signals computes weighted consensus across component signals and adapts
// component trust from realised outcomes.
package signals

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FKSEngine/internal/domain/models"
	"FKSEngine/pkg/logger"
)

const (
	strongConfidence = 0.8
	maxQuality       = 0.98
	minMultiplier    = 0.5
	maxMultiplier    = 1.5
)

type Config struct {
	MinComponentAgreement int
	MaxSignalAge          time.Duration
	ConsensusThreshold    float64
	MinQuality            float64
	BaseWeights           map[models.ComponentID]float64
}

func DefaultConfig() Config {
	w := make(map[models.ComponentID]float64, len(models.KnownComponents))
	for id, v := range models.KnownComponents {
		w[id] = v
	}
	return Config{
		MinComponentAgreement: 2,
		MaxSignalAge:          15 * time.Minute,
		ConsensusThreshold:    0.6,
		MinQuality:            0.5,
		BaseWeights:           w,
	}
}

type entry struct {
	signal  models.ComponentSignal
	state   models.ComponentState
	metrics models.ComponentMetrics
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	mu     sync.RWMutex
	cfg    Config
	symbol string
	log    *logger.Logger
	now    func() time.Time
	newID  func() string

	components    map[models.ComponentID]*entry
	consensuses   int64
	lastComposite time.Time
}

func NewCoordinator(symbol string, cfg Config, log *logger.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.MinComponentAgreement < 1 {
		cfg.MinComponentAgreement = def.MinComponentAgreement
	}
	if cfg.MaxSignalAge <= 0 {
		cfg.MaxSignalAge = def.MaxSignalAge
	}
	if cfg.ConsensusThreshold <= 0 || cfg.ConsensusThreshold > 1 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}
	if cfg.MinQuality < 0 || cfg.MinQuality > 1 {
		cfg.MinQuality = def.MinQuality
	}
	weights := make(map[models.ComponentID]float64, len(def.BaseWeights))
	for id, w := range def.BaseWeights {
		weights[id] = w
	}
	for id, w := range cfg.BaseWeights {
		if w > 0 && !math.IsInf(w, 0) {
			weights[id] = w
		}
	}
	cfg.BaseWeights = weights
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		cfg:        cfg,
		symbol:     symbol,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
		components: make(map[models.ComponentID]*entry),
	}
}

// WithClock replaces the wall clock; used for replay and tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *Coordinator) recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		e := models.Recovered(op, r)
		c.log.Error("signal coordinator panicked",
			logger.String("symbol", c.symbol),
			logger.String("op", op),
			logger.Any("panic", r),
		)
		if err != nil {
			*err = e
		}
	}
}

func (c *Coordinator) entryFor(id models.ComponentID) *entry {
	e, ok := c.components[id]
	if !ok {
		e = &entry{
			state: models.StateUnregistered,
			metrics: models.ComponentMetrics{
				Component:             id,
				PerformanceMultiplier: 1.0,
			},
		}
		c.components[id] = e
	}
	return e
}

// RegisterSignal records the latest opinion of a component. Invalid signals are counted and rejected.
func (c *Coordinator) RegisterSignal(id models.ComponentID, sig models.ComponentSignal) (err error) {
	defer c.recoverInto("signals.RegisterSignal", &err)

	if _, ok := models.KnownComponents[id]; !ok {
		return models.Errorf(models.KindInvalidInput, "signals.RegisterSignal", "unknown component %q", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := c.entryFor(id)
	e.metrics.TotalSignals++

	if math.IsNaN(sig.Confidence) || math.IsInf(sig.Confidence, 0) || !sig.IsValid() {
		c.log.Debug("component signal rejected",
			logger.String("symbol", c.symbol),
			logger.String("component", string(id)),
			logger.String("direction", sig.Direction.String()),
			logger.Float64("confidence", sig.Confidence),
		)
		return models.Errorf(models.KindInvalidInput, "signals.RegisterSignal",
			"%s: direction %s confidence %.2f is not a valid signal", id, sig.Direction, sig.Confidence)
	}

	sig.Component = id
	sig.Confidence = clamp(sig.Confidence, 0, 1)
	sig.Quality = clamp(sig.Quality, 0, 1)
	sig.RegisteredAt = now
	sig.Active = true
	if sig.Timestamp.IsZero() {
		sig.Timestamp = now
	}

	e.signal = sig
	e.state = models.StateRegistered
	e.metrics.ValidSignals++
	if sig.Confidence >= strongConfidence {
		e.metrics.StrongSignals++
	}
	e.metrics.LastSignalAt = now
	return nil
}

// State reports the lifecycle state of a component at the current time.
func (c *Coordinator) State(id models.ComponentID) models.ComponentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked(id, c.now())
}

func (c *Coordinator) stateLocked(id models.ComponentID, now time.Time) models.ComponentState {
	e, ok := c.components[id]
	if !ok || e.state == models.StateUnregistered {
		return models.StateUnregistered
	}
	if e.state == models.StateStale || e.signal.IsStale(now, c.cfg.MaxSignalAge) {
		return models.StateStale
	}
	return models.StateRegistered
}

// HasExternal reports whether a fresh host-supplied signal is on file for id.
func (c *Coordinator) HasExternal(id models.ComponentID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.components[id]
	if !ok || !e.signal.External {
		return false
	}
	return c.stateLocked(id, c.now()) == models.StateRegistered
}

// Sweep marks stale signals inactive and returns how many changed state.
func (c *Coordinator) Sweep(now time.Time) (n int) {
	defer c.recoverInto("signals.Sweep", nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.components {
		if e.state == models.StateRegistered && e.signal.IsStale(now, c.cfg.MaxSignalAge) {
			e.state = models.StateStale
			e.signal.Active = false
			n++
			c.log.Debug("component signal went stale",
				logger.String("symbol", c.symbol),
				logger.String("component", string(id)),
			)
		}
	}
	return n
}

type active struct {
	id     models.ComponentID
	signal models.ComponentSignal
	weight float64
}

// ComputeConsensus combines the active signals into a composite.
// It returns ErrNoConsensus when too few components agree or the result fails validation.
func (c *Coordinator) ComputeConsensus() (out *models.CompositeSignal, err error) {
	defer c.recoverInto("signals.ComputeConsensus", &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "signals.ComputeConsensus"
	now := c.now()

	var act []active
	for id, e := range c.components {
		if c.stateLocked(id, now) != models.StateRegistered || !e.signal.Active {
			continue
		}
		if e.signal.Confidence < c.cfg.ConsensusThreshold {
			continue
		}
		act = append(act, active{id: id, signal: e.signal, weight: c.effectiveWeightLocked(e, now, true)})
	}
	sort.Slice(act, func(i, j int) bool { return act[i].id < act[j].id })

	if len(act) < c.cfg.MinComponentAgreement {
		return nil, models.Errorf(models.KindNoConsensus, op, "%d active components, need %d", len(act), c.cfg.MinComponentAgreement)
	}

	score := map[models.Direction]float64{}
	count := map[models.Direction]int{}
	var totalWeight float64
	for _, a := range act {
		score[a.signal.Direction] += a.weight * a.signal.Confidence
		count[a.signal.Direction]++
		totalWeight += a.weight
	}

	// only sides with a quorum compete; a lone heavy dissenter cannot veto
	dominant := models.DirectionNeutral
	for _, d := range []models.Direction{models.DirectionLong, models.DirectionShort} {
		if count[d] < c.cfg.MinComponentAgreement {
			continue
		}
		if dominant == models.DirectionNeutral || score[d] > score[dominant] {
			dominant = d
		}
	}
	if dominant == models.DirectionNeutral {
		return nil, models.Errorf(models.KindNoConsensus, op, "no direction has %d agreeing components (long %d, short %d)",
			c.cfg.MinComponentAgreement, count[models.DirectionLong], count[models.DirectionShort])
	}

	var agreeWeight, sumConf float64
	confs := make([]float64, 0, count[dominant])
	contributions := make([]models.Contribution, 0, len(act))
	for _, a := range act {
		contributions = append(contributions, models.Contribution{
			Component:       a.id,
			Direction:       a.signal.Direction,
			Confidence:      a.signal.Confidence,
			EffectiveWeight: a.weight,
		})
		if a.signal.Direction != dominant {
			continue
		}
		agreeWeight += a.weight
		sumConf += a.signal.Confidence
		confs = append(confs, a.signal.Confidence)
	}

	agreeing := count[dominant]
	weightedScore := 0.0
	if totalWeight > 0 {
		weightedScore = clamp(score[dominant]/totalWeight, 0, 1)
	}
	confidence := 0.0
	if agreeWeight > 0 {
		confidence = clamp(score[dominant]/agreeWeight, 0, 1)
	}
	avgConf := sumConf / float64(agreeing)
	agreement := float64(agreeing) / float64(len(act))
	consistency := 1 - math.Min(1, 2*stddev(confs))
	countBonus := math.Min(1, float64(agreeing-1)/4)

	quality := 0.40*avgConf + 0.25*agreement + 0.15*consistency + 0.15*weightedScore + 0.05*countBonus
	quality = clamp(math.Min(quality, maxQuality), 0, 1)

	if confidence < c.cfg.ConsensusThreshold {
		return nil, models.Errorf(models.KindNoConsensus, op, "confidence %.2f below threshold %.2f", confidence, c.cfg.ConsensusThreshold)
	}
	if quality < c.cfg.MinQuality {
		return nil, models.Errorf(models.KindNoConsensus, op, "quality %.2f below minimum %.2f", quality, c.cfg.MinQuality)
	}

	out = &models.CompositeSignal{
		ID:             c.newID(),
		Symbol:         c.symbol,
		Direction:      dominant,
		WeightedScore:  weightedScore,
		Confidence:     confidence,
		QualityScore:   quality,
		ComponentCount: agreeing,
		Contributions:  contributions,
		Reasons: []string{
			fmt.Sprintf("%d of %d active components agree %s", agreeing, len(act), dominant),
			fmt.Sprintf("weighted score %.2f, quality %.2f", weightedScore, quality),
		},
		Timestamp: now,
	}
	c.consensuses++
	c.lastComposite = now
	return out, nil
}

// RecordOutcome feeds a realised direction back into every component that took part in composite.
func (c *Coordinator) RecordOutcome(composite *models.CompositeSignal, actual models.Direction, profitFactor float64) (err error) {
	defer c.recoverInto("signals.RecordOutcome", &err)

	const op = "signals.RecordOutcome"
	if composite == nil {
		return models.Errorf(models.KindInvalidInput, op, "composite is nil")
	}
	if actual == models.DirectionNeutral {
		return models.Errorf(models.KindInvalidInput, op, "actual direction must be long or short")
	}
	if len(composite.Contributions) == 0 {
		return models.Errorf(models.KindInsufficientData, op, "composite %s has no contributions", composite.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, contrib := range composite.Contributions {
		if _, ok := models.KnownComponents[contrib.Component]; !ok {
			continue
		}
		m := &c.entryFor(contrib.Component).metrics
		m.Evaluated++
		if contrib.Direction == actual {
			m.CorrectPredictions++
		}
		m.Accuracy = float64(m.CorrectPredictions) / float64(m.Evaluated)
		if !math.IsNaN(profitFactor) && !math.IsInf(profitFactor, 0) && profitFactor >= 0 {
			m.AvgProfitFactor += (profitFactor - m.AvgProfitFactor) / float64(m.Evaluated)
		}
		m.PerformanceMultiplier = clamp(0.9*m.PerformanceMultiplier+0.1*targetMultiplier(m.Accuracy), minMultiplier, maxMultiplier)
	}
	return nil
}

func targetMultiplier(accuracy float64) float64 {
	if accuracy > 0.6 {
		return 1 + (accuracy-0.6)*0.5
	}
	return 0.7 + accuracy*0.5
}

// EffectiveWeight is the trust weight of a component without the per-signal recency and strength factors.
func (c *Coordinator) EffectiveWeight(id models.ComponentID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.components[id]
	if !ok {
		return c.cfg.BaseWeights[id]
	}
	return c.effectiveWeightLocked(e, c.now(), false)
}

func (c *Coordinator) effectiveWeightLocked(e *entry, now time.Time, withSignal bool) float64 {
	w := c.cfg.BaseWeights[e.metrics.Component] * e.metrics.PerformanceMultiplier * (0.7 + 0.6*e.metrics.ValidRatio())
	if !withSignal {
		return w
	}
	age := now.Sub(e.signal.RegisteredAt)
	recency := math.Max(0.5, 1-0.5*float64(age)/float64(c.cfg.MaxSignalAge))
	strength := 1 + (e.signal.Confidence - c.cfg.ConsensusThreshold)
	return w * recency * strength
}

// Metrics returns a copy of every component's counters, ordered by component.
func (c *Coordinator) Metrics() []models.ComponentMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ComponentMetrics, 0, len(c.components))
	for _, e := range c.components {
		out = append(out, e.metrics)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Signals returns the signals currently eligible for consensus, ordered by component.
func (c *Coordinator) Signals() []models.ComponentSignal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make([]models.ComponentSignal, 0, len(c.components))
	for id, e := range c.components {
		if c.stateLocked(id, now) == models.StateRegistered {
			out = append(out, e.signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Health summarises component states for dashboards.
func (c *Coordinator) Health(now time.Time) models.HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := models.HealthReport{
		Symbol:        c.symbol,
		Timestamp:     now,
		Consensuses:   c.consensuses,
		LastComposite: c.lastComposite,
	}
	for id, e := range c.components {
		st := c.stateLocked(id, now)
		switch st {
		case models.StateRegistered:
			r.ActiveComponents++
		case models.StateStale:
			r.StaleComponents++
		}
		h := models.ComponentHealth{
			Component:       id,
			State:           st,
			Accuracy:        e.metrics.Accuracy,
			Multiplier:      e.metrics.PerformanceMultiplier,
			EffectiveWeight: c.effectiveWeightLocked(e, now, false),
			TotalSignals:    e.metrics.TotalSignals,
			ValidSignals:    e.metrics.ValidSignals,
		}
		if !e.metrics.LastSignalAt.IsZero() {
			h.LastSignalAge = now.Sub(e.metrics.LastSignalAt)
		}
		r.Components = append(r.Components, h)
	}
	sort.Slice(r.Components, func(i, j int) bool { return r.Components[i].Component < r.Components[j].Component })
	return r
}

// SetThreshold changes the consensus threshold; values outside (0,1] are rejected.
func (c *Coordinator) SetThreshold(t float64) error {
	if !(t > 0 && t <= 1) {
		return models.Errorf(models.KindInvalidInput, "signals.SetThreshold", "threshold %v outside (0,1]", t)
	}
	c.mu.Lock()
	c.cfg.ConsensusThreshold = t
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ConsensusThreshold
}

func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	var m float64
	for _, x := range v {
		m += x
	}
	m /= float64(len(v))
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(v)))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
