package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	bars          *prometheus.CounterVec
	regimeChanges *prometheus.CounterVec
	composites    *prometheus.CounterVec
	setups        *prometheus.CounterVec
	opportunity   *prometheus.GaugeVec
	pressure      *prometheus.GaugeVec
	risk          *prometheus.GaugeVec
	multiplier    *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a Prometheus recorder registered on reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Recorder{
		bars: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fks_bars_total",
				Help: "Bars processed per symbol",
			},
			[]string{"symbol"},
		)),
		regimeChanges: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fks_regime_changes_total",
				Help: "Confirmed regime transitions",
			},
			[]string{"symbol", "from", "to"},
		)),
		composites: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fks_composite_signals_total",
				Help: "Composite signals emitted by direction",
			},
			[]string{"symbol", "direction"},
		)),
		setups: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fks_setups_total",
				Help: "Setups detected by name",
			},
			[]string{"symbol", "setup"},
		)),
		opportunity: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fks_market_opportunity",
				Help: "Latest opportunity score",
			},
			[]string{"symbol"},
		)),
		pressure: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fks_market_pressure",
				Help: "Latest bull minus bear pressure",
			},
			[]string{"symbol"},
		)),
		risk: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fks_market_risk",
				Help: "Latest risk score",
			},
			[]string{"symbol"},
		)),
		multiplier: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fks_component_multiplier",
				Help: "Adaptive performance multiplier per component",
			},
			[]string{"symbol", "component"},
		)),
		errorsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fks_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		)),
		latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fks_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		)),
	}
}

func (r *Recorder) RecordBar(symbol string) {
	r.bars.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordRegimeChange(symbol, from, to string) {
	r.regimeChanges.WithLabelValues(symbol, from, to).Inc()
}

func (r *Recorder) RecordComposite(symbol, direction string) {
	r.composites.WithLabelValues(symbol, direction).Inc()
}

func (r *Recorder) RecordSetup(symbol, name string) {
	r.setups.WithLabelValues(symbol, name).Inc()
}

// RecordMarketState records the aggregator's headline scores for a symbol.
func (r *Recorder) RecordMarketState(symbol string, opportunity, pressure, risk float64) {
	r.opportunity.WithLabelValues(symbol).Set(opportunity)
	r.pressure.WithLabelValues(symbol).Set(pressure)
	r.risk.WithLabelValues(symbol).Set(risk)
}

func (r *Recorder) RecordComponentMultiplier(symbol, component string, v float64) {
	r.multiplier.WithLabelValues(symbol, component).Set(v)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// register returns the already registered collector when an identical one exists,
// so recorders can be built more than once against the same registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
