package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordBar("ES")
	r.RecordBar("ES")
	r.RecordRegimeChange("ES", "neutral", "bullish")
	r.RecordComposite("ES", "long")
	r.RecordSetup("ES", "EMA9_VWAP_Bullish")
	r.RecordError("journal")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.bars.WithLabelValues("ES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regimeChanges.WithLabelValues("ES", "neutral", "bullish")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.composites.WithLabelValues("ES", "long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.setups.WithLabelValues("ES", "EMA9_VWAP_Bullish")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("journal")))
}

func TestRecorderGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordMarketState("NQ", 72, -0.25, 40)
	r.RecordComponentMultiplier("NQ", "ao_saucer", 1.3)
	r.RecordMarketState("NQ", 55, 0.1, 35)

	assert.Equal(t, 55.0, testutil.ToFloat64(r.opportunity.WithLabelValues("NQ")))
	assert.Equal(t, 0.1, testutil.ToFloat64(r.pressure.WithLabelValues("NQ")))
	assert.Equal(t, 35.0, testutil.ToFloat64(r.risk.WithLabelValues("NQ")))
	assert.Equal(t, 1.3, testutil.ToFloat64(r.multiplier.WithLabelValues("NQ", "ao_saucer")))
}

func TestRecorderLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.RecordLatency("engine_update", 0.002)
	r.RecordLatency("engine_update", 0.004)

	n, err := testutil.GatherAndCount(reg, "fks_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)
	a.RecordBar("CL")
	b.RecordBar("CL")
	assert.Equal(t, 2.0, testutil.ToFloat64(a.bars.WithLabelValues("CL")))
}
