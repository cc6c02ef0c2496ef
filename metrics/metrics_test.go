package metrics_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambatech/gotasks/metrics"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestSink_ReportsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.New(reg, "gotasks", "consumer")

	sink.SetInFlight(3)
	sink.SetWorkers(5)
	sink.SetQueueDepth(42)

	inFlight := gather(t, reg, "gotasks_consumer_in_flight")
	require.Len(t, inFlight.Metric, 1)
	assert.Equal(t, float64(3), inFlight.Metric[0].GetGauge().GetValue())

	workers := gather(t, reg, "gotasks_consumer_workers")
	assert.Equal(t, float64(5), workers.Metric[0].GetGauge().GetValue())

	depth := gather(t, reg, "gotasks_consumer_queue_depth")
	assert.Equal(t, float64(42), depth.Metric[0].GetGauge().GetValue())
}

func TestSink_IncDisposition_LabelsByTaskAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.New(reg, "gotasks", "consumer")

	sink.IncDisposition("greet", "done")
	sink.IncDisposition("greet", "done")
	sink.IncDisposition("greet", "retry")

	dispositions := gather(t, reg, "gotasks_consumer_dispositions_total")
	require.Len(t, dispositions.Metric, 2)

	totals := map[string]float64{}
	for _, m := range dispositions.Metric {
		var outcome string
		for _, l := range m.Label {
			if l.GetName() == "outcome" {
				outcome = l.GetValue()
			}
		}
		totals[outcome] = m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), totals["done"])
	assert.Equal(t, float64(1), totals["retry"])
}
