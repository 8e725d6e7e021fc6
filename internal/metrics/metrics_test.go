package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePing()
	m.ObservePing()
	m.ObserveTransition("Patient Reached", "reconcile")
	m.ObserveReconcile("skipped", 3)
	m.ObserveReconcile("promoted", 0)
	m.ObserveResolver("ok")
	m.ObserveBroadcastDrop("location_update")
	m.ObservePush("sent")

	assert.Equal(t, 2.0, counterValue(t, reg, "dispatch_tracking_pings_ingested_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "dispatch_requests_status_transitions_total",
		map[string]string{"status": "Patient Reached", "source": "reconcile"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "dispatch_reconciler_rows_total", map[string]string{"outcome": "skipped"}))
	assert.Equal(t, 0.0, counterValue(t, reg, "dispatch_reconciler_rows_total", map[string]string{"outcome": "promoted"}))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObservePing()
	m.ObserveTransition("New", "api")
	m.ObserveReconcile("failed", 1)
	m.ObserveResolver("error")
	m.ObserveBroadcastDrop("status_update")
	m.ObservePush("expired")
}
