// Package metrics exposes Prometheus counters for the dispatch core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter the service records. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pingsIngested    prometheus.Counter
	transitions      *prometheus.CounterVec
	reconcile        *prometheus.CounterVec
	resolverRequests *prometheus.CounterVec
	broadcastDropped *prometheus.CounterVec
	pushSent         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "tracking",
			Name:      "pings_ingested_total",
			Help:      "Location pings persisted",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "requests",
			Name:      "status_transitions_total",
			Help:      "Status transitions applied, by target status and writer",
		}, []string{"status", "source"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "reconciler",
			Name:      "rows_total",
			Help:      "Rows visited by the reconciliation loop, by outcome",
		}, []string{"outcome"}),
		resolverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "resolver",
			Name:      "lookups_total",
			Help:      "Nearest-facility lookups, by result",
		}, []string{"result"}),
		broadcastDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		}, []string{"type"}),
		pushSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Web push notifications, by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pingsIngested, m.transitions, m.reconcile, m.resolverRequests, m.broadcastDropped, m.pushSent)
	return m
}

func (m *Metrics) ObservePing() {
	if m == nil {
		return
	}
	m.pingsIngested.Inc()
}

func (m *Metrics) ObserveTransition(status, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status, source).Inc()
}

// ObserveReconcile adds n rows with the given outcome (promoted, skipped, failed, scanned).
func (m *Metrics) ObserveReconcile(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcile.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ObserveResolver(result string) {
	if m == nil {
		return
	}
	m.resolverRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBroadcastDrop(eventType string) {
	if m == nil {
		return
	}
	m.broadcastDropped.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObservePush(result string) {
	if m == nil {
		return
	}
	m.pushSent.WithLabelValues(result).Inc()
}
