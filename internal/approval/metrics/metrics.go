package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions     *prometheus.CounterVec
	BulkItems     *prometheus.CounterVec
	PendingOpened prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_approval_decisions_total",
			Help: "Total number of approval decisions applied",
		}, []string{"outcome"}),
		BulkItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_approval_bulk_items_total",
			Help: "Total number of bulk decision items by result",
		}, []string{"result"}),
		PendingOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_approval_pending_opened_total",
			Help: "Total number of approval records opened",
		}),
	}
}

func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordBulkItem(result string) {
	if m == nil {
		return
	}
	m.BulkItems.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPendingOpened() {
	if m == nil {
		return
	}
	m.PendingOpened.Inc()
}
