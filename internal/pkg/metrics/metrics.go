package metrics

import (
	"strconv"

	"propdesk/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the approval engine counters
type Metrics struct {
	transitions *prometheus.CounterVec
	responses   *prometheus.CounterVec
	open        *prometheus.GaugeVec
}

// New creates the counters and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_approval_transitions_total",
				Help: "Approval request transitions by entity type and resulting status",
			},
			[]string{"entity_type", "status"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_approval_responses_total",
				Help: "Step responses by action and override flag",
			},
			[]string{"action", "override"},
		),
		open: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "propdesk_approval_open_requests",
				Help: "Approval requests created but not yet terminal, per entity type",
			},
			[]string{"entity_type"},
		),
	}
	reg.MustRegister(m.transitions, m.responses, m.open)
	return m
}

// OnRequestEvent implements domain.RequestObserver
func (m *Metrics) OnRequestEvent(e domain.RequestEvent) {
	entityType := string(e.EntityType)
	m.transitions.WithLabelValues(entityType, string(e.Status)).Inc()

	if e.Action != domain.AuditCreate && e.Action != domain.AuditCancel {
		m.responses.WithLabelValues(e.Action, strconv.FormatBool(e.IsOverride)).Inc()
	}

	switch {
	case e.Action == domain.AuditCreate:
		m.open.WithLabelValues(entityType).Inc()
	case e.Status.IsTerminal():
		m.open.WithLabelValues(entityType).Dec()
	}
}
