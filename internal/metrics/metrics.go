// Package metrics holds the Prometheus counters for reconciliation. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Transitions   *prometheus.CounterVec
	Events        *prometheus.CounterVec
	AuthorityCall *prometheus.CounterVec
	SyncWrites    *prometheus.CounterVec
	Notices       *prometheus.CounterVec
	Jobs          *prometheus.CounterVec
	Reminders     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "status_transitions_total",
			Help:      "Verification status transitions written to order metafields.",
		}, []string{"status"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "inbound_events_total",
			Help:      "Inbound requests by source and result.",
		}, []string{"source", "result"}),
		AuthorityCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "authority_calls_total",
			Help:      "Proof authority calls by operation and result kind.",
		}, []string{"op", "result"}),
		SyncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "metafield_writes_total",
			Help:      "metafieldsSet calls by result.",
		}, []string{"result"}),
		Notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "notices_total",
			Help:      "Notifications by kind and result.",
		}, []string{"kind", "result"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "jobs_total",
			Help:      "Queue jobs processed by kind and result.",
		}, []string{"kind", "result"}),
		Reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ink",
			Name:      "followup_reminders_total",
			Help:      "Follow-up reminders queued by the sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Events, m.AuthorityCall, m.SyncWrites, m.Notices, m.Jobs, m.Reminders)
	}
	return m
}

func result(err error, kind string) string {
	if err == nil {
		return "ok"
	}
	if kind == "" {
		return "error"
	}
	return kind
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Event(source, res string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(source, res).Inc()
}

// Authority records a proof authority call; kind is the error kind, if any.
func (m *Metrics) Authority(op string, err error, kind string) {
	if m == nil {
		return
	}
	m.AuthorityCall.WithLabelValues(op, result(err, kind)).Inc()
}

func (m *Metrics) Sync(err error, kind string) {
	if m == nil {
		return
	}
	m.SyncWrites.WithLabelValues(result(err, kind)).Inc()
}

func (m *Metrics) Notice(kind, res string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(kind, res).Inc()
}

func (m *Metrics) Job(kind string, err error) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(kind, result(err, "")).Inc()
}

func (m *Metrics) Reminder() {
	if m == nil {
		return
	}
	m.Reminders.Inc()
}
