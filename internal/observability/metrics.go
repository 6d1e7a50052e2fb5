package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the bot's prometheus collectors.
type Metrics struct {
	Commands           *prometheus.CounterVec
	MessagesSent       *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	Payments           *prometheus.CounterVec
	Tasks              *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentbot",
			Name:      "commands_total",
			Help:      "Inbound messages by dispatched command.",
		}, []string{"command"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentbot",
			Name:      "messages_sent_total",
			Help:      "Outbound messages by result.",
		}, []string{"result"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentbot",
			Name:      "session_transitions_total",
			Help:      "Session state machine transitions by step and outcome.",
		}, []string{"step", "outcome"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentbot",
			Name:      "payments_total",
			Help:      "Payment lifecycle events by stage and status.",
		}, []string{"stage", "status"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentbot",
			Name:      "tasks_total",
			Help:      "Background tasks by type and result.",
		}, []string{"type", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.MessagesSent, m.SessionTransitions, m.Payments, m.Tasks)
	}
	return m
}
