package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatflow"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	NodeVisits    *prometheus.CounterVec
	MessagesSent  *prometheus.CounterVec
	SendFailures  *prometheus.CounterVec
	SessionsEnded *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node executions",
		}, []string{"flow_id", "node_type"}),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of outbound messages accepted by the provider",
		}, []string{"message_type"}),

		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of outbound messages the provider rejected",
		}, []string{"message_type"}),

		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions moved to a terminal status",
		}, []string{"status", "reason"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.NodeVisits, m.MessagesSent, m.SendFailures, m.SessionsEnded} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.FlowID, string(e.NodeKind)).Inc()
		},
		OnMessageSent: func(ctx context.Context, e *domain.MessageEvent) {
			m.MessagesSent.WithLabelValues(e.MessageType).Inc()
		},
		OnSendFailed: func(ctx context.Context, e *domain.MessageEvent) {
			m.SendFailures.WithLabelValues(e.MessageType).Inc()
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			m.SessionsEnded.WithLabelValues(string(e.Status), e.Reason).Inc()
		},
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
