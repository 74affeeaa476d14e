package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopbot"

// Metrics holds the bot's collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Commands       *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec
	Transitions    *prometheus.CounterVec
}

func New() *Metrics {
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Total number of chat commands handled.",
	}, []string{"command", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "gateway_request_duration_seconds",
		Help:      "Invoice creation latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "order",
		Name:      "transitions_total",
		Help:      "Order status transitions by target status.",
	}, []string{"status"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(commands, latency, transitions)
	return &Metrics{
		registry:       reg,
		Commands:       commands,
		GatewayLatency: latency,
		Transitions:    transitions,
	}
}

func (m *Metrics) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) ObserveGateway(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
