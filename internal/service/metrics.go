package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded by runs_finished_total.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeAborted   = "aborted"
)

// Metrics are kept on a private registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	registry     *prometheus.Registry
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	notices      prometheus.Counter
	channels     prometheus.Gauge
	dropped      prometheus.Counter
	evicted      prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "runs_started_total",
			Help:      "Analysis runs accepted by the service.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "runs_finished_total",
			Help:      "Analysis runs finished, by outcome.",
		}, []string{"outcome"}),
		notices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "progress_notices_total",
			Help:      "Progress notices published to event channels.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "research",
			Name:      "event_channels",
			Help:      "Open websocket event channels.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "event_channels_dropped_total",
			Help:      "Event channels disconnected for falling behind.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "backlog_evicted_total",
			Help:      "Events evicted from a session backlog before a late subscriber could replay them.",
		}),
	}
	m.registry.MustRegister(m.runsStarted, m.runsFinished, m.notices, m.channels, m.dropped, m.evicted)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
