package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes
const (
	OutcomeSaved        = "saved"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
	OutcomeFailed       = "failed"
)

// Metrics owns its registry so several services (and tests) never share collectors.
type Metrics struct {
	registry     *prometheus.Registry
	ingestions   *prometheus.CounterVec
	eggsIngested prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eggcount",
			Name:      "ingestions_total",
			Help:      "Device result uploads by outcome.",
		}, []string{"outcome"}),
		eggsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eggcount",
			Name:      "eggs_ingested_total",
			Help:      "Sum of egg counts of successfully stored results.",
		}),
	}
	registry.MustRegister(
		m.ingestions,
		m.eggsIngested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, outcome := range []string{OutcomeSaved, OutcomeUnauthorized, OutcomeInvalid, OutcomeFailed} {
		m.ingestions.WithLabelValues(outcome)
	}
	return m
}

// RecordIngestion counts one upload attempt; eggCount is only added for saved results
func (m *Metrics) RecordIngestion(outcome string, eggCount int) {
	m.ingestions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSaved && eggCount > 0 {
		m.eggsIngested.Add(float64(eggCount))
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IngestionCounter returns the counter for an outcome
func (m *Metrics) IngestionCounter(outcome string) prometheus.Counter {
	return m.ingestions.WithLabelValues(outcome)
}

// EggsIngested returns the egg counter
func (m *Metrics) EggsIngested() prometheus.Counter {
	return m.eggsIngested
}
