// Package metrics holds the process-local prometheus counters for
// command checks. Nothing is served over HTTP; batch runs dump the
// registry to a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdauditor_decisions_total",
			Help: "Total number of command decisions by action and source.",
		},
		[]string{"action", "source"},
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdauditor_ai_fallbacks_total",
			Help: "AI consultations that failed open, by failure kind.",
		},
		[]string{"kind"},
	)

	checkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "cmdauditor_check_duration_seconds",
			Help: "End-to-end command check duration in seconds.",
			Buckets: []float64{
				0.00001, 0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30,
			},
		},
	)

	rulesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdauditor_rules_loaded",
			Help: "Number of compiled rules, built-in guards included.",
		},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(decisionsTotal, fallbacksTotal, checkDuration, rulesLoaded)
}

// RecordDecision counts one resolved command. An empty source is
// recorded as "none".
func RecordDecision(action, source string, duration time.Duration) {
	if source == "" {
		source = "none"
	}
	decisionsTotal.With(prometheus.Labels{"action": action, "source": source}).Inc()
	checkDuration.Observe(duration.Seconds())
}

// RecordFallback counts an AI failure that was recovered to PASS.
func RecordFallback(kind string) {
	if kind == "" {
		kind = "unavailable"
	}
	fallbacksTotal.WithLabelValues(kind).Inc()
}

func SetRulesLoaded(n int) {
	rulesLoaded.Set(float64(n))
}

// WriteTextfile writes the registry in text exposition format to path,
// atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
