// Package metrics collects and exposes Prometheus metrics for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records counters and latencies for debate sessions, provider
// calls, credential activity and update-stream conflicts. It satisfies
// debate.Metrics and stream.ConflictRecorder.
type Collector struct {
	sessions           *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	callLatency        *prometheus.HistogramVec
	credentialsCreated prometheus.Counter
	streamConflicts    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatekeeper_sessions_total",
			Help: "Finished debate sessions by terminal status.",
		}, []string{"status"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatekeeper_provider_calls_total",
			Help: "Model provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "debatekeeper_provider_call_latency_seconds",
			Help:    "Latency of model provider calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		credentialsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debatekeeper_credentials_created_total",
			Help: "Credentials stored in the vault.",
		}),
		streamConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debatekeeper_stream_conflicts_total",
			Help: "Update stream polls rejected because another consumer holds the stream.",
		}),
	}

	reg.MustRegister(
		c.sessions,
		c.providerCalls,
		c.callLatency,
		c.credentialsCreated,
		c.streamConflicts,
	)

	return c
}

// RecordSession records a finished debate session with its terminal status.
func (c *Collector) RecordSession(status string) {
	c.sessions.WithLabelValues(status).Inc()
}

// RecordProviderCall records a provider call outcome (ok, error, retried).
func (c *Collector) RecordProviderCall(provider, outcome string) {
	c.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordCallLatency records how long a provider call took.
func (c *Collector) RecordCallLatency(provider string, d time.Duration) {
	c.callLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCredentialCreated records a credential stored in the vault.
func (c *Collector) RecordCredentialCreated() {
	c.credentialsCreated.Inc()
}

// RecordStreamConflict records a poll rejected by a competing consumer.
func (c *Collector) RecordStreamConflict() {
	c.streamConflicts.Inc()
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
