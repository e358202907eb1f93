package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "failover"

type promMetrics struct {
	attempts      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	blacklistings *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	blacklisted   *prometheus.GaugeVec
	exhaustions   prometheus.Counter
}

func newPromMetrics(registerer prometheus.Registerer) *promMetrics {
	if registerer == nil {
		return nil
	}

	factory := promauto.With(registerer)

	return &promMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Attempts sent per endpoint, by outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of attempts that produced a response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		blacklistings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklistings_total",
			Help:      "Times an endpoint was blacklisted.",
		}, []string{"endpoint"}),
		recoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Times an endpoint left the blacklist after its cooldown.",
		}, []string{"endpoint"}),
		blacklisted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_blacklisted",
			Help:      "1 while the endpoint is blacklisted.",
		}, []string{"endpoint"}),
		exhaustions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exhaustions_total",
			Help:      "Logical requests abandoned because every endpoint was cooling down.",
		}),
	}
}

func (p *promMetrics) observeAttempt(event MetricEvent) {
	if p == nil {
		return
	}

	p.attempts.WithLabelValues(event.Endpoint, outcome(event)).Inc()
	if !event.Err {
		p.latency.WithLabelValues(event.Endpoint).Observe(event.Duration.Seconds())
	}
}

func (p *promMetrics) observeBlacklisted(endpoint string) {
	if p == nil {
		return
	}
	p.blacklistings.WithLabelValues(endpoint).Inc()
	p.blacklisted.WithLabelValues(endpoint).Set(1)
}

func (p *promMetrics) observeRecovered(endpoint string) {
	if p == nil {
		return
	}
	p.recoveries.WithLabelValues(endpoint).Inc()
	p.blacklisted.WithLabelValues(endpoint).Set(0)
}

func (p *promMetrics) observeExhausted() {
	if p == nil {
		return
	}
	p.exhaustions.Inc()
}

func outcome(event MetricEvent) string {
	switch {
	case event.Err:
		return "error"
	case event.StatusCode == 404:
		return "not_found"
	case isAccepted(event.StatusCode):
		return "success"
	default:
		return "failure"
	}
}
