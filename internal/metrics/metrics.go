// Package metrics provides Prometheus instrumentation for the gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcome labels.
const (
	OutcomeAllowed           = "allowed"
	OutcomeStructuredFailure = "structured_failure"
	OutcomeMessageFailure    = "message_failure"
	OutcomeInternalError     = "internal_error"
)

// Metrics holds the gate's collectors.
type Metrics struct {
	// Verifications counts verification attempts by outcome.
	Verifications *prometheus.CounterVec

	// BodyBytes observes the size of cached request bodies.
	BodyBytes prometheus.Histogram
}

// New creates and registers the gate's collectors. A nil registerer skips
// registration, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sigv4gate",
				Name:      "verifications_total",
				Help:      "Signature verification attempts by outcome.",
			},
			[]string{"outcome"},
		),
		BodyBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sigv4gate",
				Name:      "request_body_bytes",
				Help:      "Size of request bodies cached for verification.",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Verifications, m.BodyBytes)
	}
	return m
}

// Observe records one verification outcome and, when body caching happened,
// the cached body size.
func (m *Metrics) Observe(outcome string, bodyBytes int) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.BodyBytes.Observe(float64(bodyBytes))
}
