package attestation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks attestation lifecycle activity.
type Metrics struct {
	Created          prometheus.Counter
	Revoked          prometheus.Counter
	Expired          prometheus.Counter
	VerificationRuns *prometheus.CounterVec
	VerifyDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irrl_attestations_created_total",
			Help: "Attestations created",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irrl_attestations_revoked_total",
			Help: "Attestations revoked",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irrl_attestations_expired_total",
			Help: "Attestations marked expired by the scanner",
		}),
		VerificationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "irrl_verification_runs_total",
			Help: "Verification runs by outcome",
		}, []string{"status"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrl_verification_duration_seconds",
			Help:    "Resolver invocation latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
