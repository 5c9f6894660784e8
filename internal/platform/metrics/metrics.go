package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the integrity service
type Metrics struct {
	IdentitiesIssued  prometheus.Counter
	IdentitiesRevoked prometheus.Counter
	ContentAnchored   prometheus.Counter
	TamperDetected    *prometheus.CounterVec
	LedgerErrors      *prometheus.CounterVec
	VerifyDuration    prometheus.Histogram
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		IdentitiesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_identities_issued_total",
			Help: "Total number of identity commitments anchored on chain",
		}),
		IdentitiesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_identities_revoked_total",
			Help: "Total number of identity commitments revoked on chain",
		}),
		ContentAnchored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicledger_content_anchored_total",
			Help: "Total number of content fingerprints anchored on chain",
		}),
		TamperDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicledger_tamper_detected_total",
			Help: "Total number of fingerprint mismatches found during verification",
		}, []string{"kind"}),
		LedgerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicledger_ledger_errors_total",
			Help: "Total number of failed ledger operations",
		}, []string{"operation"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicledger_verify_duration_seconds",
			Help:    "Latency of content verification including the on-chain read",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementTamperDetected records one detected mismatch for the given
// kind ("content" or "profile").
func (m *Metrics) IncrementTamperDetected(kind string) {
	m.TamperDetected.WithLabelValues(kind).Inc()
}

// IncrementLedgerErrors records one failed ledger operation.
func (m *Metrics) IncrementLedgerErrors(operation string) {
	m.LedgerErrors.WithLabelValues(operation).Inc()
}
