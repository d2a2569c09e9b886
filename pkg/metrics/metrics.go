// Copyright 2025 Certen Protocol
//
// Prometheus metrics for the randomness service, registered against a
// prometheus.Registerer and exposed over /metrics via promhttp.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and histogram the randomness service
// exports. Construct one per process with New. The ABCI app, driver, and
// ingress layers do not take a Metrics, so nothing in this repository
// updates these values.
type Metrics struct {
	SeedCommitmentsTotal prometheus.Counter
	VdfResultsTotal       prometheus.Counter
	RoundsFinalizedTotal  prometheus.Counter
	TxRejectedTotal       *prometheus.CounterVec
	VdfEvaluationSeconds  prometheus.Histogram
	RoundParticipants     prometheus.Histogram
	CurrentHeight         prometheus.Gauge
}

// New creates and registers every metric against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SeedCommitmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rng_seed_commitments_total",
			Help: "Total number of seed commitments executed.",
		}),
		VdfResultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rng_vdf_results_total",
			Help: "Total number of VDF result submissions executed.",
		}),
		RoundsFinalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rng_rounds_finalized_total",
			Help: "Total number of randomness rounds finalized.",
		}),
		TxRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rng_tx_rejected_total",
			Help: "Total number of transactions rejected, labeled by reason.",
		}, []string{"reason"}),
		VdfEvaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rng_vdf_evaluation_seconds",
			Help:    "Wall-clock time spent evaluating a VDF round.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		RoundParticipants: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rng_round_participants",
			Help:    "Number of validators whose VDF result contributed to a finalized round.",
			Buckets: prometheus.LinearBuckets(1, 1, 20),
		}),
		CurrentHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rng_current_height",
			Help: "Latest committed block height.",
		}),
	}

	reg.MustRegister(
		m.SeedCommitmentsTotal,
		m.VdfResultsTotal,
		m.RoundsFinalizedTotal,
		m.TxRejectedTotal,
		m.VdfEvaluationSeconds,
		m.RoundParticipants,
		m.CurrentHeight,
	)
	return m
}

// Handler returns the /metrics HTTP handler serving reg's exposition
// format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
