package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/user/shuttle/internal/store"
)

// Metrics are the engine's Prometheus collectors. Each engine owns its
// registry so several engines can live in one process (tests do this).
type Metrics struct {
	Registry *prometheus.Registry

	admitted     *prometheus.CounterVec
	finished     *prometheus.CounterVec
	processed    *prometheus.CounterVec
	mutated      *prometheus.CounterVec
	retries      prometheus.Counter
	running      prometheus.Gauge
	batchSeconds prometheus.Histogram
}

func newMetrics(l *lanes) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		admitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_jobs_admitted_total",
			Help: "Jobs accepted for execution.",
		}, []string{"kind", "lane"}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_jobs_finished_total",
			Help: "Jobs that reached a terminal state.",
		}, []string{"kind", "state"}),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_candidates_processed_total",
			Help: "Candidate company ids processed by jobs.",
		}, []string{"kind"}),
		mutated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_memberships_mutated_total",
			Help: "Memberships actually inserted or removed by jobs.",
		}, []string{"kind"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_batch_retries_total",
			Help: "Batch attempts retried after the membership store reported overload.",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_jobs_running",
			Help: "Jobs currently executing.",
		}),
		batchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_batch_duration_seconds",
			Help:    "Time to dedup, write, and checkpoint one batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	for _, lane := range []string{store.LaneInteractive, store.LaneBulk} {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "shuttle_lane_depth",
			Help:        "Jobs waiting in a dispatch lane.",
			ConstLabels: prometheus.Labels{"lane": lane},
		}, func() float64 { return float64(l.depth(lane)) })
	}
	return m
}
