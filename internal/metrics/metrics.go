// Package metrics defines the Prometheus collectors for the scan worker and
// exposes an HTTP handler for scraping.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emtechscan/scan-worker/internal/logging"
)

// Metrics holds all Prometheus collectors for the worker.
type Metrics struct {
	DocumentsTotal    *prometheus.CounterVec
	PagesProcessed    prometheus.Counter
	PagesFailed       *prometheus.CounterVec
	HitsRecorded      *prometheus.CounterVec
	HitsSuppressed    prometheus.Counter
	EngineInvocations *prometheus.CounterVec
	EngineLatency     *prometheus.HistogramVec
	MergeConfidence   prometheus.Histogram
	ScanDuration      prometheus.Histogram
}

// New creates and registers all scan worker metrics.
func New() *Metrics {
	m := &Metrics{
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emtechscan_documents_total",
				Help: "Documents scanned, by outcome (completed, failed).",
			},
			[]string{"outcome"},
		),
		PagesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "emtechscan_pages_processed_total",
				Help: "Pages that completed the full pipeline.",
			},
		),
		PagesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emtechscan_pages_failed_total",
				Help: "Pages that could not be processed, by error code.",
			},
			[]string{"code"},
		),
		HitsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emtechscan_hits_total",
				Help: "Term hits recorded, by category.",
			},
			[]string{"category"},
		),
		HitsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "emtechscan_hits_suppressed_total",
				Help: "Hits filtered out by the confidence threshold.",
			},
		),
		EngineInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emtechscan_engine_invocations_total",
				Help: "OCR engine invocations, by engine and outcome.",
			},
			[]string{"engine", "outcome"},
		),
		EngineLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emtechscan_engine_latency_seconds",
				Help:    "Per-page OCR latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"engine"},
		),
		MergeConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "emtechscan_merge_confidence",
				Help:    "Distribution of per-page merge confidence.",
				Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 1},
			},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "emtechscan_scan_duration_seconds",
				Help:    "Whole-document scan duration in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		),
	}

	prometheus.MustRegister(
		m.DocumentsTotal,
		m.PagesProcessed,
		m.PagesFailed,
		m.HitsRecorded,
		m.HitsSuppressed,
		m.EngineInvocations,
		m.EngineLatency,
		m.MergeConfidence,
		m.ScanDuration,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer serves /metrics on addr and returns a shutdown func.
func StartServer(addr string) func(context.Context) error {
	log := logging.NewLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
