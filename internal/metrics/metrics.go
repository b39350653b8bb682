// Package metrics exposes scan and data source counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "screener"

// Recorder implements the screener's scan hooks and the sources request
// observer using Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	instruments  *prometheus.CounterVec
	matches      *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	lastMatches  *prometheus.GaugeVec
	fetchErrors  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
}

// New creates a recorder with its own registry, so tests and repeated runs
// never collide on the global one.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Completed market scans",
			},
			[]string{"strategy"},
		),
		instruments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instruments_scanned_total",
				Help:      "Instruments processed, by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		matches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matches_total",
				Help:      "Instruments that passed the rules and the filters",
			},
			[]string{"strategy"},
		),
		scanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Wall time of a full scan",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"strategy"},
		),
		lastMatches: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_scan_matches",
				Help:      "Matches found by the most recent scan",
			},
			[]string{"strategy"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Failed data source requests",
			},
			[]string{"source"},
		),
		fetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Data source request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// InstrumentScanned counts one processed instrument.
func (r *Recorder) InstrumentScanned(strategy, outcome string) {
	r.instruments.WithLabelValues(strategy, outcome).Inc()
}

// Matched counts one result.
func (r *Recorder) Matched(strategy string) {
	r.matches.WithLabelValues(strategy).Inc()
}

// ScanFinished records a completed scan.
func (r *Recorder) ScanFinished(strategy string, elapsed time.Duration, matches int) {
	r.scans.WithLabelValues(strategy).Inc()
	r.scanDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	r.lastMatches.WithLabelValues(strategy).Set(float64(matches))
}

// ObserveFetch has the signature of sources.Observer.
func (r *Recorder) ObserveFetch(source string, elapsed time.Duration, err error) {
	r.fetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(source).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
