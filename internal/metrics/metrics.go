// Package metrics exposes engine counters over Prometheus. The collector
// satisfies the scan engine's Collector interface without importing it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/Scanarr/internal/logger"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	registry      *prometheus.Registry
	scansStarted  *prometheus.CounterVec
	scansFinished *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	filesTotal    *prometheus.CounterVec
	corruptFound  prometheus.Counter
}

// NewCollector registers the instruments on a private registry so tests can
// build collectors without global-registry collisions.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		scansStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanarr_scans_started_total",
			Help: "Scans started, by mode.",
		}, []string{"mode"}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanarr_scans_finished_total",
			Help: "Scans finished, by outcome (completed or interrupted).",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanarr_scan_duration_seconds",
			Help:    "Wall-clock duration of finished scans.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanarr_files_processed_total",
			Help: "Files processed, by verdict status and scan depth.",
		}, []string{"status", "depth"}),
		corruptFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanarr_corrupt_files_total",
			Help: "Files classified as corrupt.",
		}),
	}
	c.registry.MustRegister(
		c.scansStarted, c.scansFinished, c.scanDuration, c.filesTotal, c.corruptFound,
	)
	return c
}

func (c *Collector) ScanStarted(mode string) {
	c.scansStarted.WithLabelValues(mode).Inc()
}

func (c *Collector) FileProcessed(status, depth string) {
	c.filesTotal.WithLabelValues(status, depth).Inc()
}

func (c *Collector) ScanCompleted(outcome string, duration time.Duration, corrupt int) {
	c.scansFinished.WithLabelValues(outcome).Inc()
	c.scanDuration.Observe(duration.Seconds())
	c.corruptFound.Add(float64(corrupt))
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics on a dedicated listener.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server bound to addr.
func NewServer(addr string, c *Collector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background; listen errors are logged, not fatal.
func (s *Server) Start() {
	go func() {
		logger.Infof("Metrics listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("Metrics server stopped: %v", err)
		}
	}()
}

// Stop shuts the listener down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
