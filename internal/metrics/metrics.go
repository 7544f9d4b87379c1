// Package metrics provides Prometheus metrics for the panorama scraper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scraper.
type Metrics struct {
	registry *prometheus.Registry

	// Panorama metrics
	Panoramas        *prometheus.CounterVec
	PanoramaDuration *prometheus.HistogramVec
	PanoramaBytes    prometheus.Histogram

	// Tile metrics
	TilesFetched  prometheus.Counter
	TileFailures  *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec

	// Pipeline metrics
	InFlightPanoramas prometheus.Gauge
	InFlightTiles     prometheus.Gauge

	// Error metrics
	StorageErrors *prometheus.CounterVec
	LedgerErrors  prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
	Namespace string `yaml:"namespace"`
}

var defaultMetrics *Metrics

// Init initializes the metrics package with a fresh registry and installs
// it as the global instance. Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pano_scraper"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Panoramas: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panoramas_total",
				Help:      "Panoramas processed, by outcome",
			},
			[]string{"outcome"},
		),
		PanoramaDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "panorama_duration_seconds",
				Help:      "Time to resolve, fetch and assemble one panorama",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5m
			},
			[]string{"outcome"},
		),
		PanoramaBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "panorama_bytes",
				Help:      "Size of encoded panorama images in bytes",
				Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
			},
		),
		TilesFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tiles_fetched_total",
				Help:      "Tiles fetched successfully",
			},
		),
		TileFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_failures_total",
				Help:      "Tile fetches that failed after all retries",
			},
			[]string{"reason"},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
		InFlightPanoramas: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_panoramas",
				Help:      "Number of panoramas currently being processed",
			},
		),
		InFlightTiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_tiles",
				Help:      "Number of tile requests currently in flight",
			},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage write errors",
			},
			[]string{"backend"},
		),
		LedgerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_errors_total",
				Help:      "Total number of ledger write errors",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Registry exposes the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	if m := Get(); m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncPanorama increments the panorama counter for an outcome.
func (m *Metrics) IncPanorama(outcome string) {
	m.Panoramas.WithLabelValues(outcome).Inc()
}

// ObservePanoramaDuration records the processing time of one panorama.
func (m *Metrics) ObservePanoramaDuration(outcome string, seconds float64) {
	m.PanoramaDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObservePanoramaBytes records the encoded size of one panorama.
func (m *Metrics) ObservePanoramaBytes(bytes float64) {
	m.PanoramaBytes.Observe(bytes)
}

// IncTilesFetched increments the fetched tile counter.
func (m *Metrics) IncTilesFetched() {
	m.TilesFetched.Inc()
}

// IncTileFailures increments the tile failure counter.
func (m *Metrics) IncTileFailures(reason string) {
	m.TileFailures.WithLabelValues(reason).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(operation string) {
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// AddInFlightPanoramas adjusts the in-flight panorama gauge.
func (m *Metrics) AddInFlightPanoramas(delta float64) {
	m.InFlightPanoramas.Add(delta)
}

// AddInFlightTiles adjusts the in-flight tile gauge.
func (m *Metrics) AddInFlightTiles(delta float64) {
	m.InFlightTiles.Add(delta)
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(backend string) {
	m.StorageErrors.WithLabelValues(backend).Inc()
}

// IncLedgerErrors increments the ledger errors counter.
func (m *Metrics) IncLedgerErrors() {
	m.LedgerErrors.Inc()
}
