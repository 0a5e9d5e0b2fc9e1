package metrics

import (
    "context"
    "fmt"
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

type PrometheusMetrics struct {
    counters   map[string]*prometheus.CounterVec
    histograms map[string]*prometheus.HistogramVec
    gauges     map[string]*prometheus.GaugeVec
    server     *http.Server
}

func NewPrometheusMetrics() *PrometheusMetrics {
    pm := &PrometheusMetrics{
        counters:   make(map[string]*prometheus.CounterVec),
        histograms: make(map[string]*prometheus.HistogramVec),
        gauges:     make(map[string]*prometheus.GaugeVec),
    }

    pm.registerMetrics()

    return pm
}

func (pm *PrometheusMetrics) registerMetrics() {
    // Counters
    pm.counters["allocator_requests_total"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "allocator_requests_total",
            Help: "Total allocation requests by outcome",
        },
        []string{"outcome"},
    )

    pm.counters["allocator_cap_rejections_total"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "allocator_cap_rejections_total",
            Help: "Allocation attempts rejected because a caller-ID cap was exceeded",
        },
        []string{"number"},
    )

    pm.counters["allocator_degraded_mode_total"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "allocator_degraded_mode_total",
            Help: "Times the allocator fell back to local rate limiting",
        },
        []string{"phase"},
    )

    // Histograms
    pm.histograms["allocator_phase_duration_seconds"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "allocator_phase_duration_seconds",
            Help:    "Allocator phase duration in seconds",
            Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
        },
        []string{"phase"},
    )

    pm.histograms["allocator_candidates_scanned"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "allocator_candidates_scanned",
            Help:    "Number of candidates scanned before a winner was found",
            Buckets: []float64{1, 2, 5, 10, 20, 50},
        },
        []string{"tier"},
    )

    // Gauges
    pm.gauges["allocator_last_allocation_timestamp"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "allocator_last_allocation_timestamp",
            Help: "Unix timestamp of the last successful allocation per caller-ID",
        },
        []string{"number"},
    )

    pm.gauges["pool_available_caller_ids"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "pool_available_caller_ids",
            Help: "Caller-IDs currently active and unreserved",
        },
        []string{},
    )

    for _, counter := range pm.counters {
        prometheus.MustRegister(counter)
    }
    for _, histogram := range pm.histograms {
        prometheus.MustRegister(histogram)
    }
    for _, gauge := range pm.gauges {
        prometheus.MustRegister(gauge)
    }
}

func (pm *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
    if counter, exists := pm.counters[name]; exists {
        counter.With(prometheus.Labels(labels)).Inc()
    }
}

func (pm *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
    if histogram, exists := pm.histograms[name]; exists {
        histogram.With(prometheus.Labels(labels)).Observe(value)
    }
}

func (pm *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
    if gauge, exists := pm.gauges[name]; exists {
        if labels == nil {
            labels = make(map[string]string)
        }
        gauge.With(prometheus.Labels(labels)).Set(value)
    }
}

// Serve starts the /metrics HTTP server. It blocks until the server
// returns, e.g. via Shutdown.
func (pm *PrometheusMetrics) Serve(port int) error {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    pm.server = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

    logger.WithField("addr", pm.server.Addr).Info("metrics server started")
    if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        return err
    }
    return nil
}

// Shutdown gracefully stops the metrics server.
func (pm *PrometheusMetrics) Shutdown(ctx context.Context) error {
    if pm.server == nil {
        return nil
    }
    return pm.server.Shutdown(ctx)
}
