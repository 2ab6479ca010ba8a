package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides collaborator metrics registered on the default registry.
var Module = fx.Options(
	fx.Provide(func() *Metrics { return NewMetrics(prometheus.DefaultRegisterer) }),
)

// Metrics exposes Prometheus primitives for calls to warehouse collaborators.
type Metrics struct {
	probes           *prometheus.CounterVec
	probeDuration    *prometheus.HistogramVec
	scans            *prometheus.CounterVec
	scanDuration     *prometheus.HistogramVec
	modelTables      *prometheus.HistogramVec
	generateThrottle *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunara_datasource_probe_total",
		Help: "Data source probes by warehouse type and outcome.",
	}, []string{"source_type", "status"})

	probeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunara_datasource_probe_duration_seconds",
		Help:    "Data source probe latency per warehouse type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source_type"})

	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunara_semantic_scan_total",
		Help: "Warehouse scans by warehouse type and outcome.",
	}, []string{"source_type", "status"})

	scanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunara_semantic_scan_duration_seconds",
		Help:    "Warehouse scan latency per warehouse type.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"source_type"})

	modelTables := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunara_semantic_model_tables",
		Help:    "Table count distribution of persisted semantic models.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	}, []string{"source_type"})

	generateThrottle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunara_semantic_generate_throttled_total",
		Help: "Generation requests rejected by the rate limiter.",
	}, []string{"reason"})

	if reg != nil {
		reg.MustRegister(
			probes,
			probeDuration,
			scans,
			scanDuration,
			modelTables,
			generateThrottle,
		)
	}

	return &Metrics{
		probes:           probes,
		probeDuration:    probeDuration,
		scans:            scans,
		scanDuration:     scanDuration,
		modelTables:      modelTables,
		generateThrottle: generateThrottle,
	}
}

// ObserveProbe records a probe outcome and latency.
func (m *Metrics) ObserveProbe(sourceType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	typeLabel := sanitizeLabel(sourceType)
	m.probes.WithLabelValues(typeLabel, sanitizeLabel(status)).Inc()
	m.probeDuration.WithLabelValues(typeLabel).Observe(duration.Seconds())
}

// ObserveScan records a scan outcome and latency.
func (m *Metrics) ObserveScan(sourceType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	typeLabel := sanitizeLabel(sourceType)
	m.scans.WithLabelValues(typeLabel, sanitizeLabel(status)).Inc()
	m.scanDuration.WithLabelValues(typeLabel).Observe(duration.Seconds())
}

// ObserveModelTables records the table count of a written semantic model.
func (m *Metrics) ObserveModelTables(sourceType string, tables int) {
	if m == nil {
		return
	}
	m.modelTables.WithLabelValues(sanitizeLabel(sourceType)).Observe(float64(tables))
}

// RecordGenerateThrottled counts generation requests denied by the limiter.
func (m *Metrics) RecordGenerateThrottled(reason string) {
	if m == nil {
		return
	}
	m.generateThrottle.WithLabelValues(sanitizeLabel(reason)).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
