package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts one processing run. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry      *prometheus.Registry
	ingest        *prometheus.CounterVec
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	queueLength   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbprocessing",
			Name:      "ingest_total",
			Help:      "Files offered to ingestion, by result.",
		}, []string{"result"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbprocessing",
			Name:      "builds_total",
			Help:      "Child code executions, by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dbprocessing",
			Name:      "build_duration_seconds",
			Help:      "Wall time of child code executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbprocessing",
			Name:      "queue_length",
			Help:      "Entries in the process queue.",
		}),
	}
	m.registry.MustRegister(m.ingest, m.builds, m.buildDuration, m.queueLength)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveIngest(result string) {
	if m == nil {
		return
	}
	m.ingest.WithLabelValues(label(result)).Inc()
}

func (m *Metrics) ObserveBuild(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(label(result)).Inc()
	m.buildDuration.Observe(dur.Seconds())
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics textfile dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	return nil
}

func label(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
