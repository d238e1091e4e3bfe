// Package metrics collects install and remove counters for envmgr.
//
// envmgr is a short-lived CLI, so nothing is served over HTTP. Metrics are
// kept in a private registry and can be written in the Prometheus text
// format for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "envmgr"

// Result label values.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultChecksum  = "checksum_mismatch"
	ResultCancelled = "cancelled"
	ResultDeferred  = "deferred"
)

// Metrics holds the collectors. A nil *Metrics ignores every call.
type Metrics struct {
	registry         *prometheus.Registry
	installsTotal    *prometheus.CounterVec
	removesTotal     *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	installDuration  prometheus.Histogram
	pendingDeletions prometheus.Gauge
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		installsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "installs_total",
			Help:      "Total number of toolchain installs by result",
		}, []string{"result"}),

		removesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "removes_total",
			Help:      "Total number of environment removals by result",
		}, []string{"result"}),

		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes of toolchain archives downloaded",
		}),

		installDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "install_duration_seconds",
			Help:      "Duration of successful installs in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400}, // 10s to 40m
		}),

		pendingDeletions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_deletions",
			Help:      "Number of staged directories awaiting deletion",
		}),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// InstallFinished records one install attempt.
func (m *Metrics) InstallFinished(result string, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.installsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.downloadBytes.Add(float64(bytes))
	}
	if result == ResultSuccess {
		m.installDuration.Observe(d.Seconds())
	}
}

// RemoveFinished records one remove attempt.
func (m *Metrics) RemoveFinished(result string) {
	if m == nil {
		return
	}
	m.removesTotal.WithLabelValues(result).Inc()
}

// SetPendingDeletions sets the size of the deletion journal.
func (m *Metrics) SetPendingDeletions(n int) {
	if m == nil {
		return
	}
	m.pendingDeletions.Set(float64(n))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
