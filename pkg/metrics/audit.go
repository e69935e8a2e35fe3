package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics records scheduled stock audit runs and their findings.
type AuditMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	lowStock prometheus.Gauge
	dangling prometheus.Gauge
}

// NewAuditMetrics registers audit metrics on reg. A nil registerer yields a no-op collector.
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	m := &AuditMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_job_duration_seconds",
			Help:      "Duration of stock audit jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_job_runs_total",
			Help:      "Stock audit job executions by outcome.",
		}, []string{"job", "outcome"}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_low_stock_items",
			Help:      "Inventory items at or below the low stock threshold at the last audit.",
		}),
		dangling: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deliveries_dangling_total",
			Help:      "Delivery records referencing a deleted inventory item at the last audit.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.lowStock, m.dangling)
	return m
}

func (m *AuditMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *AuditMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), outcomeSuccess).Inc()
}

func (m *AuditMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), outcomeFailure).Inc()
}

// SetLowStock records the number of low stock items found.
func (m *AuditMetrics) SetLowStock(count int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(count))
}

// SetDangling records the number of dangling delivery records found.
func (m *AuditMetrics) SetDangling(count int64) {
	if m == nil || m.dangling == nil {
		return
	}
	m.dangling.Set(float64(count))
}
