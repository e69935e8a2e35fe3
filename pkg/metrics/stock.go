package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "stockroom"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// StockMetrics counts catalog and delivery ledger activity.
type StockMetrics struct {
	ingested      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	movedUnits    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	barcodeRetry  prometheus.Counter
}

// NewStockMetrics registers stock metrics on reg. A nil registerer yields a no-op collector.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	m := &StockMetrics{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_ingested_items_total",
			Help:      "Catalog ingestion results per SKU, by result (created, incremented).",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_operations_total",
			Help:      "Delivery ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		movedUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_units_moved_total",
			Help:      "Stock units moved by direction (out, in).",
		}, []string{"direction"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_compensations_total",
			Help:      "Compensating writes issued after a partial delivery failure, by outcome.",
		}, []string{"outcome"}),
		barcodeRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barcode_collisions_total",
			Help:      "Generated barcodes rejected because they were already in use.",
		}),
	}
	reg.MustRegister(m.ingested, m.deliveries, m.movedUnits, m.compensations, m.barcodeRetry)
	return m
}

// Ingested records one created or incremented SKU.
func (m *StockMetrics) Ingested(result string) {
	if m == nil || m.ingested == nil {
		return
	}
	m.ingested.WithLabelValues(normalizeLabel(result)).Inc()
}

// Delivery records the outcome of a delivery operation.
func (m *StockMetrics) Delivery(operation string, err error) {
	if m == nil || m.deliveries == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.deliveries.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// UnitsOut records stock leaving inventory.
func (m *StockMetrics) UnitsOut(n int) {
	m.moved("out", n)
}

// UnitsIn records stock returning to inventory.
func (m *StockMetrics) UnitsIn(n int) {
	m.moved("in", n)
}

func (m *StockMetrics) moved(direction string, n int) {
	if m == nil || m.movedUnits == nil || n <= 0 {
		return
	}
	m.movedUnits.WithLabelValues(direction).Add(float64(n))
}

// Compensation records a compensating write and whether it succeeded.
func (m *StockMetrics) Compensation(err error) {
	if m == nil || m.compensations == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.compensations.WithLabelValues(outcome).Inc()
}

// BarcodeCollision records a generated barcode that was already taken.
func (m *StockMetrics) BarcodeCollision() {
	if m == nil || m.barcodeRetry == nil {
		return
	}
	m.barcodeRetry.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
