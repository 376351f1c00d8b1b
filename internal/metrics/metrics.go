package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess           = "success"
	ResultDuplicate         = "duplicate"
	ResultInsufficientStock = "insufficient_stock"
	ResultRejected          = "rejected"
	ResultError             = "error"
	ResultPartial           = "partial"
)

// POSMetrics records checkout, receiving and stock adjustment outcomes. A nil
// *POSMetrics is valid and records nothing.
type POSMetrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	receipts         *prometheus.CounterVec
	adjustments      *prometheus.CounterVec
}

// NewPOSMetrics registers the POS metrics on the provided registerer.
func NewPOSMetrics(reg prometheus.Registerer) *POSMetrics {
	if reg == nil {
		return &POSMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outletpos_checkout_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outletpos_checkout_duration_seconds",
		Help:    "Duration of checkout processing in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outletpos_purchase_order_receive_total",
		Help: "Purchase order receipts by result.",
	}, []string{"result"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outletpos_stock_adjust_total",
		Help: "Manual stock adjustments by mode.",
	}, []string{"mode"})
	reg.MustRegister(checkouts, checkoutDuration, receipts, adjustments)
	return &POSMetrics{
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		receipts:         receipts,
		adjustments:      adjustments,
	}
}

func (m *POSMetrics) ObserveCheckout(result string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

func (m *POSMetrics) IncReceive(result string) {
	if m == nil || m.receipts == nil {
		return
	}
	m.receipts.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *POSMetrics) IncStockAdjust(mode string) {
	if m == nil || m.adjustments == nil {
		return
	}
	m.adjustments.WithLabelValues(normalizeLabel(mode)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
