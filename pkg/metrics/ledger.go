package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LedgerOpReserve  = "reserve"
	LedgerOpRelease  = "release"
	LedgerOpDecrease = "decrease"
	LedgerOpSync     = "sync"

	ResultOK           = "ok"
	ResultInsufficient = "insufficient"
	ResultError        = "error"
)

// LedgerMetrics counts stock ledger adjustments by operation and outcome.
type LedgerMetrics struct {
	ops   *prometheus.CounterVec
	drift prometheus.Counter
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Stock ledger adjustments by operation and result.",
	}, []string{"op", "result"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_reserved_drift_total",
		Help:      "Products whose reserved counter was repaired by the reconciler.",
	})
	reg.MustRegister(ops, drift)
	return &LedgerMetrics{ops: ops, drift: drift}
}

// Observe records one adjustment. A nil receiver is a no-op.
func (l *LedgerMetrics) Observe(op, result string) {
	if l == nil || l.ops == nil {
		return
	}
	l.ops.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}

// ObserveDrift adds repaired products to the drift counter.
func (l *LedgerMetrics) ObserveDrift(repaired int) {
	if l == nil || l.drift == nil || repaired <= 0 {
		return
	}
	l.drift.Add(float64(repaired))
}
