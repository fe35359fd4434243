package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations by outcome ("ok" or the
	// rejection class).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kobopay_ledger_operations_total",
		Help: "Ledger engine operations",
	}, []string{"operation", "outcome"})

	// OperationDuration observes engine operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kobopay_ledger_operation_duration_seconds",
		Help:    "Ledger engine operation latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	// SettlementsTotal counts withdrawal settlements by terminal outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kobopay_withdrawal_settlements_total",
		Help: "Withdrawal settlement outcomes",
	}, []string{"outcome"})
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records one engine operation.
func Observe(operation string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}
