package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartEventsTotal counts emitted cart events by topic.
	CartEventsTotal *prometheus.CounterVec
	// CartOperationsTotal counts cart service operations by outcome.
	CartOperationsTotal *prometheus.CounterVec
	// CartOperationLatency records service operation latency in milliseconds.
	CartOperationLatency *prometheus.HistogramVec
	// CatalogLookupsTotal counts remote catalog lookups by outcome.
	CatalogLookupsTotal *prometheus.CounterVec
	// CartCleanupDeleted counts carts removed by the housekeeping job.
	CartCleanupDeleted prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartEventsTotal = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_events_total",
			Help:      "Count of emitted cart events by topic.",
		}, []string{"topic"}))
		CartOperationsTotal = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Count of cart operations by outcome.",
		}, []string{"operation", "result"}))
		CartOperationLatency = mustRegister(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_operation_duration_ms",
			Help:      "Latency for cart operations in milliseconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"operation"}))
		CatalogLookupsTotal = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Count of remote catalog lookups by outcome.",
		}, []string{"result"}))
		CartCleanupDeleted = mustRegister(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_cleanup_deleted_total",
			Help:      "Number of carts deleted by the housekeeping job.",
		}))
	})
}

// ObserveCartOperation records the outcome and latency of a cart operation.
// It is a no-op until MustRegisterDomainMetrics has run.
func ObserveCartOperation(operation string, err error, millis float64) {
	if CartOperationsTotal == nil || CartOperationLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	CartOperationsTotal.WithLabelValues(operation, result).Inc()
	CartOperationLatency.WithLabelValues(operation).Observe(millis)
}
