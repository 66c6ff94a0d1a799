package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCreateTotal counts payment link creation outcomes.
	PaymentCreateTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts Return and IPN outcomes by endpoint.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentAnomalyTotal counts rejected or suspicious gateway callbacks.
	PaymentAnomalyTotal *prometheus.CounterVec
	// OrderStoreLatency records order store call latency in milliseconds.
	OrderStoreLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_create_total",
			Help:      "Count of payment link creation outcomes.",
		}, []string{"result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of gateway callbacks by endpoint and outcome.",
		}, []string{"endpoint", "result"})
		PaymentAnomalyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_anomaly_total",
			Help:      "Count of rejected gateway callbacks by kind.",
		}, []string{"kind"})
		OrderStoreLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_store_duration_ms",
			Help:      "Latency of order store operations in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"op", "result"})

		for _, c := range []struct {
			col   prometheus.Collector
			reuse func(prometheus.Collector)
		}{
			{PaymentCreateTotal, reuseCounterVec(&PaymentCreateTotal)},
			{PaymentCallbackTotal, reuseCounterVec(&PaymentCallbackTotal)},
			{PaymentAnomalyTotal, reuseCounterVec(&PaymentAnomalyTotal)},
			{OrderStoreLatency, reuseHistogramVec(&OrderStoreLatency)},
		} {
			mustRegisterCollector(reg, c.col, c.reuse)
		}
	})
}

func reuseCounterVec(target **prometheus.CounterVec) func(prometheus.Collector) {
	return func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			*target = v
		}
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
