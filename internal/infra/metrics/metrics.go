// Package metrics exposes subscription operation outcomes to prometheus.
package metrics

import (
	"time"

	"salon-billing/internal/domain/subscriptions"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer implements subscriptions.Observer.
type Observer struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_operations_total",
				Help: "Subscription operations by outcome code",
			},
			[]string{"operation", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subscription_operation_duration_seconds",
				Help:    "Subscription operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	for _, c := range []prometheus.Collector{o.operations, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) Observe(operation string, code subscriptions.Code, elapsed time.Duration) {
	label := string(code)
	if label == "" {
		label = "OK"
	}
	o.operations.WithLabelValues(operation, label).Inc()
	o.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
