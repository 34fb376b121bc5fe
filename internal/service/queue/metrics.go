package queue

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce   sync.Once
	sharedMetrics *queueMetrics
)

type queueMetrics struct {
	jobs        *prometheus.CounterVec
	jobDuration prometheus.Histogram
	polls       prometheus.Counter
	permits     prometheus.Gauge
	inFlight    prometheus.Gauge
}

func loadMetrics() *queueMetrics {
	metricsOnce.Do(func() {
		sharedMetrics = &queueMetrics{
			jobs: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sites",
				Subsystem: "queue",
				Name:      "jobs_total",
				Help:      "Deployment jobs by outcome",
			}, []string{"outcome"})),
			jobDuration: register(prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "sites",
				Subsystem: "queue",
				Name:      "job_duration_seconds",
				Help:      "Wall time of deployment jobs including semaphore wait",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
			})),
			polls: register(prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sites",
				Subsystem: "queue",
				Name:      "deploy_polls_total",
				Help:      "Deploy status polls issued to the hosting provider",
			})),
			permits: register(prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sites",
				Subsystem: "queue",
				Name:      "deploy_permits",
				Help:      "Configured number of concurrent deployments",
			})),
			inFlight: register(prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sites",
				Subsystem: "queue",
				Name:      "deploys_in_flight",
				Help:      "Deployments currently holding a permit",
			})),
		}
	})
	return sharedMetrics
}

// register reuses an already registered collector of the same shape.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
