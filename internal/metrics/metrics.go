package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domino",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by app, operation and resulting status.",
		},
		[]string{"app", "operation", "status"},
	)
	operationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "domino",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 180, 300},
		},
		[]string{"app", "operation"},
	)
	healthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domino",
			Subsystem: "healthcheck",
			Name:      "attempts_total",
			Help:      "Health check attempts by app and outcome.",
		},
		[]string{"app", "result"},
	)
	appStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "domino",
			Subsystem: "app",
			Name:      "status",
			Help:      "Last lifecycle status of the app (1 for the current status).",
		},
		[]string{"app", "status"},
	)
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(operations, operationSeconds, healthAttempts, appStatus)
	})
}

// ObserveOperation records one finished lifecycle operation.
func ObserveOperation(app, operation, status string, took time.Duration) {
	operations.WithLabelValues(app, operation, status).Inc()
	operationSeconds.WithLabelValues(app, operation).Observe(took.Seconds())
}

// SetStatus marks status as the current one for app, clearing the previous.
func SetStatus(app, previous, status string) {
	if previous != "" && previous != status {
		appStatus.WithLabelValues(app, previous).Set(0)
	}
	appStatus.WithLabelValues(app, status).Set(1)
}

func ObserveHealthAttempt(app string, healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	healthAttempts.WithLabelValues(app, result).Inc()
}
