package rotation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stepsTotal counts step invocations by step and result
	stepsTotal *prometheus.CounterVec

	// stepDuration observes how long each step takes
	stepDuration *prometheus.HistogramVec

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// InitMetrics registers rotation metrics with the default registry.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idrotate_rotation_steps_total",
			Help: "Total number of rotation step invocations by step and result",
		}, []string{"step", "result"})

		stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idrotate_rotation_step_duration_seconds",
			Help:    "Duration of rotation step invocations",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"})

		metricsRegistered.Store(true)
	})
}

// recordStep is safe to call even if metrics have not been initialized
func recordStep(step Step, result string, d time.Duration) {
	if !metricsRegistered.Load() {
		return
	}
	label := string(step)
	if !step.Valid() {
		label = "invalid"
	}
	stepsTotal.WithLabelValues(label, result).Inc()
	stepDuration.WithLabelValues(label).Observe(d.Seconds())
}

// GetStepsCounter returns the step counter vector for testing.
// Returns nil if metrics have not been initialized.
func GetStepsCounter() *prometheus.CounterVec {
	return stepsTotal
}
