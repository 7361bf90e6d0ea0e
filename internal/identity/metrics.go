package identity

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// authenticationsTotal counts calls to the provider's token endpoints
	authenticationsTotal *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// InitMetrics registers identity metrics with the default registry.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		authenticationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idrotate_identity_authentications_total",
			Help: "Total number of identity provider authentications by variant and result",
		}, []string{"variant", "result"})
		metricsRegistered.Store(true)
	})
}

// recordAuthentication is safe to call even if metrics have not been initialized
func recordAuthentication(variant Variant, err error) {
	if !metricsRegistered.Load() {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	authenticationsTotal.WithLabelValues(string(variant), result).Inc()
}

// GetAuthenticationsCounter returns the counter vector for testing.
// Returns nil if metrics have not been initialized.
func GetAuthenticationsCounter() *prometheus.CounterVec {
	return authenticationsTotal
}
