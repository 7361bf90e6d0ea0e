package connectivity

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	endpointStatus  *prometheus.GaugeVec
	endpointLatency *prometheus.HistogramVec
	endpointChecks  *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// InitMetrics registers connectivity metrics with the default registry
func InitMetrics() {
	metricsOnce.Do(func() {
		endpointStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idrotate_connectivity_endpoint_status",
			Help: "1 if the endpoint was reachable on the last check, 0 otherwise",
		}, []string{"endpoint", "protocol", "critical"})

		endpointLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idrotate_connectivity_endpoint_latency_seconds",
			Help:    "Latency of successful connectivity checks",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"endpoint", "protocol"})

		endpointChecks = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idrotate_connectivity_checks_total",
			Help: "Connectivity checks by endpoint, result and error code",
		}, []string{"endpoint", "protocol", "result", "error_code"})

		metricsRegistered.Store(true)
	})
}

func recordCheck(r Result) {
	if !metricsRegistered.Load() {
		return
	}

	endpoint := Target{Host: r.Host, Port: r.Port}.Address()
	protocol := string(r.Protocol)

	status := 0.0
	result := "failure"
	if r.Success {
		status = 1
		result = "success"
		endpointLatency.WithLabelValues(endpoint, protocol).Observe(float64(r.LatencyMs) / 1000)
	}
	endpointStatus.WithLabelValues(endpoint, protocol, strconv.FormatBool(r.Critical)).Set(status)
	endpointChecks.WithLabelValues(endpoint, protocol, result, r.ErrorCode).Inc()
}

// GetChecksCounter returns the check counter vector for testing.
// Returns nil if metrics have not been initialized.
func GetChecksCounter() *prometheus.CounterVec {
	return endpointChecks
}
