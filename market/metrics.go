package market

import "github.com/prometheus/client_golang/prometheus"

// MetricsRecorder is the side-channel metrics sink an Engine may report to.
// No operation's return value or error ever depends on whether a recorder
// is attached.
type MetricsRecorder interface {
	RecordOperation(op string, outcome string)
	RecordRateLimiterRejection(scope string)
	RecordUtilization(reserveID string, utilization float64)
}

// PrometheusMetrics is the concrete MetricsRecorder backing production
// deployments, registered against a caller-supplied prometheus.Registerer.
type PrometheusMetrics struct {
	operations       *prometheus.CounterVec
	rateLimiterStops *prometheus.CounterVec
	utilization      *prometheus.GaugeVec
}

// NewPrometheusMetrics builds and registers the engine's metrics against reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending_engine",
			Name:      "operations_total",
			Help:      "Count of market operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		rateLimiterStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending_engine",
			Name:      "rate_limiter_rejections_total",
			Help:      "Count of operations rejected by a rate limiter, by scope.",
		}, []string{"scope"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending_engine",
			Name:      "reserve_utilization_ratio",
			Help:      "Current utilization rate per reserve.",
		}, []string{"reserve_id"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.rateLimiterStops, m.utilization} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordOperation(op string, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *PrometheusMetrics) RecordRateLimiterRejection(scope string) {
	m.rateLimiterStops.WithLabelValues(scope).Inc()
}

func (m *PrometheusMetrics) RecordUtilization(reserveID string, utilization float64) {
	m.utilization.WithLabelValues(reserveID).Set(utilization)
}

// noopMetrics is used when an Engine has no recorder attached.
type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string)    {}
func (noopMetrics) RecordRateLimiterRejection(string) {}
func (noopMetrics) RecordUtilization(string, float64) {}
