// Package prommetrics implements mercury.Metrics using Prometheus.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements mercury.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal    *prometheus.CounterVec
	webhookDuration       *prometheus.HistogramVec
	webhookErrorsTotal    *prometheus.CounterVec
	verificationsTotal    *prometheus.CounterVec
	dispatchTotal         *prometheus.CounterVec
	dispatchDuration      *prometheus.HistogramVec
	apiCallsTotal         *prometheus.CounterVec
	apiCallDuration       *prometheus.HistogramVec
	storageOpsDuration    *prometheus.HistogramVec
	storageOpsErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "webhook_events_total",
			Help:      "Total number of Mercury webhook requests by outcome.",
		}, []string{"mode", "outcome"}),

		webhookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"mode", "error_type"}),

		verificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "signature_verifications_total",
			Help:      "Total number of signature checks by result.",
		}, []string{"status"}),

		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "dispatch_total",
			Help:      "Total number of workflow invocations.",
		}, []string{"backend", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of workflow invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "api_calls_total",
			Help:      "Total number of Mercury banking API calls.",
		}, []string{"endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of Mercury banking API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of subscription store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mercury",
			Name:      "storage_operation_errors_total",
			Help:      "Total number of subscription store errors.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordWebhookEvent(mode, outcome string) {
	m.webhookEventsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) RecordWebhookDuration(mode string, duration time.Duration) {
	m.webhookDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(mode, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(mode, errorType).Inc()
}

func (m *Metrics) RecordVerification(status string) {
	m.verificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDispatch(backend, status string) {
	m.dispatchTotal.WithLabelValues(backend, status).Inc()
}

func (m *Metrics) RecordDispatchDuration(backend string, duration time.Duration) {
	m.dispatchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *Metrics) RecordAPICall(endpoint, status string) {
	m.apiCallsTotal.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
