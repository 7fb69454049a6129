package mercury

import "time"

// Metrics defines the interface for tracking webhook, dispatch and banking API operations.
// All methods are optional - components fall back to NoopMetrics when nil.
type Metrics interface {
	// RecordWebhookEvent records a processed webhook request.
	// outcome: "dispatched", "ignored" or "error"
	RecordWebhookEvent(mode, outcome string)

	// RecordWebhookDuration records how long it took to process a webhook.
	RecordWebhookDuration(mode string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: a reason code such as "signature_mismatch" or "invalid_json"
	RecordWebhookError(mode, errorType string)

	// RecordVerification records a signature verification result.
	// status: "verified", "rejected" or "skipped"
	RecordVerification(status string)

	// RecordDispatch records a workflow invocation.
	// status: "success" or "error"
	RecordDispatch(backend, status string)

	// RecordDispatchDuration records how long a workflow invocation took.
	RecordDispatchDuration(backend string, duration time.Duration)

	// RecordAPICall records a call to the banking API.
	// status: HTTP status code as string, or "network_error"
	RecordAPICall(endpoint, status string)

	// RecordAPICallDuration records how long a banking API call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)

	// RecordStorageOperation records a subscription store operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookDuration(_ string, _ time.Duration)           {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                            {}
func (n *NoopMetrics) RecordVerification(_ string)                               {}
func (n *NoopMetrics) RecordDispatch(_, _ string)                                {}
func (n *NoopMetrics) RecordDispatchDuration(_ string, _ time.Duration)          {}
func (n *NoopMetrics) RecordAPICall(_, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration)           {}
func (n *NoopMetrics) RecordStorageOperation(_ string, _ time.Duration, _ error) {}

// MetricsOrNoop returns m, or a NoopMetrics when m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return &NoopMetrics{}
	}
	return m
}
