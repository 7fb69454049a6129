package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestPrometheusMetrics_ImplementsInterface(t *testing.T) {
	var _ mercury.Metrics = NewMetrics(prometheus.NewRegistry(), "test")
}

func TestPrometheusMetrics_RecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("workflow", "dispatched")
	metrics.RecordWebhookEvent("workflow", "dispatched")
	metrics.RecordWebhookEvent("workflow", "ignored")

	mf := gatherFamily(t, reg, "test_mercury_webhook_events_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		want := 1.0
		if labelValue(m, "outcome") == "dispatched" {
			want = 2
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("outcome=%s: got %v, want %v", labelValue(m, "outcome"), got, want)
		}
	}
}

func TestPrometheusMetrics_RecordVerification(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordVerification("rejected")

	mf := gatherFamily(t, reg, "test_mercury_signature_verifications_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "status") != "rejected" || m.GetCounter().GetValue() != 1 {
		t.Errorf("unexpected sample: %v", m)
	}
}

func TestPrometheusMetrics_Durations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookDuration("event", 20*time.Millisecond)
	metrics.RecordDispatchDuration("temporal", 50*time.Millisecond)
	metrics.RecordAPICallDuration("accounts", 100*time.Millisecond)

	for _, name := range []string{
		"test_mercury_webhook_processing_duration_seconds",
		"test_mercury_dispatch_duration_seconds",
		"test_mercury_api_call_duration_seconds",
	} {
		mf := gatherFamily(t, reg, name)
		if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
			t.Errorf("%s: sample count = %d, want 1", name, got)
		}
	}
}

func TestPrometheusMetrics_ErrorsAndDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookError("workflow", "signature_mismatch")
	metrics.RecordDispatch("kafka", "error")
	metrics.RecordAPICall("transaction", "404")

	gatherFamily(t, reg, "test_mercury_webhook_errors_total")
	gatherFamily(t, reg, "test_mercury_dispatch_total")
	gatherFamily(t, reg, "test_mercury_api_calls_total")
}

func TestPrometheusMetrics_RecordStorageOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordStorageOperation("get", 5*time.Millisecond, nil)
	metrics.RecordStorageOperation("put", 5*time.Millisecond, errors.New("connection refused"))

	mf := gatherFamily(t, reg, "test_mercury_storage_operation_errors_total")
	if len(mf.GetMetric()) != 1 || labelValue(mf.GetMetric()[0], "operation") != "put" {
		t.Errorf("expected a single error sample for put, got %v", mf.GetMetric())
	}

	mf = gatherFamily(t, reg, "test_mercury_storage_operation_duration_seconds")
	if len(mf.GetMetric()) != 2 {
		t.Errorf("expected durations for get and put, got %d", len(mf.GetMetric()))
	}
}

func TestPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "test")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg, "test")
}
