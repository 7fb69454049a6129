package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/tools"
	"github.com/mihaimyh/gomercury/pkg/webhook"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

// echoTool returns its parameters as one JSON message.
type echoTool struct{}

func (echoTool) Name() string { return "echo" }

func (echoTool) Invoke(_ context.Context, _ tools.Credentials, params map[string]interface{}) ([]tools.Message, error) {
	return []tools.Message{tools.JSONMessage(params)}, nil
}

func newWebhook(t *testing.T, target string) http.Handler {
	t.Helper()
	h, err := webhook.NewHandler(webhook.Config{
		Resolver: webhook.StaticResolver(mercury.Binding{Target: target}),
		Invoker: workflow.InvokerFunc(func(context.Context, workflow.Invocation) (workflow.Run, error) {
			return workflow.Run{ID: "run-1"}, nil
		}),
	})
	require.NoError(t, err)
	return h
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

const txnBody = `{"id":"evt_1","resourceType":"transaction","operationType":"created","resourceId":"txn_1","mergePatch":{"amount":-5}}`

func TestPlugin_Endpoints(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.RegisterEndpoint("mercury", newWebhook(t, "reconcile")))
	assert.Error(t, p.RegisterEndpoint("mercury", newWebhook(t, "other")))
	assert.Error(t, p.RegisterEndpoint(" ", newWebhook(t, "other")))
	h := p.Handler()

	rec := serve(h, http.MethodPost, "/endpoints/mercury", txnBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","workflow_run_id":"run-1"}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/endpoints/mercury/sub-1", txnBody)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodPost, "/endpoints/unknown", txnBody)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/endpoints/mercury", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPlugin_RegisterAfterHandler(t *testing.T) {
	p := New(Config{})
	h := p.Handler()
	require.NoError(t, p.RegisterEndpoint("late", newWebhook(t, "reconcile")))

	rec := serve(h, http.MethodPost, "/endpoints/late", txnBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlugin_Tools(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.RegisterTool(echoTool{}))
	h := p.Handler()

	rec := serve(h, http.MethodPost, "/tools/echo", `{"credentials":{},"parameters":{"x":"y"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tools.InvokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo", resp.Tool)
	require.Len(t, resp.Messages, 1)

	rec = serve(h, http.MethodPost, "/tools/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"echo"}, p.Tools())
}

func TestPlugin_ValidateNotConfigured(t *testing.T) {
	rec := serve(New(Config{}).Handler(), http.MethodPost, "/provider/validate", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlugin_SubscriptionsNotConfigured(t *testing.T) {
	rec := serve(New(Config{}).Handler(), http.MethodGet, "/subscriptions/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "subscriptions not configured")
}

func TestPlugin_Health(t *testing.T) {
	p := New(Config{Name: "mercury-test"})
	require.NoError(t, p.RegisterEndpoint("mercury", newWebhook(t, "reconcile")))
	h := p.Handler()

	rec := serve(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mercury-test", resp.Plugin)
	assert.Equal(t, []string{"mercury"}, resp.Endpoints)

	p.AddHealthCheck("store", func(context.Context) error { return errors.New("connection refused") })
	rec = serve(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"connection refused"`)
}

func TestPlugin_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	rec := serve(New(Config{MetricsHandler: metrics}).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = serve(New(Config{}).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlugin_RequestID(t *testing.T) {
	var seen string
	p := New(Config{})
	require.NoError(t, p.RegisterEndpoint("probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})))
	h := p.Handler()

	rec := serve(h, http.MethodPost, "/endpoints/probe", "")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodPost, "/endpoints/probe", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestPlugin_RecoversPanics(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.RegisterEndpoint("boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := serve(p.Handler(), http.MethodPost, "/endpoints/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
