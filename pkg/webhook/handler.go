// Package webhook serves Mercury webhook deliveries: it verifies the
// signature, parses and filters the payload, normalizes transactions and
// hands them to a workflow.Invoker, answering every request synchronously.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/webhook/internal"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

// Outcome classifies a successfully handled delivery.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeIgnored    Outcome = "ignored"
)

const (
	ignoredReason       = "not a transaction"
	redactedDispatchMsg = "workflow dispatch failed"
)

// Result is what Process produced for a delivery that did not fail.
type Result struct {
	Outcome Outcome
	Event   mercury.TransactionEvent
	Run     workflow.Run
}

type ignoredResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type successResponse struct {
	Status        string `json:"status"`
	WorkflowRunID string `json:"workflow_run_id"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// Handler is an http.Handler for Mercury webhook deliveries. It holds no
// per-request state and is safe for concurrent use.
type Handler struct {
	config  Config
	logger  mercury.Logger
	metrics mercury.Metrics
	limiter *internal.RateLimiter
}

// NewHandler validates cfg and builds a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Handler{
		config:  cfg,
		logger:  mercury.LoggerOrNoop(cfg.Logger),
		metrics: mercury.MetricsOrNoop(cfg.Metrics),
	}
	if cfg.RateLimit > 0 {
		h.limiter = internal.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		h.limiter.TrustProxyHeaders = cfg.TrustProxyHeaders
	}
	return h, nil
}

// Mode returns the configured acknowledgement mode.
func (h *Handler) Mode() Mode {
	return h.config.Mode
}

// RunLimiterCleanup drops expired rate-limit buckets every interval until ctx
// is done. It returns at once when rate limiting is disabled.
func (h *Handler) RunLimiterCleanup(ctx context.Context, interval time.Duration) {
	if h.limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.limiter.Cleanup()
		}
	}
}

// ServeHTTP implements http.Handler, applying the rate limiter when configured.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		h.serve(w, r)
		return
	}
	h.limiter.Middleware(http.HandlerFunc(h.serve), func(ip string) {
		h.metrics.RecordWebhookError(string(h.config.Mode), "rate_limited")
		h.logger.Warn("webhook rate limited", mercury.Field{Key: "client_ip", Value: ip})
	}).ServeHTTP(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	mode := string(h.config.Mode)
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		_ = internal.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		h.metrics.RecordWebhookError(mode, "method_not_allowed")
		return
	}

	body, err := internal.ReadBody(w, r, h.config.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			_ = internal.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			h.metrics.RecordWebhookError(mode, "payload_too_large")
		} else {
			_ = internal.WriteError(w, http.StatusBadRequest, "failed to read body")
			h.metrics.RecordWebhookError(mode, "read_failed")
		}
		h.logger.Warn("webhook body rejected", mercury.Field{Key: "error", Value: err})
		return
	}

	binding, err := h.config.Resolver.Resolve(r.Context(), r)
	if err != nil {
		h.writeFailure(w, err, start)
		return
	}

	req := mercury.NewRequest(r.Method, r.Header, body)
	res, err := h.Process(r.Context(), req, binding)
	if err != nil {
		h.writeFailure(w, err, start)
		return
	}

	switch {
	case res.Outcome == OutcomeIgnored:
		_ = internal.WriteJSON(w, http.StatusOK, ignoredResponse{Status: "ignored", Reason: ignoredReason})
	case h.config.Mode == ModeEvent:
		_ = internal.WriteJSON(w, http.StatusOK, ackResponse{Status: "ok"})
	default:
		_ = internal.WriteJSON(w, http.StatusOK, successResponse{Status: "success", WorkflowRunID: res.Run.ID})
	}
	h.metrics.RecordWebhookEvent(mode, string(res.Outcome))
	h.metrics.RecordWebhookDuration(mode, time.Since(start))
}

// Process runs the delivery pipeline for an already captured request:
// verify, parse, filter, normalize and dispatch. Errors wrap one of
// mercury.ErrAuth, ErrPayload, ErrConfig or ErrDispatch.
func (h *Handler) Process(ctx context.Context, req *mercury.Request, binding mercury.Binding) (Result, error) {
	v := req.Verify(binding.Secret)
	h.metrics.RecordVerification(v.Status.String())
	switch v.Status {
	case mercury.VerificationRejected:
		h.logger.Warn("webhook signature rejected", mercury.Field{Key: "reason", Value: v.Reason})
		return Result{}, v.Err()
	case mercury.VerificationSkipped:
		h.logger.Debug("webhook signature check skipped: no secret configured")
	default:
		h.logger.Debug("webhook signature verified")
	}

	payload, err := req.Payload()
	if err != nil {
		h.logger.Warn("webhook payload rejected", mercury.Field{Key: "error", Value: err})
		return Result{}, err
	}

	if !payload.IsTransaction() {
		h.logger.Info("webhook ignored",
			mercury.Field{Key: "event_id", Value: payload.ID},
			mercury.Field{Key: "resource_type", Value: payload.ResourceType},
		)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	if binding.Target == "" && h.config.Mode == ModeWorkflow {
		h.logger.Error("webhook has no target workflow configured", mercury.Field{Key: "event_id", Value: payload.ID})
		return Result{}, mercury.NewError(mercury.ErrConfig, mercury.ReasonMissingTarget, nil)
	}

	event := mercury.Normalize(payload)
	h.logger.Debug("webhook normalized",
		mercury.Field{Key: "event_id", Value: event.EventID},
		mercury.Field{Key: "transaction_id", Value: event.TransactionID},
		mercury.Field{Key: "operation_type", Value: event.OperationType},
	)

	run, err := h.dispatch(ctx, workflow.NewInvocation(binding.Target, event))
	if err != nil {
		return Result{Event: event}, err
	}

	h.logger.Info("webhook dispatched",
		mercury.Field{Key: "event_id", Value: event.EventID},
		mercury.Field{Key: "transaction_id", Value: event.TransactionID},
		mercury.Field{Key: "target", Value: binding.Target},
		mercury.Field{Key: "run_id", Value: run.ID},
	)
	return Result{Outcome: OutcomeDispatched, Event: event, Run: run}, nil
}

func (h *Handler) dispatch(ctx context.Context, inv workflow.Invocation) (workflow.Run, error) {
	backend := h.config.Backend
	ctx, cancel := context.WithTimeout(ctx, h.config.DispatchTimeout)
	defer cancel()

	start := time.Now()
	run, err := h.config.Invoker.Invoke(ctx, inv)
	h.metrics.RecordDispatchDuration(backend, time.Since(start))
	if err != nil {
		h.metrics.RecordDispatch(backend, "error")
		if !errors.Is(err, mercury.ErrDispatch) {
			err = workflow.DispatchError(backend, err)
		}
		h.logger.Error("workflow dispatch failed",
			mercury.Field{Key: "backend", Value: backend},
			mercury.Field{Key: "target", Value: inv.Target},
			mercury.Field{Key: "event_id", Value: inv.Transaction.EventID},
			mercury.Field{Key: "error", Value: err},
		)
		return workflow.Run{}, err
	}
	h.metrics.RecordDispatch(backend, "success")
	return run, nil
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error, start time.Time) {
	mode := string(h.config.Mode)
	code, msg := h.statusFor(err)
	_ = internal.WriteError(w, code, msg)

	errorType := mercury.ReasonOf(err)
	if errorType == "" || errors.Is(err, mercury.ErrDispatch) {
		errorType = errorTypeFor(err)
	}
	h.metrics.RecordWebhookError(mode, errorType)
	h.metrics.RecordWebhookEvent(mode, "error")
	h.metrics.RecordWebhookDuration(mode, time.Since(start))
}

// statusFor maps a pipeline error to its HTTP status and response message.
func (h *Handler) statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, mercury.ErrAuth):
		return http.StatusUnauthorized, "unauthorized: " + mercury.ReasonOf(err)
	case errors.Is(err, mercury.ErrPayload):
		return http.StatusBadRequest, "invalid payload: " + mercury.ReasonOf(err)
	case errors.Is(err, mercury.ErrSubscriptionNotFound):
		return http.StatusNotFound, "subscription not found"
	case errors.Is(err, mercury.ErrConfig):
		return http.StatusInternalServerError, "no target workflow configured"
	case errors.Is(err, mercury.ErrDispatch):
		if h.config.RedactErrors {
			return http.StatusInternalServerError, redactedDispatchMsg
		}
		return http.StatusInternalServerError, err.Error()
	default:
		h.logger.Error("webhook binding lookup failed", mercury.Field{Key: "error", Value: err})
		return http.StatusInternalServerError, "internal error"
	}
}

func errorTypeFor(err error) string {
	switch {
	case errors.Is(err, mercury.ErrDispatch):
		return "dispatch_failed"
	case errors.Is(err, mercury.ErrSubscriptionNotFound):
		return "subscription_not_found"
	default:
		return "internal"
	}
}
