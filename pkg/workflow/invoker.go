// Package workflow defines the port through which normalized Mercury events
// are handed to a workflow engine or event bus.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// EventTransaction is the event name used when a transaction is dispatched as an event.
const EventTransaction = "transaction"

// Invocation is a single request to run a workflow.
type Invocation struct {
	// Target names the workflow (or app) to run. It may be empty for
	// event-style dispatch where the consumer routes by Event.
	Target string

	// Event is the event name, EventTransaction for transaction webhooks.
	Event string

	// Transaction is the normalized event the invocation was built from.
	Transaction mercury.TransactionEvent

	// Inputs is the flat input mapping passed to the workflow.
	Inputs map[string]interface{}
}

// NewInvocation builds an invocation for a normalized transaction event.
func NewInvocation(target string, event mercury.TransactionEvent) Invocation {
	return Invocation{
		Target:      target,
		Event:       EventTransaction,
		Transaction: event,
		Inputs:      event.Inputs(),
	}
}

// Run identifies a started workflow run.
type Run struct {
	ID string
}

// Invoker starts workflow runs. Implementations return errors wrapping
// mercury.ErrDispatch and must not retry.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Run, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv Invocation) (Run, error)

// Invoke calls f(ctx, inv).
func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (Run, error) {
	return f(ctx, inv)
}

// DispatchError wraps err as a dispatch failure. The backend name becomes the
// reason code. A nil err yields nil.
func DispatchError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return mercury.NewError(mercury.ErrDispatch, backend, err)
}

// LogInvoker logs every invocation and reports a generated run id. It is
// meant for local development where no workflow engine is running.
type LogInvoker struct {
	Logger mercury.Logger
}

// NewLogInvoker creates a LogInvoker.
func NewLogInvoker(logger mercury.Logger) *LogInvoker {
	return &LogInvoker{Logger: mercury.LoggerOrNoop(logger)}
}

// Invoke implements Invoker.
func (l *LogInvoker) Invoke(ctx context.Context, inv Invocation) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, DispatchError("log", err)
	}
	run := Run{ID: uuid.NewString()}
	mercury.LoggerOrNoop(l.Logger).Info("workflow invoked",
		mercury.Field{Key: "target", Value: inv.Target},
		mercury.Field{Key: "event", Value: inv.Event},
		mercury.Field{Key: "event_id", Value: inv.Transaction.EventID},
		mercury.Field{Key: "transaction_id", Value: inv.Transaction.TransactionID},
		mercury.Field{Key: "run_id", Value: run.ID},
	)
	return run, nil
}

// Envelope is the message body published by event-bus invokers.
type Envelope struct {
	MessageID  string                 `json:"message_id"`
	Event      string                 `json:"event"`
	Target     string                 `json:"target,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Inputs     map[string]interface{} `json:"inputs"`
}

// NewEnvelope wraps inv in an Envelope with a fresh message id.
func NewEnvelope(inv Invocation) Envelope {
	return Envelope{
		MessageID:  uuid.NewString(),
		Event:      inv.Event,
		Target:     inv.Target,
		OccurredAt: time.Now().UTC(),
		Inputs:     inv.Inputs,
	}
}

// PartitionKey returns the key events for the same transaction share.
func (inv Invocation) PartitionKey() string {
	if inv.Transaction.TransactionID != "" {
		return inv.Transaction.TransactionID
	}
	return inv.Transaction.EventID
}
