// Package temporal starts a Temporal workflow for every dispatched transaction.
package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

const (
	backendName             = "temporal"
	defaultWorkflowIDPrefix = "mercury-"
)

// Starter is the subset of client.Client the invoker needs.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Config configures an Invoker.
type Config struct {
	// Client starts workflows. Required; usually a client.Client from Dial.
	Client Starter

	// TaskQueue the workflow worker polls. Required.
	TaskQueue string

	// WorkflowIDPrefix is prepended to the Mercury event id to form the
	// workflow id, so redeliveries of the same event map to one execution.
	// Defaults to "mercury-".
	WorkflowIDPrefix string

	Logger mercury.Logger
}

// Invoker implements workflow.Invoker on Temporal. The invocation target is
// the workflow type name; the inputs map is the single workflow argument.
type Invoker struct {
	client    Starter
	taskQueue string
	idPrefix  string
	logger    mercury.Logger
}

// New creates an Invoker.
func New(cfg Config) (*Invoker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: temporal client is required", mercury.ErrConfig)
	}
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("%w: temporal task queue is required", mercury.ErrConfig)
	}
	prefix := cfg.WorkflowIDPrefix
	if prefix == "" {
		prefix = defaultWorkflowIDPrefix
	}
	return &Invoker{
		client:    cfg.Client,
		taskQueue: cfg.TaskQueue,
		idPrefix:  prefix,
		logger:    mercury.LoggerOrNoop(cfg.Logger),
	}, nil
}

// Invoke implements workflow.Invoker.
func (i *Invoker) Invoke(ctx context.Context, inv workflow.Invocation) (workflow.Run, error) {
	if inv.Target == "" {
		return workflow.Run{}, workflow.DispatchError(backendName, errors.New("workflow type is empty"))
	}

	opts := client.StartWorkflowOptions{
		ID:        i.workflowID(inv),
		TaskQueue: i.taskQueue,
	}
	run, err := i.client.ExecuteWorkflow(ctx, opts, inv.Target, inv.Inputs)
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, err)
	}

	i.logger.Debug("temporal workflow started",
		mercury.Field{Key: "workflow_id", Value: run.GetID()},
		mercury.Field{Key: "run_id", Value: run.GetRunID()},
		mercury.Field{Key: "workflow_type", Value: inv.Target},
	)
	return workflow.Run{ID: run.GetRunID()}, nil
}

func (i *Invoker) workflowID(inv workflow.Invocation) string {
	if id := inv.Transaction.EventID; id != "" {
		return i.idPrefix + id
	}
	return i.idPrefix + uuid.NewString()
}

// Dial connects to a Temporal frontend, logging through logger.
func Dial(hostPort, namespace string, logger mercury.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", hostPort, err)
	}
	return c, nil
}
