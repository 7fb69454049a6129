// Package rabbitmq publishes dispatched transactions to a RabbitMQ exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

const (
	backendName       = "rabbitmq"
	defaultRoutingKey = "mercury.transaction"
)

// Channel is the subset of *amqp.Channel the invoker needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config configures an Invoker.
type Config struct {
	// Exchange to publish to. Empty means the default exchange, in which
	// case RoutingKey is the queue name.
	Exchange string

	// RoutingKey defaults to the invocation target, then "mercury.transaction".
	RoutingKey string

	Logger mercury.Logger
}

// Invoker implements workflow.Invoker by publishing a persistent JSON message.
// The message id doubles as the run id.
type Invoker struct {
	ch     Channel
	conn   *amqp.Connection
	config Config
	logger mercury.Logger
}

// Dial opens a connection and channel to url. When queue is not empty it is
// declared durable so messages published through the default exchange are kept.
func Dial(url, queue string, cfg Config) (*Invoker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if queue != "" {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if cfg.Exchange == "" && cfg.RoutingKey == "" {
			cfg.RoutingKey = queue
		}
	}
	inv := NewWithChannel(ch, cfg)
	inv.conn = conn
	return inv, nil
}

// NewWithChannel allows injecting a test channel.
func NewWithChannel(ch Channel, cfg Config) *Invoker {
	return &Invoker{ch: ch, config: cfg, logger: mercury.LoggerOrNoop(cfg.Logger)}
}

// Invoke implements workflow.Invoker.
func (i *Invoker) Invoke(ctx context.Context, inv workflow.Invocation) (workflow.Run, error) {
	env := workflow.NewEnvelope(inv)
	body, err := json.Marshal(env)
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("marshal envelope: %w", err))
	}

	key := i.routingKey(inv)
	err = i.ch.PublishWithContext(ctx, i.config.Exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.MessageID,
		CorrelationId: inv.Transaction.EventID,
		Type:          env.Event,
		Timestamp:     env.OccurredAt,
		Headers:       amqp.Table{"target": env.Target, "transaction_id": inv.Transaction.TransactionID},
		Body:          body,
	})
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, err)
	}

	i.logger.Debug("rabbitmq message published",
		mercury.Field{Key: "message_id", Value: env.MessageID},
		mercury.Field{Key: "exchange", Value: i.config.Exchange},
		mercury.Field{Key: "routing_key", Value: key},
	)
	return workflow.Run{ID: env.MessageID}, nil
}

func (i *Invoker) routingKey(inv workflow.Invocation) string {
	switch {
	case i.config.RoutingKey != "":
		return i.config.RoutingKey
	case inv.Target != "":
		return inv.Target
	default:
		return defaultRoutingKey
	}
}

// Close closes the channel and, when Dial opened it, the connection.
func (i *Invoker) Close() error {
	if err := i.ch.Close(); err != nil {
		return err
	}
	if i.conn != nil {
		return i.conn.Close()
	}
	return nil
}
