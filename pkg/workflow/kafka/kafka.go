// Package kafka publishes dispatched transactions to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

const backendName = "kafka"

// Writer defines the subset of segmentio kafka.Writer we need. This makes the invoker testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Invoker implements workflow.Invoker by writing one message per
// transaction, keyed by transaction id so updates stay ordered per partition.
// The message id doubles as the run id.
type Invoker struct {
	writer Writer
	logger mercury.Logger
}

// New creates an Invoker writing to topic on brokers.
func New(brokers []string, topic string, logger mercury.Logger) (*Invoker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", mercury.ErrConfig)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: kafka topic is required", mercury.ErrConfig)
	}
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return NewWithWriter(w, logger), nil
}

// NewWithWriter allows injecting a test writer.
func NewWithWriter(w Writer, logger mercury.Logger) *Invoker {
	return &Invoker{writer: w, logger: mercury.LoggerOrNoop(logger)}
}

// Invoke implements workflow.Invoker.
func (i *Invoker) Invoke(ctx context.Context, inv workflow.Invocation) (workflow.Run, error) {
	env := workflow.NewEnvelope(inv)
	value, err := json.Marshal(env)
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("marshal envelope: %w", err))
	}

	msg := skafka.Message{
		Key:   []byte(inv.PartitionKey()),
		Value: value,
		Headers: []skafka.Header{
			{Key: "message-id", Value: []byte(env.MessageID)},
			{Key: "event", Value: []byte(env.Event)},
			{Key: "target", Value: []byte(env.Target)},
		},
		Time: env.OccurredAt,
	}
	if err := i.writer.WriteMessages(ctx, msg); err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, err)
	}

	i.logger.Debug("kafka message written",
		mercury.Field{Key: "message_id", Value: env.MessageID},
		mercury.Field{Key: "key", Value: string(msg.Key)},
	)
	return workflow.Run{ID: env.MessageID}, nil
}

// Close closes the underlying writer.
func (i *Invoker) Close() error {
	return i.writer.Close()
}
