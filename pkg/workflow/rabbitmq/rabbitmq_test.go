package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	published []published
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestInvoke_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	inv := NewWithChannel(ch, Config{Exchange: "banking"})

	run, err := inv.Invoke(context.Background(), workflow.NewInvocation("reconcile",
		mercury.TransactionEvent{EventID: "evt_1", TransactionID: "txn_1"}))
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	p := ch.published[0]
	assert.Equal(t, "banking", p.exchange)
	assert.Equal(t, "reconcile", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, run.ID, p.msg.MessageId)
	assert.Equal(t, "evt_1", p.msg.CorrelationId)
	assert.Equal(t, workflow.EventTransaction, p.msg.Type)

	var env workflow.Envelope
	require.NoError(t, json.Unmarshal(p.msg.Body, &env))
	assert.Equal(t, "txn_1", env.Inputs["transaction_id"])
}

func TestInvoke_RoutingKey(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		target string
		want   string
	}{
		{"configured key wins", Config{RoutingKey: "q.mercury"}, "wf", "q.mercury"},
		{"target", Config{}, "wf", "wf"},
		{"default", Config{}, "", "mercury.transaction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			_, err := NewWithChannel(ch, tt.config).Invoke(context.Background(),
				workflow.NewInvocation(tt.target, mercury.TransactionEvent{EventID: "e"}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ch.published[0].key)
		})
	}
}

func TestInvoke_PublishError(t *testing.T) {
	inv := NewWithChannel(&fakeChannel{err: errors.New("channel/connection is not open")}, Config{})

	_, err := inv.Invoke(context.Background(), workflow.NewInvocation("wf", mercury.TransactionEvent{}))
	assert.ErrorIs(t, err, mercury.ErrDispatch)
}
