package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type declaredQueue struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

type published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []declaredQueue
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, declaredQueue{Name: name, Durable: durable, AutoDelete: autoDelete, Exclusive: exclusive})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{Exchange: exchange, Key: key, Msg: msg})
	return nil
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// newTestRabbitPublisher hands out the given channels in order, one per open
func newTestRabbitPublisher(t *testing.T, channels ...*fakeChannel) (*RabbitPublisher, *int) {
	t.Helper()
	rp := NewRabbitPublisher("amqp://unused", "notifications")
	opened := 0
	rp.open = func() (rabbitChannel, error) {
		if opened >= len(channels) {
			return nil, errors.New("broker unreachable")
		}
		ch := channels[opened]
		opened++
		return ch, nil
	}
	return rp, &opened
}

func TestRabbitPublisher_PublishesPersistentEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	rp, opened := newTestRabbitPublisher(t, ch)
	email := gofakeit.Email()

	n := NewNotificationBuilder().
		WithType(NotificationTypeWaitlistJoined).
		WithRecipient("waitlist:3", email, gofakeit.Name()).
		Build()

	require.NoError(t, rp.Publish(context.Background(), n))
	require.NoError(t, rp.Publish(context.Background(), n))
	assert.Equal(t, 1, *opened, "channel is reused while open")

	require.Len(t, ch.declared, 1)
	assert.Equal(t, declaredQueue{Name: "notifications", Durable: true}, ch.declared[0])

	require.Len(t, ch.published, 2)
	msg := ch.published[0]
	assert.Equal(t, "", msg.Exchange)
	assert.Equal(t, "notifications", msg.Key)
	assert.Equal(t, amqp.Persistent, msg.Msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.Msg.ContentType)
	assert.Equal(t, n.ID.String(), msg.Msg.MessageId)
	assert.Equal(t, string(NotificationTypeWaitlistJoined), msg.Msg.Type)

	var decoded Notification
	require.NoError(t, json.Unmarshal(msg.Msg.Body, &decoded))
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, email, decoded.RecipientEmail)
}

func TestRabbitPublisher_ReopensAfterFailure(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed by broker")}
	healthy := &fakeChannel{}
	rp, opened := newTestRabbitPublisher(t, broken, healthy)
	n := NewNotificationBuilder().WithType(NotificationTypeWaitlistSeated).Build()

	assert.Error(t, rp.Publish(context.Background(), n))
	assert.True(t, broken.IsClosed())

	require.NoError(t, rp.Publish(context.Background(), n))
	assert.Equal(t, 2, *opened)
	assert.Len(t, healthy.published, 1)

	// no channel left to open
	rp.ch = nil
	assert.Error(t, rp.Publish(context.Background(), n))
	require.NoError(t, rp.Close())
}

type settlement struct {
	Acked   bool
	Requeue bool
}

type recordingAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *recordingAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{Acked: true})
	return nil
}

func (a *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{Requeue: requeue})
	return nil
}

func (a *recordingAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func TestRabbitConsumer_Settle(t *testing.T) {
	body, err := NewNotificationBuilder().
		WithType(NotificationTypeWaitlistJoined).
		WithRecipient("waitlist:1", gofakeit.Email(), gofakeit.Name()).
		Build().ToJSON()
	require.NoError(t, err)

	tests := []struct {
		name     string
		failures int
		body     []byte
		want     settlement
	}{
		{name: "delivered", body: body, want: settlement{Acked: true}},
		{name: "garbage is dropped", body: []byte("{not json"), want: settlement{}},
		{name: "email outage is requeued", failures: 10, body: body, want: settlement{Requeue: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &recordingEmail{failures: tt.failures}
			rc := NewRabbitConsumer("amqp://unused", "notifications", 0, NewDispatcher(email, 0, time.Millisecond))
			ack := &recordingAcknowledger{}

			rc.settle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tt.body})

			require.Len(t, ack.settled, 1)
			assert.Equal(t, tt.want, ack.settled[0])
		})
	}
}
