package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tableside/internal/shared/config"
	"tableside/internal/shared/metrics"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/brianvoe/gofakeit/v7"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmail struct {
	mu       sync.Mutex
	failures int
	sent     []*Notification
}

func (r *recordingEmail) Send(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func TestKafkaPublisher_SendsEnvelopeKeyedByRecipient(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	email := gofakeit.Email()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n Notification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.Type != NotificationTypeWaitlistTableReady || n.RecipientEmail != email {
			return errors.New("unexpected notification payload")
		}
		if n.ExpiresAt == nil {
			return errors.New("table ready notifications must expire")
		}
		return nil
	})

	m := metrics.New()
	svc := NewService(NewKafkaPublisherWithProducer(producer, "notifications"), nil, m)

	err := svc.SendWaitlistNotification(context.Background(), 7, email, "Guest", "waitlist_table_ready",
		map[string]interface{}{"party_size": 4})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	expected := `
# HELP notifications_published_total Notifications handed to the broker, by type and outcome.
# TYPE notifications_published_total counter
notifications_published_total{outcome="published",type="waitlist_table_ready"} 1
`
	assert.NoError(t, prom.GatherAndCompare(m.Registry(), strings.NewReader(expected), "notifications_published_total"))
}

func TestKafkaPublisher_SurfacesBrokerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	svc := NewService(NewKafkaPublisherWithProducer(producer, "notifications"), nil, nil)
	err := svc.SendSubscriptionNotification(context.Background(), 1, gofakeit.Email(), "Owner",
		string(NotificationTypeSubscriptionPaymentFailed), nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, svc.Close())
}

func TestCreateHeaders(t *testing.T) {
	n := NewNotificationBuilder().
		WithType(NotificationTypeSubscriptionActivated).
		WithRecipient(RecipientKey("user", 3), "owner@example.com", "Owner").
		Build()

	headers := map[string]string{}
	for _, h := range createHeaders(n) {
		headers[string(h.Key)] = string(h.Value)
	}
	assert.Equal(t, "user:3", headers["recipient_key"])
	assert.Equal(t, string(NotificationTypeSubscriptionActivated), headers["notification_type"])
	assert.Equal(t, n.ID.String(), headers["notification_id"])
	assert.Equal(t, "Your subscription is active", n.Subject)
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	email := &recordingEmail{failures: 2}
	d := NewDispatcher(email, 3, time.Millisecond)

	n := NewNotificationBuilder().
		WithType(NotificationTypeWaitlistJoined).
		WithRecipient("waitlist:1", gofakeit.Email(), gofakeit.Name()).
		Build()
	body, err := n.ToJSON()
	require.NoError(t, err)

	require.NoError(t, d.Handle(context.Background(), body))
	require.Len(t, email.sent, 1)
	assert.Equal(t, n.ID, email.sent[0].ID)
}

func TestDispatcher_GivesUp(t *testing.T) {
	email := &recordingEmail{failures: 10}
	d := NewDispatcher(email, 1, time.Millisecond)

	body, err := NewNotificationBuilder().WithType(NotificationTypeWaitlistSeated).Build().ToJSON()
	require.NoError(t, err)

	assert.Error(t, d.Handle(context.Background(), body))
	assert.Empty(t, email.sent)
}

func TestDispatcher_SkipsExpiredAndRejectsGarbage(t *testing.T) {
	email := &recordingEmail{}
	d := NewDispatcher(email, 0, time.Millisecond)

	expired := NewNotificationBuilder().
		WithType(NotificationTypeWaitlistTableReady).
		WithExpiration(time.Now().Add(-time.Minute)).
		Build()
	body, err := expired.ToJSON()
	require.NoError(t, err)

	assert.NoError(t, d.Handle(context.Background(), body))
	assert.Empty(t, email.sent)

	assert.ErrorIs(t, d.Handle(context.Background(), []byte("{not json")), ErrPoisonMessage)
}

func TestRenderBody(t *testing.T) {
	n := NewNotificationBuilder().
		WithType(NotificationTypeWaitlistSeated).
		WithRecipient("waitlist:2", "guest@example.com", "Grace").
		WithTemplateData(map[string]interface{}{"reservation_id": 12, "date": "2026-10-17", "time": "19:30"}).
		Build()

	body, err := RenderBody(n)
	require.NoError(t, err)
	assert.Contains(t, body, "Grace")
	assert.Contains(t, body, "#12")

	generic := NewNotificationBuilder().WithType("something_else").WithRecipient("user:1", "a@b.c", "<Bob>").Build()
	body, err = RenderBody(generic)
	require.NoError(t, err)
	assert.Contains(t, body, "&lt;Bob&gt;")
}

func TestNewServiceFromConfig_NoBrokerDeliversInline(t *testing.T) {
	svc, err := NewServiceFromConfig(config.NotificationConfig{Broker: BrokerNone}, nil)
	require.NoError(t, err)

	err = svc.SendWaitlistNotification(context.Background(), 1, gofakeit.Email(), "Guest", "waitlist_joined", nil)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Run(ctx))

	_, err = NewServiceFromConfig(config.NotificationConfig{Broker: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
