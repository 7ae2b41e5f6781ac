package notifications

import (
	"context"
	"fmt"
	"time"

	"tableside/internal/shared/config"
	"tableside/internal/shared/metrics"
	"tableside/pkg/logger"
)

// Broker names accepted in NOTIFY_BROKER
const (
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
	BrokerNone     = "none"
)

const (
	recipientWaitlist = "waitlist"
	recipientUser     = "user"

	// table-ready messages are useless once the party has moved on
	tableReadyTTL = 30 * time.Minute
)

// Service publishes domain notifications and owns the delivery consumer
type Service struct {
	publisher Publisher
	consumer  Consumer
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewService wires a publisher and an optional consumer
func NewService(publisher Publisher, consumer Consumer, m *metrics.Metrics) *Service {
	return &Service{
		publisher: publisher,
		consumer:  consumer,
		metrics:   m,
		log:       logger.GetDefault().WithComponent("notifications"),
	}
}

// NewEmailService picks SMTP delivery when a host is configured
func NewEmailService(cfg config.NotificationConfig) (EmailService, error) {
	if cfg.SMTPHost == "" {
		return NewLogEmailService(), nil
	}
	return NewSMTPEmailService(&SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		UseTLS:    true,
	})
}

// NewServiceFromConfig builds the broker stack named by cfg.Broker
func NewServiceFromConfig(cfg config.NotificationConfig, m *metrics.Metrics) (*Service, error) {
	email, err := NewEmailService(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := NewDispatcher(email, 3, time.Second)

	switch cfg.Broker {
	case BrokerKafka:
		producerConfig := DefaultKafkaProducerConfig()
		producerConfig.Brokers = cfg.KafkaBrokers
		producerConfig.Topic = cfg.Topic

		publisher, err := NewKafkaPublisher(producerConfig)
		if err != nil {
			return nil, err
		}

		consumerConfig := DefaultConsumerConfig()
		consumerConfig.Brokers = cfg.KafkaBrokers
		consumerConfig.Topics = []string{cfg.Topic}
		consumerConfig.GroupID = cfg.ConsumerGroupID
		consumerConfig.NumWorkers = cfg.NumWorkers

		consumer, err := NewKafkaConsumer(consumerConfig, dispatcher)
		if err != nil {
			_ = publisher.Close()
			return nil, err
		}
		return NewService(publisher, consumer, m), nil

	case BrokerRabbitMQ:
		publisher := NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		consumer := NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.NumWorkers*5, dispatcher)
		return NewService(publisher, consumer, m), nil

	case BrokerNone, "":
		return NewService(NewLogPublisher(email), nil, m), nil

	default:
		return nil, fmt.Errorf("unknown notification broker %q", cfg.Broker)
	}
}

// Publish sends a notification and records the outcome
func (s *Service) Publish(ctx context.Context, notification *Notification) error {
	if err := s.publisher.Publish(ctx, notification); err != nil {
		s.metrics.NotificationPublished(string(notification.Type), "failed")
		return err
	}
	s.metrics.NotificationPublished(string(notification.Type), "published")
	return nil
}

// SendWaitlistNotification notifies a waitlisted party
func (s *Service) SendWaitlistNotification(ctx context.Context, entryID uint, email, name, notificationType string,
	templateData map[string]interface{}) error {

	builder := NewNotificationBuilder().
		WithType(NotificationType(notificationType)).
		WithRecipient(RecipientKey(recipientWaitlist, entryID), email, name).
		WithTemplateData(templateData)

	if NotificationType(notificationType) == NotificationTypeWaitlistTableReady {
		builder = builder.WithExpiration(time.Now().Add(tableReadyTTL))
	}

	return s.Publish(ctx, builder.Build())
}

// SendSubscriptionNotification notifies a restaurant owner about billing
func (s *Service) SendSubscriptionNotification(ctx context.Context, userID uint, email, name, notificationType string,
	templateData map[string]interface{}) error {

	notification := NewNotificationBuilder().
		WithType(NotificationType(notificationType)).
		WithRecipient(RecipientKey(recipientUser, userID), email, name).
		WithTemplateData(templateData).
		Build()

	return s.Publish(ctx, notification)
}

// Run consumes until ctx is done. Without a consumer it just waits.
func (s *Service) Run(ctx context.Context) error {
	if s.consumer == nil {
		<-ctx.Done()
		return nil
	}
	return s.consumer.Run(ctx)
}

func (s *Service) Close() error {
	var firstErr error
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
