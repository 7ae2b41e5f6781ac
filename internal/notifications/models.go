package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeWaitlistJoined     NotificationType = "waitlist_joined"
	NotificationTypeWaitlistTableReady NotificationType = "waitlist_table_ready"
	NotificationTypeWaitlistSeated     NotificationType = "waitlist_seated"

	NotificationTypeSubscriptionActivated     NotificationType = "subscription_activated"
	NotificationTypeSubscriptionPaymentFailed NotificationType = "subscription_payment_failed"
	NotificationTypeSubscriptionCanceled      NotificationType = "subscription_canceled"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityMedium NotificationPriority = "MEDIUM"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// Notification is the envelope carried over the broker. RecipientKey
// identifies the addressee ("waitlist:12", "user:3") and doubles as the
// partition key so one recipient's messages stay ordered.
type Notification struct {
	ID       uuid.UUID            `json:"id"`
	Type     NotificationType     `json:"type"`
	Priority NotificationPriority `json:"priority"`

	RecipientKey   string `json:"recipient_key"`
	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`

	Subject      string                 `json:"subject"`
	TemplateData map[string]interface{} `json:"template_data"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type NotificationBuilder struct {
	notification *Notification
}

func NewNotificationBuilder() *NotificationBuilder {
	return &NotificationBuilder{
		notification: &Notification{
			ID:           uuid.New(),
			CreatedAt:    time.Now(),
			TemplateData: make(map[string]interface{}),
		},
	}
}

func (nb *NotificationBuilder) WithType(notType NotificationType) *NotificationBuilder {
	nb.notification.Type = notType
	nb.notification.Priority = GetDefaultPriority(notType)
	return nb
}

func (nb *NotificationBuilder) WithRecipient(key, email, name string) *NotificationBuilder {
	nb.notification.RecipientKey = key
	nb.notification.RecipientEmail = email
	nb.notification.RecipientName = name
	return nb
}

func (nb *NotificationBuilder) WithTemplateData(data map[string]interface{}) *NotificationBuilder {
	if data != nil {
		nb.notification.TemplateData = data
	}
	return nb
}

func (nb *NotificationBuilder) WithExpiration(expiresAt time.Time) *NotificationBuilder {
	nb.notification.ExpiresAt = &expiresAt
	return nb
}

// Build fills the subject from the type when none was set
func (nb *NotificationBuilder) Build() *Notification {
	if nb.notification.Subject == "" {
		nb.notification.Subject = GenerateSubject(nb.notification.Type)
	}
	return nb.notification
}

func GetDefaultPriority(notType NotificationType) NotificationPriority {
	switch notType {
	case NotificationTypeWaitlistTableReady, NotificationTypeSubscriptionPaymentFailed:
		return NotificationPriorityHigh
	case NotificationTypeWaitlistJoined:
		return NotificationPriorityLow
	default:
		return NotificationPriorityMedium
	}
}

func GenerateSubject(notType NotificationType) string {
	switch notType {
	case NotificationTypeWaitlistJoined:
		return "You're on the waitlist"
	case NotificationTypeWaitlistTableReady:
		return "Your table is ready"
	case NotificationTypeWaitlistSeated:
		return "Your reservation is confirmed"
	case NotificationTypeSubscriptionActivated:
		return "Your subscription is active"
	case NotificationTypeSubscriptionPaymentFailed:
		return "Payment failed - action required"
	case NotificationTypeSubscriptionCanceled:
		return "Your subscription has ended"
	default:
		return "Notification from Tableside"
	}
}

// RecipientKey builds the partition key for a recipient kind and id
func RecipientKey(kind string, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func (n *Notification) GetPartitionKey() string {
	return n.RecipientKey
}

func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

func (n *Notification) IsExpired() bool {
	return n.ExpiresAt != nil && time.Now().After(*n.ExpiresAt)
}
