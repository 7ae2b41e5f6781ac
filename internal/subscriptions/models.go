package subscriptions

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Status string

const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusInactive          Status = "inactive"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
)

// ParseStatus maps a provider status onto ours; unknown values become inactive
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusIncomplete,
		StatusIncompleteExpired, StatusUnpaid, StatusPaused:
		return st
	default:
		return StatusInactive
	}
}

// IsLive reports whether the subscription still grants the plan
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusTrialing || s == StatusPastDue
}

// IsTerminal reports whether no self-service action can apply
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusInactive || s == StatusIncompleteExpired
}

// Usage keys shared by plan limits and usage counters
const (
	UsageReservations    = "reservations"
	UsageWaitlistEntries = "waitlist_entries"
	UsageStaffAccounts   = "staff_accounts"
)

// Unlimited marks a limit that never caps usage
const Unlimited = -1

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// jsonDataType picks the JSON column type for the active dialect
func jsonDataType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

func scanJSON(value interface{}, dest interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// FeatureList is the set of feature keys a plan unlocks
type FeatureList []string

func (f FeatureList) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	return string(b), err
}

func (f *FeatureList) Scan(value interface{}) error {
	return scanJSON(value, f)
}

func (FeatureList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonDataType(db)
}

func (f FeatureList) Has(feature string) bool {
	for _, x := range f {
		if x == feature {
			return true
		}
	}
	return false
}

// UsageLimits caps usage per key; a missing key or Unlimited means no cap
type UsageLimits map[string]int64

func (l UsageLimits) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *UsageLimits) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func (UsageLimits) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonDataType(db)
}

// Plan is a catalog entry mapped onto a provider price
type Plan struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	Code            string      `json:"code" gorm:"type:varchar(50);uniqueIndex;not null"`
	Name            string      `json:"name" gorm:"type:varchar(100);not null"`
	Description     string      `json:"description" gorm:"type:text"`
	PriceCents      int64       `json:"price_cents" gorm:"not null"`
	Currency        string      `json:"currency" gorm:"type:varchar(3);not null;default:'usd'"`
	Interval        string      `json:"interval" gorm:"type:varchar(10);not null;default:'month'"`
	ProviderPriceID string      `json:"provider_price_id" gorm:"type:varchar(255);index"`
	Features        FeatureList `json:"features"`
	Limits          UsageLimits `json:"limits"`
	TrialDays       int         `json:"trial_days" gorm:"not null;default:0"`
	IsActive        bool        `json:"is_active" gorm:"not null;default:true"`
	SortOrder       int         `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// PeriodEnd returns the end of a billing period starting at start
func (p *Plan) PeriodEnd(start time.Time) time.Time {
	if p.Interval == IntervalYear {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// Subscription mirrors the provider's subscription. Its status only changes
// through billing events and the self-service paths.
type Subscription struct {
	ID                     uint       `json:"id" gorm:"primaryKey"`
	UserID                 uint       `json:"user_id" gorm:"not null;index"`
	PlanID                 uint       `json:"plan_id" gorm:"not null;index"`
	Plan                   *Plan      `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Provider               string     `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_subscriptions_provider_ref"`
	ProviderSubscriptionID string     `json:"provider_subscription_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_provider_ref"`
	ProviderCustomerID     string     `json:"provider_customer_id" gorm:"type:varchar(255);index"`
	Status                 Status     `json:"status" gorm:"type:varchar(32);not null;index"`
	CurrentPeriodStart     time.Time  `json:"current_period_start"`
	CurrentPeriodEnd       time.Time  `json:"current_period_end"`
	TrialStart             *time.Time `json:"trial_start,omitempty"`
	TrialEnd               *time.Time `json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CanceledAt             *time.Time `json:"canceled_at,omitempty"`
	EndedAt                *time.Time `json:"ended_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Billing event outcomes
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// BillingEvent records every provider event applied. The (provider, event_id)
// pair is unique; inserting a duplicate is how redelivery is detected.
type BillingEvent struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Provider       string    `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_billing_events_provider_event"`
	EventID        string    `json:"event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_billing_events_provider_event"`
	Type           string    `json:"type" gorm:"type:varchar(100);not null;index"`
	SubscriptionID *uint     `json:"subscription_id,omitempty" gorm:"index"`
	Outcome        string    `json:"outcome" gorm:"type:varchar(20);not null"`
	Payload        string    `json:"-" gorm:"type:text"`
	ReceivedAt     time.Time `json:"received_at" gorm:"not null"`
}

func (BillingEvent) TableName() string {
	return "billing_events"
}
