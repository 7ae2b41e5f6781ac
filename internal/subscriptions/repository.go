package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tableside/internal/reservations"
	"tableside/internal/users"
	"tableside/internal/waitlist"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository interface defines the contract for subscription data access
type Repository interface {
	ListActivePlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, id uint) (*Plan, error)
	GetPlanByPriceID(ctx context.Context, priceID string) (*Plan, error)
	UpsertPlan(ctx context.Context, plan *Plan) error

	GetUser(ctx context.Context, id uint) (*users.User, error)
	GetSubscription(ctx context.Context, id uint) (*Subscription, error)
	HasSubscriptionHistory(ctx context.Context, userID uint) (bool, error)
	UpdateSubscription(ctx context.Context, id uint, updates map[string]interface{}) error
	ChangePlan(ctx context.Context, sub *Subscription, planID uint) error

	// RecordEvent inserts the event row if absent and, only when it was
	// inserted, runs apply in the same transaction. duplicate reports a
	// previously recorded event; apply is then not called.
	RecordEvent(ctx context.Context, event *BillingEvent, apply func(tx Tx) (string, error)) (duplicate bool, err error)

	CountUsage(ctx context.Context, from, to time.Time) (map[string]int64, error)
}

// Tx is the set of writes available while applying a billing event
type Tx interface {
	GetPlan(ctx context.Context, id uint) (*Plan, error)
	GetPlanByPriceID(ctx context.Context, priceID string) (*Plan, error)
	GetUser(ctx context.Context, id uint) (*users.User, error)
	FindByProviderRef(ctx context.Context, provider, providerSubscriptionID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error
	SyncUser(ctx context.Context, sub *Subscription) error
	LinkEvent(ctx context.Context, eventRowID, subscriptionID uint) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new subscription repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActivePlans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, price_cents ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func getPlan(ctx context.Context, db *gorm.DB, id uint) (*Plan, error) {
	var plan Plan
	if err := db.WithContext(ctx).First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan %d: %w", id, err)
	}
	return &plan, nil
}

func getPlanByPriceID(ctx context.Context, db *gorm.DB, priceID string) (*Plan, error) {
	var plan Plan
	if err := db.WithContext(ctx).Where("provider_price_id = ?", priceID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan for price %s: %w", priceID, err)
	}
	return &plan, nil
}

func getUser(ctx context.Context, db *gorm.DB, id uint) (*users.User, error) {
	var user users.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

func (r *repository) GetPlan(ctx context.Context, id uint) (*Plan, error) {
	return getPlan(ctx, r.db, id)
}

func (r *repository) GetPlanByPriceID(ctx context.Context, priceID string) (*Plan, error) {
	return getPlanByPriceID(ctx, r.db, priceID)
}

// UpsertPlan inserts or refreshes a catalog entry keyed by its code
func (r *repository) UpsertPlan(ctx context.Context, plan *Plan) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "price_cents", "currency", "interval",
			"provider_price_id", "features", "limits", "trial_days", "is_active", "sort_order", "updated_at",
		}),
	}).Create(plan).Error
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", plan.Code, err)
	}
	return nil
}

func (r *repository) GetUser(ctx context.Context, id uint) (*users.User, error) {
	return getUser(ctx, r.db, id)
}

func (r *repository) GetSubscription(ctx context.Context, id uint) (*Subscription, error) {
	var sub Subscription
	if err := r.db.WithContext(ctx).Preload("Plan").First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}
	return &sub, nil
}

func (r *repository) HasSubscriptionHistory(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Subscription{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count > 0, nil
}

func (r *repository) UpdateSubscription(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update subscription %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoSubscription
	}
	return nil
}

// ChangePlan moves the subscription and the owner's plan pointer together
func (r *repository) ChangePlan(ctx context.Context, sub *Subscription, planID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Subscription{}).Where("id = ?", sub.ID).Update("plan_id", planID).Error; err != nil {
			return fmt.Errorf("failed to change plan of subscription %d: %w", sub.ID, err)
		}
		err := tx.Model(&users.User{}).
			Where("id = ? AND current_subscription_id = ?", sub.UserID, sub.ID).
			Update("current_plan_id", planID).Error
		if err != nil {
			return fmt.Errorf("failed to update plan pointer of user %d: %w", sub.UserID, err)
		}
		return nil
	})
}

func (r *repository) RecordEvent(ctx context.Context, event *BillingEvent, apply func(tx Tx) (string, error)) (bool, error) {
	duplicate := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).Create(event)
		if result.Error != nil {
			return fmt.Errorf("failed to record billing event %s: %w", event.EventID, result.Error)
		}
		if result.RowsAffected == 0 {
			duplicate = true
			return nil
		}

		outcome, err := apply(&txRepository{db: tx})
		if err != nil {
			return err
		}
		if outcome != "" && outcome != event.Outcome {
			event.Outcome = outcome
			if err := tx.Model(&BillingEvent{}).Where("id = ?", event.ID).Update("outcome", outcome).Error; err != nil {
				return fmt.Errorf("failed to update billing event outcome: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return duplicate, nil
}

// CountUsage counts what the restaurant consumed in [from, to)
func (r *repository) CountUsage(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	usage := make(map[string]int64, 3)
	db := r.db.WithContext(ctx)

	var n int64
	if err := db.Model(&reservations.Reservation{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}
	usage[UsageReservations] = n

	n = 0
	if err := db.Model(&waitlist.Entry{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count waitlist entries: %w", err)
	}
	usage[UsageWaitlistEntries] = n

	n = 0
	if err := db.Model(&users.User{}).
		Where("role IN ?", []users.Role{users.RoleStaff, users.RoleAdmin}).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to count staff accounts: %w", err)
	}
	usage[UsageStaffAccounts] = n

	return usage, nil
}

// txRepository runs every query on the event transaction
type txRepository struct {
	db *gorm.DB
}

func (t *txRepository) GetPlan(ctx context.Context, id uint) (*Plan, error) {
	return getPlan(ctx, t.db, id)
}

func (t *txRepository) GetPlanByPriceID(ctx context.Context, priceID string) (*Plan, error) {
	return getPlanByPriceID(ctx, t.db, priceID)
}

func (t *txRepository) GetUser(ctx context.Context, id uint) (*users.User, error) {
	return getUser(ctx, t.db, id)
}

func (t *txRepository) FindByProviderRef(ctx context.Context, provider, providerSubscriptionID string) (*Subscription, error) {
	var sub Subscription
	err := t.db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to find subscription %s: %w", providerSubscriptionID, err)
	}
	return &sub, nil
}

func (t *txRepository) SaveSubscription(ctx context.Context, sub *Subscription) error {
	if err := t.db.WithContext(ctx).Omit("Plan").Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ProviderSubscriptionID, err)
	}
	return nil
}

// SyncUser copies the subscription onto the owner's denormalised columns
func (t *txRepository) SyncUser(ctx context.Context, sub *Subscription) error {
	updates := map[string]interface{}{
		"current_subscription_id": sub.ID,
		"current_plan_id":         sub.PlanID,
		"subscription_status":     string(sub.Status),
	}
	if sub.ProviderCustomerID != "" {
		updates["billing_customer_id"] = sub.ProviderCustomerID
	}

	if err := t.db.WithContext(ctx).Model(&users.User{}).Where("id = ?", sub.UserID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to sync user %d: %w", sub.UserID, err)
	}
	return nil
}

func (t *txRepository) LinkEvent(ctx context.Context, eventRowID, subscriptionID uint) error {
	err := t.db.WithContext(ctx).Model(&BillingEvent{}).
		Where("id = ?", eventRowID).
		Update("subscription_id", subscriptionID).Error
	if err != nil {
		return fmt.Errorf("failed to link billing event: %w", err)
	}
	return nil
}
