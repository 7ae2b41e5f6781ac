package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tableside/internal/billing"
	"tableside/internal/shared/constants"
	"tableside/internal/shared/metrics"
	"tableside/internal/users"
	"tableside/pkg/cache"
	"tableside/pkg/logger"
)

var (
	ErrUnsupportedProvider  = errors.New("unsupported billing provider")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed billing event")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNoSubscription       = errors.New("no subscription found")
	ErrSubscriptionNotOwned = errors.New("subscription does not belong to user")
	ErrSubscriptionInactive = errors.New("subscription is not active")
	ErrAlreadySubscribed    = errors.New("user already has a live subscription")
	ErrSamePlan             = errors.New("subscription is already on this plan")
	ErrNoBillingCustomer    = errors.New("user has no billing account")
	ErrProviderUnavailable  = errors.New("billing provider request failed")
)

// Notification types sent to owners
const (
	NotificationActivated     = "subscription_activated"
	NotificationPaymentFailed = "subscription_payment_failed"
	NotificationCanceled      = "subscription_canceled"
)

// NotificationService defines the interface for sending notifications (to avoid import cycles)
type NotificationService interface {
	SendSubscriptionNotification(ctx context.Context, userID uint, email, name, notificationType string,
		templateData map[string]interface{}) error
}

// UserDirectory resolves owner contact details
type UserDirectory interface {
	GetContact(ctx context.Context, userID uint) (email, name string, err error)
}

// Service interface defines the contract for subscription business operations
type Service interface {
	ListPlans(ctx context.Context) ([]PlanResponse, error)
	GetStatus(ctx context.Context, userID uint) (*StatusSnapshot, error)

	// Self-service actions
	CreateCheckout(ctx context.Context, userID uint, req *CheckoutRequest) (*SessionResponse, error)
	CreateBillingPortal(ctx context.Context, userID uint) (*SessionResponse, error)
	Cancel(ctx context.Context, userID uint) (*StatusSnapshot, error)
	Reactivate(ctx context.Context, userID uint) (*StatusSnapshot, error)
	ChangePlan(ctx context.Context, userID uint, req *ChangePlanRequest) (*StatusSnapshot, error)

	// Billing event ingestion
	HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*WebhookResult, error)
}

// ServiceConfig contains configuration for the subscription service
type ServiceConfig struct {
	SuccessURL        string
	CancelURL         string
	PortalReturnURL   string
	TrialDays         int
	TrialExpiringDays int
	Now               func() time.Time
}

type service struct {
	repo      Repository
	providers *billing.Registry
	cache     cache.Service
	notifier  NotificationService
	directory UserDirectory
	metrics   *metrics.Metrics
	config    *ServiceConfig
	log       *logger.Logger
}

// NewService creates a new subscription service. cacheService, notifier,
// directory and m may be nil.
func NewService(repo Repository, providers *billing.Registry, cacheService cache.Service,
	notifier NotificationService, directory UserDirectory, m *metrics.Metrics, config *ServiceConfig) Service {

	if config == nil {
		config = &ServiceConfig{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if cacheService == nil {
		cacheService = cache.NewService(nil)
	}

	return &service{
		repo:      repo,
		providers: providers,
		cache:     cacheService,
		notifier:  notifier,
		directory: directory,
		metrics:   m,
		config:    config,
		log:       logger.GetDefault().WithComponent("subscriptions"),
	}
}

func (s *service) ListPlans(ctx context.Context) ([]PlanResponse, error) {
	var plans []PlanResponse
	err := s.cache.GetOrSet(ctx, constants.CACHE_KEY_PLANS_ACTIVE, constants.TTL_PLANS_ACTIVE, &plans, func() (interface{}, error) {
		rows, err := s.repo.ListActivePlans(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]PlanResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toPlanResponse(&rows[i]))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// GetStatus returns the cached snapshot or rebuilds it
func (s *service) GetStatus(ctx context.Context, userID uint) (*StatusSnapshot, error) {
	var snap StatusSnapshot
	err := s.cache.GetOrSet(ctx, constants.BuildSubscriptionStatusKey(userID), constants.TTL_SUBSCRIPTION_STATUS, &snap, func() (interface{}, error) {
		return s.buildStatus(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *service) buildStatus(ctx context.Context, userID uint) (StatusSnapshot, error) {
	now := s.config.Now()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return StatusSnapshot{}, err
	}

	var sub *Subscription
	if user.CurrentSubscriptionID != nil {
		sub, err = s.repo.GetSubscription(ctx, *user.CurrentSubscriptionID)
		if err != nil && !errors.Is(err, ErrNoSubscription) {
			return StatusSnapshot{}, err
		}
		if sub != nil && sub.UserID != userID {
			sub = nil
		}
	}

	from, to := now.AddDate(0, -1, 0), now
	if sub != nil && !sub.CurrentPeriodStart.IsZero() && !sub.CurrentPeriodEnd.IsZero() {
		from, to = sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	}
	usage, err := s.repo.CountUsage(ctx, from, to)
	if err != nil {
		return StatusSnapshot{}, err
	}

	var plan *Plan
	if sub != nil {
		plan = sub.Plan
	}
	return BuildSnapshot(sub, plan, usage, now, s.config.TrialExpiringDays), nil
}

func (s *service) invalidate(ctx context.Context, userID uint) {
	if err := s.cache.Delete(ctx, constants.BuildSubscriptionStatusKey(userID)); err != nil {
		s.log.Warn("failed to invalidate subscription snapshot", "user_id", userID, logger.Err(err))
	}
}

func (s *service) defaultProvider() (billing.Provider, error) {
	p, ok := s.providers.Get(billing.ProviderStripe)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return p, nil
}

// loadOwned returns the subscription the user's pointer references, checking ownership
func (s *service) loadOwned(ctx context.Context, userID uint) (*users.User, *Subscription, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user.CurrentSubscriptionID == nil {
		return nil, nil, ErrNoSubscription
	}

	sub, err := s.repo.GetSubscription(ctx, *user.CurrentSubscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.UserID != userID {
		return nil, nil, ErrSubscriptionNotOwned
	}
	return user, sub, nil
}

func (s *service) providerFor(sub *Subscription) (billing.Provider, error) {
	p, ok := s.providers.Get(sub.Provider)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return p, nil
}

func (s *service) CreateCheckout(ctx context.Context, userID uint, req *CheckoutRequest) (*SessionResponse, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SubscriptionStatus != nil && Status(*user.SubscriptionStatus).IsLive() {
		return nil, ErrAlreadySubscribed
	}

	plan, err := s.repo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive || plan.ProviderPriceID == "" {
		return nil, ErrPlanNotFound
	}

	provider, err := s.defaultProvider()
	if err != nil {
		return nil, err
	}

	// trials are for first subscriptions only
	trialDays := 0
	hasHistory, err := s.repo.HasSubscriptionHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasHistory {
		trialDays = plan.TrialDays
		if trialDays == 0 {
			trialDays = s.config.TrialDays
		}
	}

	checkout := billing.CheckoutRequest{
		PriceID:       plan.ProviderPriceID,
		CustomerEmail: user.Email,
		SuccessURL:    s.config.SuccessURL,
		CancelURL:     s.config.CancelURL,
		TrialDays:     int64(trialDays),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(userID), 10),
			"plan_id": strconv.FormatUint(uint64(plan.ID), 10),
		},
	}
	if user.BillingCustomerID != nil {
		checkout.CustomerID = *user.BillingCustomerID
	}

	session, err := provider.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	s.log.InfoContext(ctx, "checkout session created", "user_id", userID, "plan_id", plan.ID, "trial_days", trialDays)
	return &SessionResponse{URL: session.URL}, nil
}

func (s *service) CreateBillingPortal(ctx context.Context, userID uint) (*SessionResponse, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.BillingCustomerID == nil || *user.BillingCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}

	provider, err := s.defaultProvider()
	if err != nil {
		return nil, err
	}

	session, err := provider.CreatePortalSession(ctx, *user.BillingCustomerID, s.config.PortalReturnURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return &SessionResponse{URL: session.URL}, nil
}

// Cancel schedules cancellation at period end. Status is left for the
// provider's events to change. Cancelling twice is a no-op.
func (s *service) Cancel(ctx context.Context, userID uint) (*StatusSnapshot, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, true, "cancel")
}

// Reactivate clears a pending cancellation. Without one it is a no-op.
func (s *service) Reactivate(ctx context.Context, userID uint) (*StatusSnapshot, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, false, "reactivate")
}

func (s *service) setCancelAtPeriodEnd(ctx context.Context, userID uint, cancel bool, action string) (*StatusSnapshot, error) {
	_, sub, err := s.loadOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, ErrSubscriptionInactive
	}

	if sub.CancelAtPeriodEnd != cancel {
		provider, err := s.providerFor(sub)
		if err != nil {
			return nil, err
		}
		if err := provider.SetCancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID, cancel); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		updates := map[string]interface{}{"cancel_at_period_end": cancel}
		if cancel {
			updates["canceled_at"] = s.config.Now()
		} else {
			updates["canceled_at"] = nil
		}
		if err := s.repo.UpdateSubscription(ctx, sub.ID, updates); err != nil {
			return nil, err
		}
		s.log.LogSubscriptionChanged(ctx, userID, sub.ID, action)
	}

	s.invalidate(ctx, userID)
	return s.GetStatus(ctx, userID)
}

// ChangePlan swaps the plan; the provider computes any proration
func (s *service) ChangePlan(ctx context.Context, userID uint, req *ChangePlanRequest) (*StatusSnapshot, error) {
	_, sub, err := s.loadOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, ErrSubscriptionInactive
	}
	if sub.PlanID == req.PlanID {
		return nil, ErrSamePlan
	}

	plan, err := s.repo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive || plan.ProviderPriceID == "" {
		return nil, ErrPlanNotFound
	}

	provider, err := s.providerFor(sub)
	if err != nil {
		return nil, err
	}
	if err := provider.ChangePrice(ctx, sub.ProviderSubscriptionID, plan.ProviderPriceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := s.repo.ChangePlan(ctx, sub, plan.ID); err != nil {
		return nil, err
	}
	s.log.LogSubscriptionChanged(ctx, userID, sub.ID, "change_plan")

	s.invalidate(ctx, userID)
	return s.GetStatus(ctx, userID)
}
