package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tableside/internal/billing"
	"tableside/internal/billing/billingtest"
	"tableside/internal/reservations"
	"tableside/internal/shared/metrics"
	"tableside/internal/shared/testutil"
	"tableside/internal/users"
	"tableside/internal/waitlist"

	"github.com/brianvoe/gofakeit/v7"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentNotification struct {
	UserID uint
	Type   string
	Data   map[string]interface{}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) SendSubscriptionNotification(_ context.Context, userID uint, _, _, notificationType string, data map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: notificationType, Data: data})
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Type)
	}
	return out
}

type staticDirectory struct{}

func (staticDirectory) GetContact(_ context.Context, userID uint) (string, string, error) {
	return "owner@example.com", "Owner", nil
}

type fixture struct {
	db       *gorm.DB
	repo     Repository
	provider *billingtest.Provider
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	svc      Service

	owner   *users.User
	starter *Plan
	pro     *Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t, &users.User{}, &Plan{}, &Subscription{}, &BillingEvent{},
		&reservations.Reservation{}, &waitlist.Entry{})
	repo := NewRepository(db)

	f := &fixture{
		db:       db,
		repo:     repo,
		provider: billingtest.NewProvider(),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	f.svc = NewService(repo, billing.NewRegistry(f.provider), nil, f.notifier, staticDirectory{}, f.metrics, &ServiceConfig{
		SuccessURL:        "https://app.example.com/billing/success",
		CancelURL:         "https://app.example.com/billing/cancel",
		PortalReturnURL:   "https://app.example.com/billing",
		TrialDays:         7,
		TrialExpiringDays: 3,
	})

	f.owner = &users.User{
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     strings.ToLower(gofakeit.Email()),
		Password:  "hashed",
		Role:      users.RoleOwner,
	}
	require.NoError(t, db.Create(f.owner).Error)

	f.starter = &Plan{
		Code: "starter", Name: "Starter", PriceCents: 2900, Currency: "usd", Interval: IntervalMonth,
		ProviderPriceID: "price_starter", Features: FeatureList{"waitlist"},
		Limits: UsageLimits{UsageReservations: 1, UsageStaffAccounts: Unlimited}, TrialDays: 14, IsActive: true,
	}
	f.pro = &Plan{
		Code: "pro", Name: "Pro", PriceCents: 7900, Currency: "usd", Interval: IntervalMonth,
		ProviderPriceID: "price_pro", Features: FeatureList{"waitlist", "sms"},
		Limits: UsageLimits{UsageReservations: Unlimited}, IsActive: true, SortOrder: 1,
	}
	require.NoError(t, repo.UpsertPlan(context.Background(), f.starter))
	require.NoError(t, repo.UpsertPlan(context.Background(), f.pro))
	return f
}

func period() (time.Time, time.Time) {
	start := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	return start, start.AddDate(0, 1, 0)
}

// subscribe runs a completed checkout for the owner on the starter plan
func (f *fixture) subscribe(t *testing.T, eventID string) *Subscription {
	t.Helper()
	start, end := period()
	body, sig := billingtest.CheckoutCompleted(eventID, f.owner.ID, f.starter.ID, "sub_test123", start, end)
	_, err := f.svc.HandleWebhook(context.Background(), billing.ProviderStripe, body, sig)
	require.NoError(t, err)
	return f.subscription(t)
}

func (f *fixture) subscription(t *testing.T) *Subscription {
	t.Helper()
	var sub Subscription
	require.NoError(t, f.db.Where("provider_subscription_id = ?", "sub_test123").First(&sub).Error)
	return &sub
}

func (f *fixture) user(t *testing.T) *users.User {
	t.Helper()
	var u users.User
	require.NoError(t, f.db.First(&u, f.owner.ID).Error)
	return &u
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestHandleWebhook_CheckoutActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	start, end := period()

	body, sig := billingtest.CheckoutCompleted("evt_1", f.owner.ID, f.starter.ID, "sub_test123", start, end)
	result, err := f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.False(t, result.Duplicate)

	assert.EqualValues(t, 1, f.count(t, &Subscription{}))
	sub := f.subscription(t)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, f.owner.ID, sub.UserID)
	assert.Equal(t, f.starter.ID, sub.PlanID)
	assert.Equal(t, "cus_test", sub.ProviderCustomerID)
	assert.Equal(t, start.Unix(), sub.CurrentPeriodStart.Unix())
	assert.Equal(t, end.Unix(), sub.CurrentPeriodEnd.Unix())

	u := f.user(t)
	require.NotNil(t, u.SubscriptionStatus)
	assert.Equal(t, "active", *u.SubscriptionStatus)
	require.NotNil(t, u.CurrentSubscriptionID)
	assert.Equal(t, sub.ID, *u.CurrentSubscriptionID)
	require.NotNil(t, u.CurrentPlanID)
	assert.Equal(t, f.starter.ID, *u.CurrentPlanID)
	require.NotNil(t, u.BillingCustomerID)
	assert.Equal(t, "cus_test", *u.BillingCustomerID)

	var event BillingEvent
	require.NoError(t, f.db.Where("event_id = ?", "evt_1").First(&event).Error)
	assert.Equal(t, OutcomeProcessed, event.Outcome)
	require.NotNil(t, event.SubscriptionID)
	assert.Equal(t, sub.ID, *event.SubscriptionID)

	assert.Equal(t, []string{NotificationActivated}, f.notifier.types())
	assert.Equal(t, "Starter", f.notifier.sent[0].Data["plan_name"])
}

func TestHandleWebhook_RedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	start, end := period()
	body, sig := billingtest.CheckoutCompleted("evt_1", f.owner.ID, f.starter.ID, "sub_test123", start, end)

	first, err := f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	require.NoError(t, err)
	second, err := f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	assert.EqualValues(t, 1, f.count(t, &Subscription{}))
	assert.EqualValues(t, 1, f.count(t, &BillingEvent{}))
	assert.Len(t, f.notifier.types(), 1)

	expected := `
# HELP billing_events_total Billing provider events received, by type and outcome.
# TYPE billing_events_total counter
billing_events_total{outcome="duplicate",type="checkout.session.completed"} 1
billing_events_total{outcome="processed",type="checkout.session.completed"} 1
`
	assert.NoError(t, prom.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "billing_events_total"))
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := newFixture(t)
	start, end := period()
	body, _ := billingtest.CheckoutCompleted("evt_1", f.owner.ID, f.starter.ID, "sub_test123", start, end)

	_, err := f.svc.HandleWebhook(context.Background(), "stripe", body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.svc.HandleWebhook(context.Background(), "paypal", body, "")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	noMeta, sig := billingtest.SignedEvent("evt_2", billing.EventCheckoutCompleted, map[string]interface{}{
		"id": "cs_2", "object": "checkout.session", "subscription": "sub_test123",
	})
	_, err = f.svc.HandleWebhook(context.Background(), "stripe", noMeta, sig)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	unknownUser, sig := billingtest.CheckoutCompleted("evt_3", 9999, f.starter.ID, "sub_test123", start, end)
	_, err = f.svc.HandleWebhook(context.Background(), "stripe", unknownUser, sig)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	assert.Zero(t, f.count(t, &BillingEvent{}))
	assert.Zero(t, f.count(t, &Subscription{}))
}

func TestHandleWebhook_UnhandledEventsAreRecorded(t *testing.T) {
	f := newFixture(t)
	start, end := period()

	body, sig := billingtest.SignedEvent("evt_x", "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"})
	result, err := f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	body, sig = billingtest.InvoiceEvent("evt_y", billing.EventInvoicePaid, "sub_unknown", start, end)
	result, err = f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	assert.EqualValues(t, 2, f.count(t, &BillingEvent{}))
	assert.Zero(t, f.count(t, &Subscription{}))
}

func TestHandleWebhook_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "evt_1")
	ctx := context.Background()
	start, end := period()

	body, sig := billingtest.InvoiceEvent("evt_2", billing.EventInvoicePaymentFailed, "sub_test123", start, end)
	_, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, f.subscription(t).Status)
	assert.Equal(t, "past_due", *f.user(t).SubscriptionStatus)

	nextStart, nextEnd := end, end.AddDate(0, 1, 0)
	body, sig = billingtest.InvoiceEvent("evt_3", billing.EventInvoicePaid, "sub_test123", nextStart, nextEnd)
	_, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	sub := f.subscription(t)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, nextEnd.Unix(), sub.CurrentPeriodEnd.Unix())

	body, sig = billingtest.SubscriptionEvent("evt_4", billing.EventSubscriptionUpdated, "sub_test123", "active", "price_pro", true, nextStart, nextEnd)
	_, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	sub = f.subscription(t)
	assert.Equal(t, f.pro.ID, sub.PlanID)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, f.pro.ID, *f.user(t).CurrentPlanID)

	body, sig = billingtest.SubscriptionEvent("evt_5", billing.EventSubscriptionDeleted, "sub_test123", "canceled", "price_pro", false, nextStart, nextEnd)
	_, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	sub = f.subscription(t)
	assert.Equal(t, StatusCanceled, sub.Status)
	assert.NotNil(t, sub.EndedAt)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "canceled", *f.user(t).SubscriptionStatus)

	assert.Equal(t, []string{NotificationActivated, NotificationPaymentFailed, NotificationCanceled}, f.notifier.types())
}

func TestHandleWebhook_InvoicePaidKeepsCanceledSubscriptionCanceled(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "evt_1")
	ctx := context.Background()
	start, end := period()

	body, sig := billingtest.SubscriptionEvent("evt_2", billing.EventSubscriptionDeleted, "sub_test123", "canceled", "price_starter", false, start, end)
	_, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	endedPeriod := f.subscription(t).CurrentPeriodEnd

	body, sig = billingtest.InvoiceEvent("evt_3", billing.EventInvoicePaid, "sub_test123", end, end.AddDate(0, 1, 0))
	result, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	sub := f.subscription(t)
	assert.Equal(t, StatusCanceled, sub.Status)
	assert.Equal(t, endedPeriod.Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, "canceled", *f.user(t).SubscriptionStatus)
}

func TestHandleWebhook_InvoicePaidKeepsTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, _ := period()
	trialEnd := start.AddDate(0, 0, 14)

	object := billingtest.SubscriptionObject("sub_test123", "trialing", "price_starter", false, start, trialEnd)
	object["trial_start"] = start.Unix()
	object["trial_end"] = trialEnd.Unix()
	body, sig := billingtest.CheckoutSession("evt_1", f.owner.ID, f.starter.ID, object)
	_, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, StatusTrialing, f.subscription(t).Status)

	// the zero-amount trial invoice
	body, sig = billingtest.InvoiceEvent("evt_2", billing.EventInvoicePaid, "sub_test123", start, trialEnd)
	_, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)

	sub := f.subscription(t)
	assert.Equal(t, StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, trialEnd.Unix(), sub.TrialEnd.Unix())
	assert.Equal(t, "trialing", *f.user(t).SubscriptionStatus)

	snap, err := f.svc.GetStatus(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsTrialing)
	assert.True(t, snap.IsActive)
}

func TestHandleWebhook_CheckoutWithSubscriptionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, _ := period()
	trialEnd := start.AddDate(0, 0, 14)

	f.provider.SetSubscription(&billing.SubscriptionState{
		ID:                 "sub_test123",
		Status:             "trialing",
		PriceID:            "price_starter",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   trialEnd,
		TrialStart:         &start,
		TrialEnd:           &trialEnd,
	})

	body, sig := billingtest.CheckoutSession("evt_1", f.owner.ID, f.starter.ID, "sub_test123")
	result, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, []string{"get_subscription"}, f.provider.Methods())

	sub := f.subscription(t)
	assert.Equal(t, StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, trialEnd.Unix(), sub.TrialEnd.Unix())
	assert.Equal(t, start.Unix(), sub.CurrentPeriodStart.Unix())
	assert.Equal(t, trialEnd.Unix(), sub.CurrentPeriodEnd.Unix())
}

func TestHandleWebhook_CheckoutFetchFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = errors.New("api unreachable")

	body, sig := billingtest.CheckoutSession("evt_1", f.owner.ID, f.starter.ID, "sub_test123")
	_, err := f.svc.HandleWebhook(context.Background(), "stripe", body, sig)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Zero(t, f.count(t, &BillingEvent{}))
	assert.Zero(t, f.count(t, &Subscription{}))
}

func TestHandleWebhook_SubscriptionCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, end := period()
	trialEnd := start.AddDate(0, 0, 14)

	// created before the checkout is known locally
	object := billingtest.SubscriptionObject("sub_test123", "trialing", "price_starter", false, start, trialEnd)
	object["trial_end"] = trialEnd.Unix()
	body, sig := billingtest.SignedEvent("evt_0", billing.EventSubscriptionCreated, object)
	result, err := f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	f.provider.SetSubscription(&billing.SubscriptionState{
		ID: "sub_test123", Status: "active", CurrentPeriodStart: start, CurrentPeriodEnd: end,
	})
	body, sig = billingtest.CheckoutSession("evt_1", f.owner.ID, f.starter.ID, "sub_test123")
	_, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, f.subscription(t).Status)

	body, sig = billingtest.SignedEvent("evt_2", billing.EventSubscriptionCreated, object)
	result, err = f.svc.HandleWebhook(ctx, "stripe", body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	sub := f.subscription(t)
	assert.Equal(t, StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, trialEnd.Unix(), sub.TrialEnd.Unix())
	assert.Equal(t, "trialing", *f.user(t).SubscriptionStatus)
}

func TestCancelAndReactivate(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "evt_1")
	ctx := context.Background()

	snap, err := f.svc.Cancel(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, snap.CancelAtPeriodEnd)
	assert.True(t, snap.IsActive)
	assert.Equal(t, StatusActive, f.subscription(t).Status)
	assert.NotNil(t, f.subscription(t).CanceledAt)

	// already cancelling
	_, err = f.svc.Cancel(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel_at_period_end"}, f.provider.Methods())

	snap, err = f.svc.Reactivate(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, snap.CancelAtPeriodEnd)
	assert.False(t, f.subscription(t).CancelAtPeriodEnd)
	assert.Nil(t, f.subscription(t).CanceledAt)

	// nothing pending
	_, err = f.svc.Reactivate(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel_at_period_end", "cancel_at_period_end"}, f.provider.Methods())
	assert.False(t, f.provider.Calls[1].Cancel)
}

func TestSelfService_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.owner.ID)
	assert.ErrorIs(t, err, ErrNoSubscription)
	_, err = f.svc.CreateBillingPortal(ctx, f.owner.ID)
	assert.ErrorIs(t, err, ErrNoBillingCustomer)

	sub := f.subscribe(t, "evt_1")

	_, err = f.svc.CreateCheckout(ctx, f.owner.ID, &CheckoutRequest{PlanID: f.pro.ID})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	_, err = f.svc.ChangePlan(ctx, f.owner.ID, &ChangePlanRequest{PlanID: f.starter.ID})
	assert.ErrorIs(t, err, ErrSamePlan)

	_, err = f.svc.ChangePlan(ctx, f.owner.ID, &ChangePlanRequest{PlanID: 9999})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	require.NoError(t, f.repo.UpdateSubscription(ctx, sub.ID, map[string]interface{}{"status": StatusCanceled}))
	_, err = f.svc.Cancel(ctx, f.owner.ID)
	assert.ErrorIs(t, err, ErrSubscriptionInactive)
	_, err = f.svc.Reactivate(ctx, f.owner.ID)
	assert.ErrorIs(t, err, ErrSubscriptionInactive)
	_, err = f.svc.ChangePlan(ctx, f.owner.ID, &ChangePlanRequest{PlanID: f.pro.ID})
	assert.ErrorIs(t, err, ErrSubscriptionInactive)

	assert.Empty(t, f.provider.Methods())
}

func TestSelfService_ForeignSubscription(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, "evt_1")

	other := &users.User{FirstName: "Other", LastName: "Owner", Email: "other@example.com", Password: "x", Role: users.RoleOwner}
	require.NoError(t, f.db.Create(other).Error)
	require.NoError(t, f.db.Model(other).Update("current_subscription_id", sub.ID).Error)

	_, err := f.svc.Cancel(context.Background(), other.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotOwned)
}

func TestChangePlan(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "evt_1")

	snap, err := f.svc.ChangePlan(context.Background(), f.owner.ID, &ChangePlanRequest{PlanID: f.pro.ID})
	require.NoError(t, err)
	require.NotNil(t, snap.Plan)
	assert.Equal(t, "pro", snap.Plan.Code)
	assert.Equal(t, f.pro.ID, f.subscription(t).PlanID)
	assert.Equal(t, f.pro.ID, *f.user(t).CurrentPlanID)

	require.Len(t, f.provider.Calls, 1)
	assert.Equal(t, "change_price", f.provider.Calls[0].Method)
	assert.Equal(t, "sub_test123", f.provider.Calls[0].SubscriptionID)
	assert.Equal(t, "price_pro", f.provider.Calls[0].PriceID)
}

func TestCreateCheckout(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.CreateCheckout(context.Background(), f.owner.ID, &CheckoutRequest{PlanID: f.starter.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_test", session.URL)

	require.Len(t, f.provider.Calls, 1)
	req := f.provider.Calls[0].Checkout
	require.NotNil(t, req)
	assert.Equal(t, "price_starter", req.PriceID)
	assert.EqualValues(t, 14, req.TrialDays)
	assert.Equal(t, f.owner.Email, req.CustomerEmail)
	assert.Equal(t, map[string]string{
		"user_id": fmt.Sprint(f.owner.ID),
		"plan_id": fmt.Sprint(f.starter.ID),
	}, req.Metadata)

	_, err = f.svc.CreateCheckout(context.Background(), f.owner.ID, &CheckoutRequest{PlanID: 9999})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCreateCheckout_NoTrialAfterFirstSubscription(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, "evt_1")
	require.NoError(t, f.repo.UpdateSubscription(context.Background(), sub.ID, map[string]interface{}{"status": StatusCanceled}))
	require.NoError(t, f.db.Model(&users.User{}).Where("id = ?", f.owner.ID).Update("subscription_status", "canceled").Error)

	_, err := f.svc.CreateCheckout(context.Background(), f.owner.ID, &CheckoutRequest{PlanID: f.pro.ID})
	require.NoError(t, err)
	require.Len(t, f.provider.Calls, 1)
	assert.Zero(t, f.provider.Calls[0].Checkout.TrialDays)
	assert.Equal(t, "cus_test", f.provider.Calls[0].Checkout.CustomerID)
}

func TestCreateBillingPortal(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "evt_1")

	session, err := f.svc.CreateBillingPortal(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/cus_test", session.URL)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.GetStatus(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.False(t, snap.HasSubscription)
	assert.False(t, snap.IsActive)
	assert.Empty(t, snap.Features)

	f.subscribe(t, "evt_1")
	require.NoError(t, f.db.Create(&reservations.Reservation{
		CustomerName: gofakeit.Name(), PartySize: 2, Date: "2030-01-01", Time: "19:00", Status: reservations.StatusConfirmed,
	}).Error)

	snap, err = f.svc.GetStatus(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.True(t, snap.HasSubscription)
	assert.True(t, snap.IsActive)
	assert.Equal(t, []string{"waitlist"}, snap.Features)
	assert.EqualValues(t, 1, snap.Usage[UsageReservations])
	assert.Equal(t, []string{UsageReservations}, snap.AtLimit)
	assert.True(t, snap.IsAtLimit)
	require.NotNil(t, snap.DaysUntilRenewal)
	assert.InDelta(t, 30, *snap.DaysUntilRenewal, 2)
}

func TestListPlans(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertPlan(context.Background(), &Plan{
		Code: "legacy", Name: "Legacy", PriceCents: 100, Currency: "usd", Interval: IntervalMonth,
	}))
	require.NoError(t, f.db.Model(&Plan{}).Where("code = ?", "legacy").Update("is_active", false).Error)

	plans, err := f.svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "starter", plans[0].Code)
	assert.Equal(t, "pro", plans[1].Code)
	assert.Equal(t, []string{"waitlist", "sms"}, plans[1].Features)
}
