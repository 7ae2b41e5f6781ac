// Package billingtest provides signed webhook payloads and a recording
// provider for tests of code that talks to billing.
package billingtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tableside/internal/billing"

	"github.com/stripe/stripe-go/v82/webhook"
)

const WebhookSecret = "whsec_test_secret"

// SignedEvent builds a provider event around object and signs it with WebhookSecret.
// It returns the body and the signature header value.
func SignedEvent(id, eventType string, object map[string]interface{}) ([]byte, string) {
	body, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2024-06-20",
		"livemode":    false,
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		panic(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

// SubscriptionObject is a subscription as the provider serialises it, with
// period bounds and price on its single item
func SubscriptionObject(id, status, priceID string, cancelAtPeriodEnd bool, periodStart, periodEnd time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                   id,
		"object":               "subscription",
		"customer":             "cus_test",
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]interface{}{
			"data": []map[string]interface{}{{
				"id":                   "si_test",
				"current_period_start": periodStart.Unix(),
				"current_period_end":   periodEnd.Unix(),
				"price":                map[string]interface{}{"id": priceID},
			}},
		},
	}
}

// CheckoutSession is a checkout session event. subscription is either the
// subscription id, as the provider sends it by default, or an expanded object.
func CheckoutSession(eventID string, userID, planID uint, subscription interface{}) ([]byte, string) {
	return SignedEvent(eventID, billing.EventCheckoutCompleted, map[string]interface{}{
		"id":       "cs_" + eventID,
		"object":   "checkout.session",
		"customer": "cus_test",
		"mode":     "subscription",
		"metadata": map[string]string{
			"user_id": fmt.Sprint(userID),
			"plan_id": fmt.Sprint(planID),
		},
		"subscription": subscription,
	})
}

// CheckoutCompleted is a checkout session event with an expanded active subscription
func CheckoutCompleted(eventID string, userID, planID uint, subscriptionID string, periodStart, periodEnd time.Time) ([]byte, string) {
	return CheckoutSession(eventID, userID, planID,
		SubscriptionObject(subscriptionID, "active", "", false, periodStart, periodEnd))
}

// SubscriptionEvent is a customer.subscription.* event
func SubscriptionEvent(eventID, eventType, subscriptionID, status, priceID string, cancelAtPeriodEnd bool, periodStart, periodEnd time.Time) ([]byte, string) {
	return SignedEvent(eventID, eventType,
		SubscriptionObject(subscriptionID, status, priceID, cancelAtPeriodEnd, periodStart, periodEnd))
}

// InvoiceEvent is an invoice.* event for a subscription
func InvoiceEvent(eventID, eventType, subscriptionID string, periodStart, periodEnd time.Time) ([]byte, string) {
	return SignedEvent(eventID, eventType, map[string]interface{}{
		"id":       "in_" + eventID,
		"object":   "invoice",
		"customer": "cus_test",
		"parent": map[string]interface{}{
			"subscription_details": map[string]interface{}{"subscription": subscriptionID},
		},
		"lines": map[string]interface{}{
			"data": []map[string]interface{}{{
				"period": map[string]interface{}{"start": periodStart.Unix(), "end": periodEnd.Unix()},
			}},
		},
	})
}

// Call records one mutating request made against the Provider
type Call struct {
	Method         string
	SubscriptionID string
	PriceID        string
	Cancel         bool
	Checkout       *billing.CheckoutRequest
}

// Provider verifies webhooks like the real provider and records every outbound call
type Provider struct {
	billing.Provider

	mu            sync.Mutex
	Calls         []Call
	Err           error
	subscriptions map[string]*billing.SubscriptionState
}

func NewProvider() *Provider {
	return &Provider{
		Provider: billing.NewStripeProvider(billing.StripeConfig{WebhookSecret: WebhookSecret}),
	}
}

// SetSubscription stores the state GetSubscription returns for state.ID
func (p *Provider) SetSubscription(state *billing.SubscriptionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscriptions == nil {
		p.subscriptions = make(map[string]*billing.SubscriptionState)
	}
	p.subscriptions[state.ID] = state
}

func (p *Provider) GetSubscription(_ context.Context, subscriptionID string) (*billing.SubscriptionState, error) {
	if err := p.record(Call{Method: "get_subscription", SubscriptionID: subscriptionID}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
	}
	copied := *state
	return &copied, nil
}

func (p *Provider) record(c Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, c)
	return p.Err
}

func (p *Provider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.Session, error) {
	if err := p.record(Call{Method: "checkout", PriceID: req.PriceID, Checkout: &req}); err != nil {
		return nil, err
	}
	return &billing.Session{ID: "cs_test", URL: "https://checkout.example.com/cs_test"}, nil
}

func (p *Provider) CreatePortalSession(_ context.Context, customerID, _ string) (*billing.Session, error) {
	if err := p.record(Call{Method: "portal"}); err != nil {
		return nil, err
	}
	return &billing.Session{ID: "bps_test", URL: "https://billing.example.com/" + customerID}, nil
}

func (p *Provider) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) error {
	return p.record(Call{Method: "cancel_at_period_end", SubscriptionID: subscriptionID, Cancel: cancel})
}

func (p *Provider) ChangePrice(_ context.Context, subscriptionID, priceID string) error {
	return p.record(Call{Method: "change_price", SubscriptionID: subscriptionID, PriceID: priceID})
}

// Methods returns the recorded method names in order
func (p *Provider) Methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Calls))
	for _, c := range p.Calls {
		out = append(out, c.Method)
	}
	return out
}
