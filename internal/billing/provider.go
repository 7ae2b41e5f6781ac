// Package billing wraps the external billing provider: webhook verification,
// hosted checkout and portal sessions, and subscription mutations.
package billing

import (
	"context"
	"errors"
	"strings"
	"time"
)

const ProviderStripe = "stripe"

// Event types handled by the subscription service. Names follow the provider's wire names.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

var (
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedEvent        = errors.New("malformed billing event")
	ErrProviderNotConfigured = errors.New("billing provider is not configured")
)

// SubscriptionState is the provider's view of a subscription carried by an event
type SubscriptionState struct {
	ID                 string
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// Event is a verified, provider-neutral billing event
type Event struct {
	ID       string
	Type     string
	Provider string
	Created  time.Time
	Payload  []byte

	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string

	// Set when the payload embeds subscription details
	Subscription *SubscriptionState
}

type CheckoutRequest struct {
	PriceID       string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	TrialDays     int64
	Metadata      map[string]string
}

// Session is a hosted page the client is redirected to
type Session struct {
	ID  string
	URL string
}

type Provider interface {
	Name() string
	// SignatureHeader names the request header carrying the webhook signature
	SignatureHeader() string
	ParseEvent(payload []byte, signature string) (*Event, error)

	// GetSubscription fetches the provider's current view of a subscription
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
	ChangePrice(ctx context.Context, subscriptionID, priceID string) error
}

// Registry resolves providers by the name used in webhook paths
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}
