package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// Tolerance bounds the age of a signed webhook; zero uses the SDK default
	Tolerance time.Duration
}

type StripeProvider struct {
	config StripeConfig
	api    *client.API
}

func NewStripeProvider(config StripeConfig) *StripeProvider {
	p := &StripeProvider{config: config}
	if config.SecretKey != "" {
		p.api = client.New(config.SecretKey, nil)
	}
	return p
}

func (p *StripeProvider) Name() string {
	return ProviderStripe
}

func (p *StripeProvider) SignatureHeader() string {
	return stripeSignatureHeader
}

// ParseEvent verifies the signature before decoding anything from the payload
func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*Event, error) {
	if p.config.WebhookSecret == "" {
		return nil, ErrProviderNotConfigured
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.config.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := &Event{
		ID:       raw.ID,
		Type:     string(raw.Type),
		Provider: ProviderStripe,
		Created:  time.Unix(raw.Created, 0).UTC(),
		Payload:  payload,
	}
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return event, nil
	}
	if err := decodeStripeObject(event, raw.Data.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return event, nil
}

func (p *StripeProvider) ready() error {
	if p.api == nil {
		return ErrProviderNotConfigured
	}
	return nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	return subscriptionState(sub), nil
}

func subscriptionState(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		ID:                sub.ID,
		Status:            string(sub.Status),
		TrialStart:        unixPtr(sub.TrialStart),
		TrialEnd:          unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(sub.CanceledAt),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			state.PriceID = item.Price.ID
		}
		state.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		state.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return state
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	params.Metadata = req.Metadata
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if userID, ok := req.Metadata["user_id"]; ok {
		params.ClientReferenceID = stripe.String(userID)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing portal session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	if err := p.ready(); err != nil {
		return err
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// ChangePrice swaps the single subscription item to a new price; the provider prorates
func (p *StripeProvider) ChangePrice(ctx context.Context, subscriptionID, priceID string) error {
	if err := p.ready(); err != nil {
		return err
	}

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(sub.Items.Data[0].ID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to change price of subscription %s: %w", subscriptionID, err)
	}
	return nil
}
