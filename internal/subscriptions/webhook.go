package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tableside/internal/billing"
	"tableside/pkg/logger"
)

// checkoutRef is the metadata a completed checkout must carry
type checkoutRef struct {
	userID         uint
	planID         uint
	subscriptionID string
}

func parseCheckoutRef(event *billing.Event) (*checkoutRef, error) {
	userID, err := strconv.ParseUint(event.Metadata["user_id"], 10, 64)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: missing or invalid user_id", ErrMalformedEvent)
	}
	planID, err := strconv.ParseUint(event.Metadata["plan_id"], 10, 64)
	if err != nil || planID == 0 {
		return nil, fmt.Errorf("%w: missing or invalid plan_id", ErrMalformedEvent)
	}
	if event.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrMalformedEvent)
	}
	return &checkoutRef{userID: uint(userID), planID: uint(planID), subscriptionID: event.SubscriptionID}, nil
}

// effect is what a processed event did, consumed after commit
type effect struct {
	userID       uint
	subscription Subscription
	planName     string
	notification string
}

// HandleWebhook verifies and applies a provider event. The event row and the
// state change commit together, so a redelivered event is a no-op.
func (s *service) HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*WebhookResult, error) {
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	event, err := provider.ParseEvent(payload, signature)
	if err != nil {
		s.metrics.BillingEvent("unknown", OutcomeRejected)
		switch {
		case errors.Is(err, billing.ErrMalformedEvent):
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		case errors.Is(err, billing.ErrProviderNotConfigured):
			return nil, ErrUnsupportedProvider
		default:
			return nil, ErrInvalidSignature
		}
	}
	if event.ID == "" || event.Type == "" {
		s.metrics.BillingEvent("unknown", OutcomeRejected)
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	var ref *checkoutRef
	if event.Type == billing.EventCheckoutCompleted {
		if ref, err = parseCheckoutRef(event); err != nil {
			s.metrics.BillingEvent(event.Type, OutcomeRejected)
			return nil, err
		}
		// sessions reference the subscription by id unless expanded
		if event.Subscription == nil {
			state, err := provider.GetSubscription(ctx, ref.subscriptionID)
			if err != nil {
				s.metrics.BillingEvent(event.Type, OutcomeFailed)
				return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			event.Subscription = state
		}
	}

	row := &BillingEvent{
		Provider:   provider.Name(),
		EventID:    event.ID,
		Type:       event.Type,
		Outcome:    OutcomeProcessed,
		Payload:    string(event.Payload),
		ReceivedAt: s.config.Now(),
	}

	var applied *effect
	duplicate, err := s.repo.RecordEvent(ctx, row, func(tx Tx) (string, error) {
		applied = nil
		var (
			eff *effect
			err error
		)
		switch event.Type {
		case billing.EventCheckoutCompleted:
			eff, err = s.applyCheckout(ctx, tx, provider.Name(), event, ref)
		case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
			eff, err = s.applySubscriptionChange(ctx, tx, provider.Name(), event)
		case billing.EventInvoicePaid, billing.EventInvoicePaymentFailed:
			eff, err = s.applyInvoice(ctx, tx, provider.Name(), event)
		default:
			return OutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}
		if eff == nil {
			return OutcomeIgnored, nil
		}
		if err := tx.LinkEvent(ctx, row.ID, eff.subscription.ID); err != nil {
			return "", err
		}
		applied = eff
		return OutcomeProcessed, nil
	})
	if err != nil {
		s.metrics.BillingEvent(event.Type, OutcomeFailed)
		s.log.ErrorWithContext(ctx, "billing event failed", err, map[string]interface{}{
			"provider": provider.Name(), "event_id": event.ID, "event_type": event.Type,
		})
		return nil, err
	}

	outcome := row.Outcome
	if duplicate {
		outcome = OutcomeDuplicate
		applied = nil
	}
	s.metrics.BillingEvent(event.Type, outcome)
	s.log.LogBillingEvent(ctx, provider.Name(), event.ID, event.Type, outcome)

	if applied != nil {
		s.invalidate(ctx, applied.userID)
		s.notifyOwner(ctx, applied)
	}

	return &WebhookResult{
		EventID:   event.ID,
		Type:      event.Type,
		Outcome:   outcome,
		Duplicate: duplicate,
	}, nil
}

// applyCheckout creates or refreshes the subscription a checkout produced
func (s *service) applyCheckout(ctx context.Context, tx Tx, provider string, event *billing.Event, ref *checkoutRef) (*effect, error) {
	user, err := tx.GetUser(ctx, ref.userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user %d", ErrMalformedEvent, ref.userID)
		}
		return nil, err
	}
	plan, err := tx.GetPlan(ctx, ref.planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, fmt.Errorf("%w: unknown plan %d", ErrMalformedEvent, ref.planID)
		}
		return nil, err
	}

	sub, err := tx.FindByProviderRef(ctx, provider, ref.subscriptionID)
	switch {
	case errors.Is(err, ErrNoSubscription):
		sub = &Subscription{
			UserID:                 user.ID,
			Provider:               provider,
			ProviderSubscriptionID: ref.subscriptionID,
		}
	case err != nil:
		return nil, err
	case sub.UserID != user.ID:
		return nil, fmt.Errorf("%w: subscription %s belongs to another user", ErrMalformedEvent, ref.subscriptionID)
	}

	sub.PlanID = plan.ID
	sub.Status = StatusActive
	sub.EndedAt = nil
	if event.CustomerID != "" {
		sub.ProviderCustomerID = event.CustomerID
	}

	start, end := event.Created, plan.PeriodEnd(event.Created)
	if state := event.Subscription; state != nil {
		if state.Status == string(StatusTrialing) {
			sub.Status = StatusTrialing
		}
		if !state.CurrentPeriodStart.IsZero() && !state.CurrentPeriodEnd.IsZero() {
			start, end = state.CurrentPeriodStart, state.CurrentPeriodEnd
		}
		sub.TrialStart = state.TrialStart
		sub.TrialEnd = state.TrialEnd
		sub.CancelAtPeriodEnd = state.CancelAtPeriodEnd
		sub.CanceledAt = state.CanceledAt
	}
	if start.IsZero() {
		start = s.config.Now()
		end = plan.PeriodEnd(start)
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end

	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := tx.SyncUser(ctx, sub); err != nil {
		return nil, err
	}

	return &effect{
		userID:       user.ID,
		subscription: *sub,
		planName:     plan.Name,
		notification: NotificationActivated,
	}, nil
}

// findForEvent resolves the local subscription an event refers to.
// Events for subscriptions we never saw are ignored.
func findForEvent(ctx context.Context, tx Tx, provider string, event *billing.Event) (*Subscription, error) {
	id := event.SubscriptionID
	if id == "" && event.Subscription != nil {
		id = event.Subscription.ID
	}
	if id == "" {
		return nil, nil
	}
	sub, err := tx.FindByProviderRef(ctx, provider, id)
	if errors.Is(err, ErrNoSubscription) {
		return nil, nil
	}
	return sub, err
}

// syncIfCurrent moves the owner's pointer only when it already references
// this subscription or nothing
func syncIfCurrent(ctx context.Context, tx Tx, sub *Subscription) error {
	user, err := tx.GetUser(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if user.CurrentSubscriptionID != nil && *user.CurrentSubscriptionID != sub.ID {
		return nil
	}
	return tx.SyncUser(ctx, sub)
}

func (s *service) applySubscriptionChange(ctx context.Context, tx Tx, provider string, event *billing.Event) (*effect, error) {
	sub, err := findForEvent(ctx, tx, provider, event)
	if err != nil || sub == nil {
		return nil, err
	}

	notification := ""
	if event.Type == billing.EventSubscriptionDeleted {
		ended := event.Created
		if ended.IsZero() {
			ended = s.config.Now()
		}
		sub.Status = StatusCanceled
		sub.CancelAtPeriodEnd = false
		sub.EndedAt = &ended
		if sub.CanceledAt == nil {
			sub.CanceledAt = &ended
		}
		notification = NotificationCanceled
	} else {
		state := event.Subscription
		if state == nil {
			return nil, fmt.Errorf("%w: subscription payload missing", ErrMalformedEvent)
		}
		sub.Status = ParseStatus(state.Status)
		sub.CancelAtPeriodEnd = state.CancelAtPeriodEnd
		sub.CanceledAt = state.CanceledAt
		sub.TrialStart = state.TrialStart
		sub.TrialEnd = state.TrialEnd
		if !state.CurrentPeriodStart.IsZero() && !state.CurrentPeriodEnd.IsZero() {
			sub.CurrentPeriodStart = state.CurrentPeriodStart
			sub.CurrentPeriodEnd = state.CurrentPeriodEnd
		}
		if state.PriceID != "" {
			plan, err := tx.GetPlanByPriceID(ctx, state.PriceID)
			switch {
			case err == nil:
				sub.PlanID = plan.ID
			case !errors.Is(err, ErrPlanNotFound):
				return nil, err
			}
		}
	}

	return s.saveAndSync(ctx, tx, sub, notification)
}

func (s *service) applyInvoice(ctx context.Context, tx Tx, provider string, event *billing.Event) (*effect, error) {
	sub, err := findForEvent(ctx, tx, provider, event)
	if err != nil || sub == nil {
		return nil, err
	}

	if sub.Status.IsTerminal() {
		return nil, nil
	}

	notification := ""
	if event.Type == billing.EventInvoicePaid {
		switch sub.Status {
		case StatusPastDue, StatusIncomplete, StatusUnpaid:
			sub.Status = StatusActive
		}
		if state := event.Subscription; state != nil && !state.CurrentPeriodEnd.IsZero() {
			if !state.CurrentPeriodEnd.Before(sub.CurrentPeriodEnd) {
				sub.CurrentPeriodStart = state.CurrentPeriodStart
				sub.CurrentPeriodEnd = state.CurrentPeriodEnd
			}
		}
	} else {
		sub.Status = StatusPastDue
		notification = NotificationPaymentFailed
	}

	return s.saveAndSync(ctx, tx, sub, notification)
}

func (s *service) saveAndSync(ctx context.Context, tx Tx, sub *Subscription, notification string) (*effect, error) {
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := syncIfCurrent(ctx, tx, sub); err != nil {
		return nil, err
	}

	eff := &effect{userID: sub.UserID, subscription: *sub, notification: notification}
	if notification != "" {
		if plan, err := tx.GetPlan(ctx, sub.PlanID); err == nil {
			eff.planName = plan.Name
		}
	}
	return eff, nil
}

// notifyOwner is best effort; the event is already committed
func (s *service) notifyOwner(ctx context.Context, eff *effect) {
	if eff.notification == "" || s.notifier == nil || s.directory == nil {
		return
	}

	email, name, err := s.directory.GetContact(ctx, eff.userID)
	if err != nil {
		s.log.Warn("subscription notification skipped", "user_id", eff.userID, logger.Err(err))
		return
	}

	data := map[string]interface{}{
		"plan_name":          eff.planName,
		"status":             string(eff.subscription.Status),
		"current_period_end": eff.subscription.CurrentPeriodEnd.Format(time.DateOnly),
	}
	if err := s.notifier.SendSubscriptionNotification(ctx, eff.userID, email, name, eff.notification, data); err != nil {
		s.log.Warn("subscription notification failed", "user_id", eff.userID, "type", eff.notification, logger.Err(err))
	}
}
