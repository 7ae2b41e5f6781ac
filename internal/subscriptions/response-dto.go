package subscriptions

import "time"

type PlanResponse struct {
	ID          uint             `json:"id"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	PriceCents  int64            `json:"priceCents"`
	Currency    string           `json:"currency"`
	Interval    string           `json:"interval"`
	Features    []string         `json:"features"`
	Limits      map[string]int64 `json:"limits"`
	TrialDays   int              `json:"trialDays"`
}

type SubscriptionResponse struct {
	ID                 uint       `json:"id"`
	PlanID             uint       `json:"planId"`
	Status             Status     `json:"status"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	TrialEnd           *time.Time `json:"trialEnd,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
}

// StatusSnapshot is the read model behind GET /subscription/status
type StatusSnapshot struct {
	HasSubscription bool                  `json:"hasSubscription"`
	Subscription    *SubscriptionResponse `json:"subscription"`
	Plan            *PlanResponse         `json:"plan"`

	Features []string         `json:"features"`
	Limits   map[string]int64 `json:"limits"`
	Usage    map[string]int64 `json:"usage"`
	AtLimit  []string         `json:"atLimit"`

	IsActive          bool `json:"isActive"`
	IsTrialing        bool `json:"isTrialing"`
	IsTrialExpiring   bool `json:"isTrialExpiring"`
	IsAtLimit         bool `json:"isAtLimit"`
	CancelAtPeriodEnd bool `json:"cancelAtPeriodEnd"`

	TrialDaysRemaining *int `json:"trialDaysRemaining"`
	DaysUntilRenewal   *int `json:"daysUntilRenewal"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// SessionResponse carries the hosted page the client redirects to
type SessionResponse struct {
	URL string `json:"url"`
}

// WebhookResult describes how an event was applied
type WebhookResult struct {
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	Outcome   string `json:"outcome"`
	Duplicate bool   `json:"duplicate"`
}

func toPlanResponse(p *Plan) PlanResponse {
	features := []string(p.Features)
	if features == nil {
		features = []string{}
	}
	limits := map[string]int64(p.Limits)
	if limits == nil {
		limits = map[string]int64{}
	}
	return PlanResponse{
		ID:          p.ID,
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Interval:    p.Interval,
		Features:    features,
		Limits:      limits,
		TrialDays:   p.TrialDays,
	}
}

func toSubscriptionResponse(s *Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:                 s.ID,
		PlanID:             s.PlanID,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialEnd:           s.TrialEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
	}
}
