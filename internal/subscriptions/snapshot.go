package subscriptions

import (
	"math"
	"sort"
	"time"
)

// daysUntil rounds up so a deadline later today still counts as one day
func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// BuildSnapshot derives the status read model. sub and plan may be nil.
func BuildSnapshot(sub *Subscription, plan *Plan, usage map[string]int64, now time.Time, trialExpiringDays int) StatusSnapshot {
	snap := StatusSnapshot{
		Features:    []string{},
		Limits:      map[string]int64{},
		Usage:       map[string]int64{},
		AtLimit:     []string{},
		GeneratedAt: now,
	}
	for k, v := range usage {
		snap.Usage[k] = v
	}

	if sub == nil {
		return snap
	}

	snap.HasSubscription = true
	snap.Subscription = toSubscriptionResponse(sub)
	snap.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	snap.IsTrialing = sub.Status == StatusTrialing
	snap.IsActive = sub.Status == StatusActive || snap.IsTrialing

	if snap.IsTrialing && sub.TrialEnd != nil {
		remaining := daysUntil(now, *sub.TrialEnd)
		snap.TrialDaysRemaining = &remaining
		snap.IsTrialExpiring = sub.TrialEnd.After(now) && remaining <= trialExpiringDays
	}
	if sub.Status.IsLive() && !sub.CurrentPeriodEnd.IsZero() {
		renewal := daysUntil(now, sub.CurrentPeriodEnd)
		snap.DaysUntilRenewal = &renewal
	}

	if plan == nil {
		return snap
	}
	planResp := toPlanResponse(plan)
	snap.Plan = &planResp

	if !snap.IsActive && sub.Status != StatusPastDue {
		return snap
	}
	snap.Features = planResp.Features
	for k, v := range planResp.Limits {
		snap.Limits[k] = v
		if v < 0 {
			continue
		}
		if snap.Usage[k] >= v {
			snap.AtLimit = append(snap.AtLimit, k)
		}
	}
	sort.Strings(snap.AtLimit)
	snap.IsAtLimit = len(snap.AtLimit) > 0
	return snap
}
