package client

import (
	"context"
	"sync"
)

// SubscriptionState is a read-through holder of the latest snapshot.
// It is safe for concurrent use.
type SubscriptionState struct {
	client *Client

	mu       sync.RWMutex
	snapshot *Snapshot
	loading  bool
	err      error
}

func NewSubscriptionState(c *Client) *SubscriptionState {
	return &SubscriptionState{client: c}
}

// Refresh fetches the snapshot. On failure the previous snapshot is kept
// and the error is exposed through Err.
func (s *SubscriptionState) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	snap, err := s.client.Status(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err == nil {
		s.snapshot = snap
	}
	return err
}

// Snapshot returns the last fetched snapshot, or nil before the first success
func (s *SubscriptionState) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *SubscriptionState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *SubscriptionState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *SubscriptionState) read(fn func(*Snapshot) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return false
	}
	return fn(s.snapshot)
}

func (s *SubscriptionState) IsActive() bool {
	return s.read(func(snap *Snapshot) bool { return snap.IsActive })
}

func (s *SubscriptionState) IsTrialing() bool {
	return s.read(func(snap *Snapshot) bool { return snap.IsTrialing })
}

func (s *SubscriptionState) IsTrialExpiring() bool {
	return s.read(func(snap *Snapshot) bool { return snap.IsTrialExpiring })
}

func (s *SubscriptionState) IsCancelling() bool {
	return s.read(func(snap *Snapshot) bool { return snap.CancelAtPeriodEnd })
}

// HasFeature reports whether the current plan unlocks feature
func (s *SubscriptionState) HasFeature(feature string) bool {
	return s.read(func(snap *Snapshot) bool {
		for _, f := range snap.Features {
			if f == feature {
				return true
			}
		}
		return false
	})
}

// IsAtLimit reports whether usage of key reached its cap
func (s *SubscriptionState) IsAtLimit(key string) bool {
	return s.read(func(snap *Snapshot) bool {
		for _, k := range snap.AtLimit {
			if k == key {
				return true
			}
		}
		return false
	})
}

// Remaining returns how much of key is left this period; ok is false when uncapped
func (s *SubscriptionState) Remaining(key string) (remaining int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return 0, false
	}
	limit, capped := s.snapshot.Limits[key]
	if !capped || limit < 0 {
		return 0, false
	}
	left := limit - s.snapshot.Usage[key]
	if left < 0 {
		left = 0
	}
	return left, true
}

// Checkout starts a hosted checkout and refreshes afterwards
func (s *SubscriptionState) Checkout(ctx context.Context, planID uint) (string, error) {
	url, err := s.client.Checkout(ctx, planID)
	return url, s.after(ctx, err)
}

func (s *SubscriptionState) BillingPortal(ctx context.Context) (string, error) {
	url, err := s.client.BillingPortal(ctx)
	return url, s.after(ctx, err)
}

func (s *SubscriptionState) Cancel(ctx context.Context) error {
	_, err := s.client.Cancel(ctx)
	return s.after(ctx, err)
}

func (s *SubscriptionState) Reactivate(ctx context.Context) error {
	_, err := s.client.Reactivate(ctx)
	return s.after(ctx, err)
}

func (s *SubscriptionState) ChangePlan(ctx context.Context, planID uint) error {
	_, err := s.client.ChangePlan(ctx, planID)
	return s.after(ctx, err)
}

// after refetches whatever the action did; the action's error wins
func (s *SubscriptionState) after(ctx context.Context, actionErr error) error {
	refreshErr := s.Refresh(ctx)
	if actionErr != nil {
		s.mu.Lock()
		s.err = actionErr
		s.mu.Unlock()
		return actionErr
	}
	return refreshErr
}
