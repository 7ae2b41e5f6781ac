package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tableside/internal/shared/metrics"
	"tableside/internal/shared/utils/response"
	"tableside/pkg/logger"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrEntryNotFound = errors.New("waitlist entry not found")
	ErrAlreadySeated = errors.New("waitlist entry is already seated")
	ErrPastDate      = errors.New("requested date is in the past")
	ErrNotWaiting    = errors.New("waitlist entry is no longer waiting")
)

// Notification types published by the waitlist
const (
	NotificationJoined     = "waitlist_joined"
	NotificationTableReady = "waitlist_table_ready"
	NotificationSeated     = "waitlist_seated"
)

// NotificationService defines the interface for sending notifications (to avoid import cycles)
type NotificationService interface {
	SendWaitlistNotification(ctx context.Context, entryID uint, email, name, notificationType string,
		templateData map[string]interface{}) error
}

// Service interface defines the contract for waitlist business operations
type Service interface {
	Join(ctx context.Context, req *JoinRequest) (*EntryResponse, error)
	GetEntry(ctx context.Context, id uint, caller Caller) (*EntryResponse, error)
	UpdateEntry(ctx context.Context, id uint, caller Caller, req *UpdateEntryRequest) (*UpdateResponse, error)
	DeleteEntry(ctx context.Context, id uint, caller Caller) error

	// Staff operations
	ListEntries(ctx context.Context, query ListQuery) (*ListResponse, error)
	NotifyEntry(ctx context.Context, id uint) (*EntryResponse, error)

	// Background job operations
	ExpirePastEntries(ctx context.Context) (int64, error)
	RefreshEstimates(ctx context.Context) (int, error)
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	MinutesPerParty int
	Now             func() time.Time
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MinutesPerParty: DefaultMinutesPerParty,
		Now:             time.Now,
	}
}

type service struct {
	repo                Repository
	notificationService NotificationService
	metrics             *metrics.Metrics
	config              *ServiceConfig
	log                 *logger.Logger
}

// NewService creates a new waitlist service. notificationService and m may be nil.
func NewService(repo Repository, notificationService NotificationService, m *metrics.Metrics, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if config.MinutesPerParty <= 0 {
		config.MinutesPerParty = DefaultMinutesPerParty
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &service{
		repo:                repo,
		notificationService: notificationService,
		metrics:             m,
		config:              config,
		log:                 logger.GetDefault().WithComponent("waitlist"),
	}
}

func (s *service) today() string {
	return s.config.Now().Format(DateLayout)
}

// Join adds a party to the waitlist and estimates its wait from the parties already waiting
func (s *service) Join(ctx context.Context, req *JoinRequest) (*EntryResponse, error) {
	if req.Date < s.today() {
		return nil, ErrPastDate
	}

	ahead, err := s.repo.CountWaiting(ctx, req.Date)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		CustomerName:      req.CustomerName,
		CustomerEmail:     req.CustomerEmail,
		CustomerPhone:     req.CustomerPhone,
		PartySize:         req.PartySize,
		Date:              req.Date,
		Time:              req.Time,
		SpecialRequests:   req.SpecialRequests,
		Status:            StatusWaiting,
		EstimatedWaitTime: int(ahead) * s.config.MinutesPerParty,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "party joined waitlist", "entry_id", entry.ID, "date", entry.Date, "parties_ahead", ahead)
	s.notify(ctx, entry, NotificationJoined, map[string]interface{}{
		"parties_ahead":       ahead,
		"estimated_wait_time": entry.EstimatedWaitTime,
	})

	resp := toEntryResponse(entry)
	return &resp, nil
}

// authorize loads the entry the caller is allowed to see.
// A caller with no credential is rejected before the database is touched.
func (s *service) authorize(ctx context.Context, id uint, caller Caller) (*Entry, error) {
	if !caller.HasCredential() {
		return nil, ErrUnauthorized
	}

	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.Staff && !PhoneMatches(entry.CustomerPhone, caller.Phone) {
		return nil, ErrUnauthorized
	}
	return entry, nil
}

func (s *service) GetEntry(ctx context.Context, id uint, caller Caller) (*EntryResponse, error) {
	entry, err := s.authorize(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	resp := toEntryResponse(entry)
	return &resp, nil
}

func (s *service) UpdateEntry(ctx context.Context, id uint, caller Caller, req *UpdateEntryRequest) (*UpdateResponse, error) {
	current, err := s.authorize(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	// seated is terminal; the derived reservation already exists
	if caller.Staff && current.IsSeated() && req.Status != nil && *req.Status != StatusSeated {
		return nil, ErrAlreadySeated
	}

	updates := buildUpdates(req, caller.Staff)

	promote := caller.Staff &&
		req.Status != nil && *req.Status == StatusSeated &&
		!current.IsSeated()

	if !promote {
		updated, err := s.repo.Update(ctx, id, updates)
		if err != nil {
			return nil, err
		}
		return &UpdateResponse{EntryResponse: toEntryResponse(updated)}, nil
	}

	updated, reservation, err := s.repo.Promote(ctx, id, updates)
	if err != nil {
		s.metrics.WaitlistPromotion("failed")
		if !errors.Is(err, ErrAlreadySeated) && !errors.Is(err, ErrEntryNotFound) {
			s.log.ErrorWithContext(ctx, "waitlist promotion rolled back", err, map[string]interface{}{"entry_id": id})
		}
		return nil, err
	}

	s.metrics.WaitlistPromotion("seated")
	s.log.LogWaitlistPromoted(ctx, updated.ID, reservation.ID)
	s.notify(ctx, updated, NotificationSeated, map[string]interface{}{
		"reservation_id": reservation.ID,
	})

	return &UpdateResponse{
		EntryResponse:      toEntryResponse(updated),
		ReservationCreated: true,
		Reservation:        reservation,
	}, nil
}

// buildUpdates maps the supplied fields onto columns. Customers may only
// change their contact name, email, party size and special requests.
func buildUpdates(req *UpdateEntryRequest, staff bool) map[string]interface{} {
	updates := make(map[string]interface{})

	if req.CustomerName != nil {
		updates["customer_name"] = *req.CustomerName
	}
	if req.CustomerEmail != nil {
		updates["customer_email"] = *req.CustomerEmail
	}
	if req.PartySize != nil {
		updates["party_size"] = *req.PartySize
	}
	if req.SpecialRequests != nil {
		updates["special_requests"] = *req.SpecialRequests
	}

	if !staff {
		return updates
	}

	if req.CustomerPhone != nil {
		updates["customer_phone"] = *req.CustomerPhone
	}
	if req.Date != nil {
		updates["requested_date"] = *req.Date
	}
	if req.Time != nil {
		updates["requested_time"] = *req.Time
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.EstimatedWaitTime != nil {
		updates["estimated_wait_time"] = *req.EstimatedWaitTime
	}
	if req.Notified != nil {
		updates["notified"] = *req.Notified
	}
	return updates
}

// DeleteEntry removes the entry. A reservation already derived from it is left alone.
func (s *service) DeleteEntry(ctx context.Context, id uint, caller Caller) error {
	if _, err := s.authorize(ctx, id, caller); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "waitlist entry deleted", "entry_id", id, "by_staff", caller.Staff)
	return nil
}

func (s *service) ListEntries(ctx context.Context, query ListQuery) (*ListResponse, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}

	entries, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toEntryResponse(&entries[i]))
	}

	return &ListResponse{
		Entries:    items,
		Pagination: response.NewPage(query.Page, query.Limit, total),
	}, nil
}

// NotifyEntry tells a waiting party their table is ready
func (s *service) NotifyEntry(ctx context.Context, id uint) (*EntryResponse, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusWaiting {
		return nil, ErrNotWaiting
	}

	if s.notificationService != nil && entry.CustomerEmail != "" {
		err := s.notificationService.SendWaitlistNotification(ctx, entry.ID, entry.CustomerEmail, entry.CustomerName,
			NotificationTableReady, map[string]interface{}{
				"party_size": entry.PartySize,
				"date":       entry.Date,
				"time":       entry.Time,
			})
		if err != nil {
			return nil, fmt.Errorf("failed to send table ready notification: %w", err)
		}
	}

	updated, err := s.repo.Update(ctx, id, map[string]interface{}{"notified": true})
	if err != nil {
		return nil, err
	}

	resp := toEntryResponse(updated)
	return &resp, nil
}

// ExpirePastEntries cancels parties still waiting for a date that has passed
func (s *service) ExpirePastEntries(ctx context.Context) (int64, error) {
	return s.repo.CancelWaitingBefore(ctx, s.today())
}

// RefreshEstimates recomputes today's wait estimates from queue order
func (s *service) RefreshEstimates(ctx context.Context) (int, error) {
	waiting, err := s.repo.ListWaiting(ctx, s.today())
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range waiting {
		estimate := i * s.config.MinutesPerParty
		if waiting[i].EstimatedWaitTime == estimate {
			continue
		}
		if err := s.repo.SetEstimate(ctx, waiting[i].ID, estimate); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// notify is best effort; a broker outage never fails the waitlist operation
func (s *service) notify(ctx context.Context, entry *Entry, notificationType string, data map[string]interface{}) {
	if s.notificationService == nil || entry.CustomerEmail == "" {
		return
	}
	data["customer_name"] = entry.CustomerName
	data["party_size"] = entry.PartySize
	data["date"] = entry.Date
	data["time"] = entry.Time

	if err := s.notificationService.SendWaitlistNotification(ctx, entry.ID, entry.CustomerEmail, entry.CustomerName, notificationType, data); err != nil {
		s.log.Warn("waitlist notification failed", "entry_id", entry.ID, "type", notificationType, logger.Err(err))
	}
}
