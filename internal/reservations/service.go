package reservations

import (
	"context"
	"errors"
	"fmt"

	"tableside/internal/shared/utils/response"
	"tableside/pkg/logger"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidTransition   = errors.New("reservation status cannot change from a terminal state")
)

type Service interface {
	GetReservation(ctx context.Context, id uint) (*Reservation, error)
	ListReservations(ctx context.Context, query ListQuery) (*ListResponse, error)
	UpdateStatus(ctx context.Context, id uint, status Status) (*Reservation, error)
}

type service struct {
	repo Repository
	log  *logger.Logger
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
		log:  logger.GetDefault().WithComponent("reservations"),
	}
}

func (s *service) GetReservation(ctx context.Context, id uint) (*Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListReservations(ctx context.Context, query ListQuery) (*ListResponse, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}

	items, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Reservation{}
	}

	return &ListResponse{
		Reservations: items,
		Pagination:   response.NewPage(query.Page, query.Limit, total),
	}, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uint, status Status) (*Reservation, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if current.Status.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "reservation status updated", "reservation_id", id, "from", current.Status, "to", status)

	current.Status = status
	return current, nil
}
