package reservations

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, reservation *Reservation) error
	GetByID(ctx context.Context, id uint) (*Reservation, error)
	GetBySourceEntry(ctx context.Context, entryID uint) (*Reservation, error)
	List(ctx context.Context, query ListQuery) ([]Reservation, int64, error)
	UpdateStatus(ctx context.Context, id uint, status Status) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, reservation *Reservation) error {
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &reservation, nil
}

func (r *repository) GetBySourceEntry(ctx context.Context, entryID uint) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).Where("source_waitlist_entry_id = ?", entryID).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation by waitlist entry: %w", err)
	}
	return &reservation, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]Reservation, int64, error) {
	var reservations []Reservation
	var total int64

	base := r.db.WithContext(ctx).Model(&Reservation{})
	if query.Date != "" {
		base = base.Where("reservation_date = ?", query.Date)
	}
	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	err := base.Order("reservation_date ASC, reservation_time ASC, id ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&reservations).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uint, status Status) error {
	result := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update reservation status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReservationNotFound
	}
	return nil
}
