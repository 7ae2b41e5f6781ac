package waitlist

import (
	"context"
	"errors"
	"fmt"

	"tableside/internal/reservations"

	"gorm.io/gorm"
)

// Repository interface defines the contract for waitlist data operations
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uint) (*Entry, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) (*Entry, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, query ListQuery) ([]Entry, int64, error)

	// Promote applies updates and inserts the derived reservation in one transaction.
	// The update only matches rows not already seated, so a second promotion of the
	// same entry fails with ErrAlreadySeated instead of creating another reservation.
	Promote(ctx context.Context, id uint, updates map[string]interface{}) (*Entry, *reservations.Reservation, error)

	// Queue maintenance
	CountWaiting(ctx context.Context, date string) (int64, error)
	ListWaiting(ctx context.Context, date string) ([]Entry, error)
	SetEstimate(ctx context.Context, id uint, minutes int) error
	CancelWaitingBefore(ctx context.Context, date string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new waitlist repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Entry, error) {
	return getByID(r.db.WithContext(ctx), id)
}

func getByID(db *gorm.DB, id uint) (*Entry, error) {
	var entry Entry
	if err := db.Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

// Update applies updates. A status change never moves a seated entry back out of seated.
func (r *repository) Update(ctx context.Context, id uint, updates map[string]interface{}) (*Entry, error) {
	db := r.db.WithContext(ctx)
	if len(updates) == 0 {
		return getByID(db, id)
	}

	query := db.Model(&Entry{}).Where("id = ?", id)
	status, guarded := updates["status"]
	guarded = guarded && status != StatusSeated
	if guarded {
		query = query.Where("status <> ?", StatusSeated)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update waitlist entry: %w", result.Error)
	}

	entry, err := getByID(db, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 && guarded && entry.IsSeated() {
		return nil, ErrAlreadySeated
	}
	return entry, nil
}

func (r *repository) Promote(ctx context.Context, id uint, updates map[string]interface{}) (*Entry, *reservations.Reservation, error) {
	var (
		entry       *Entry
		reservation *reservations.Reservation
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Entry{}).
			Where("id = ? AND status <> ?", id, StatusSeated).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update waitlist entry: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			if _, err := getByID(tx, id); err != nil {
				return err
			}
			return ErrAlreadySeated
		}

		updated, err := getByID(tx, id)
		if err != nil {
			return err
		}

		res := updated.ToReservation()
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("failed to create reservation from waitlist entry %d: %w", id, err)
		}

		entry, reservation = updated, res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return entry, reservation, nil
}

func (r *repository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Entry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]Entry, int64, error) {
	var (
		entries []Entry
		total   int64
	)

	base := r.db.WithContext(ctx).Model(&Entry{})
	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}
	if query.Date != "" {
		base = base.Where("requested_date = ?", query.Date)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	err := base.Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list waitlist entries: %w", err)
	}

	return entries, total, nil
}

func (r *repository) CountWaiting(ctx context.Context, date string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("requested_date = ? AND status = ?", date, StatusWaiting).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting parties: %w", err)
	}
	return count, nil
}

func (r *repository) ListWaiting(ctx context.Context, date string) ([]Entry, error) {
	var entries []Entry
	err := r.db.WithContext(ctx).
		Where("requested_date = ? AND status = ?", date, StatusWaiting).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting parties: %w", err)
	}
	return entries, nil
}

func (r *repository) SetEstimate(ctx context.Context, id uint, minutes int) error {
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND status = ?", id, StatusWaiting).
		Update("estimated_wait_time", minutes).Error
	if err != nil {
		return fmt.Errorf("failed to update wait estimate: %w", err)
	}
	return nil
}

func (r *repository) CancelWaitingBefore(ctx context.Context, date string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Entry{}).
		Where("requested_date < ? AND status = ?", date, StatusWaiting).
		Update("status", StatusCancelled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire waitlist entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
