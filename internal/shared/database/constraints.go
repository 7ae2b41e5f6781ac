package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds indexes that the model tags cannot express
func MigrateConstraints(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres":
		// Today's queue lookups filter on date and status together.
		if err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_waitlist_entries_date_status
			ON waitlist_entries (requested_date, status);
		`).Error; err != nil {
			return err
		}
		return db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_reservations_date_status
			ON reservations (reservation_date, status);
		`).Error
	case "sqlite":
		if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_waitlist_entries_date_status ON waitlist_entries (requested_date, status)`).Error; err != nil {
			return err
		}
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_reservations_date_status ON reservations (reservation_date, status)`).Error
	default:
		// mysql has no CREATE INDEX IF NOT EXISTS; the composite index is optional.
		return nil
	}
}
