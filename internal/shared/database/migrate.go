package database

import (
	"tableside/internal/reservations"
	"tableside/internal/subscriptions"
	"tableside/internal/users"
	"tableside/internal/waitlist"

	"gorm.io/gorm"
)

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&waitlist.Entry{},
		&reservations.Reservation{},
		&subscriptions.Plan{},
		&subscriptions.Subscription{},
		&subscriptions.BillingEvent{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
