package reservations

import (
	"time"
)

// Reservation is a booked table. Rows promoted from the waitlist carry
// the originating entry id; at most one reservation exists per entry.
type Reservation struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CustomerName          string    `gorm:"type:varchar(255);not null" json:"customerName"`
	CustomerEmail         string    `gorm:"type:varchar(255)" json:"customerEmail"`
	CustomerPhone         string    `gorm:"type:varchar(32);index" json:"customerPhone"`
	PartySize             int       `gorm:"not null" json:"partySize"`
	Date                  string    `gorm:"column:reservation_date;type:varchar(10);not null;index" json:"date"`
	Time                  string    `gorm:"column:reservation_time;type:varchar(5);not null" json:"time"`
	SpecialRequests       string    `gorm:"type:text" json:"specialRequests"`
	Status                Status    `gorm:"type:varchar(20);not null;default:'confirmed'" json:"status"`
	SourceWaitlistEntryID *uint     `gorm:"uniqueIndex" json:"sourceWaitlistEntryId,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

func (Reservation) TableName() string {
	return "reservations"
}
