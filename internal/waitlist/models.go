package waitlist

import (
	"strings"
	"time"

	"tableside/internal/reservations"
)

// Status of a waitlist entry. seated and cancelled are terminal.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusSeated    Status = "seated"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusSeated, StatusCancelled:
		return true
	}
	return false
}

// Entry is a party waiting for a table
type Entry struct {
	ID                uint      `gorm:"primaryKey"`
	CustomerName      string    `gorm:"type:varchar(255);not null"`
	CustomerEmail     string    `gorm:"type:varchar(255)"`
	CustomerPhone     string    `gorm:"type:varchar(32);not null;index"`
	PartySize         int       `gorm:"not null"`
	Date              string    `gorm:"column:requested_date;type:varchar(10);not null;index"`
	Time              string    `gorm:"column:requested_time;type:varchar(5);not null"`
	SpecialRequests   string    `gorm:"type:text"`
	Status            Status    `gorm:"type:varchar(20);not null;default:'waiting';index"`
	EstimatedWaitTime int       `gorm:"not null;default:0"`
	Notified          bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

func (Entry) TableName() string {
	return "waitlist_entries"
}

// IsSeated returns true once the entry has been promoted
func (e *Entry) IsSeated() bool {
	return e.Status == StatusSeated
}

// ToReservation builds the confirmed reservation a seated entry turns into
func (e *Entry) ToReservation() *reservations.Reservation {
	sourceID := e.ID
	return &reservations.Reservation{
		CustomerName:          e.CustomerName,
		CustomerEmail:         e.CustomerEmail,
		CustomerPhone:         e.CustomerPhone,
		PartySize:             e.PartySize,
		Date:                  e.Date,
		Time:                  e.Time,
		SpecialRequests:       e.SpecialRequests,
		Status:                reservations.StatusConfirmed,
		SourceWaitlistEntryID: &sourceID,
	}
}

// NormalizePhone keeps only the digits of a phone number
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneMatches compares two phone numbers ignoring formatting
func PhoneMatches(stored, supplied string) bool {
	s := NormalizePhone(supplied)
	return s != "" && s == NormalizePhone(stored)
}

const (
	// DefaultMinutesPerParty is the fallback turn time per waiting party
	DefaultMinutesPerParty = 15

	// MaxPartySize bounds a single entry
	MaxPartySize = 50

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
