package waitlist

import (
	"time"

	"tableside/internal/reservations"
	"tableside/internal/shared/utils/response"
)

// EntryResponse is the normalised public shape of an entry
type EntryResponse struct {
	ID                uint      `json:"id"`
	CustomerName      string    `json:"customerName"`
	CustomerEmail     string    `json:"customerEmail"`
	CustomerPhone     string    `json:"customerPhone"`
	PartySize         int       `json:"partySize"`
	Date              string    `json:"date"`
	Time              string    `json:"time"`
	SpecialRequests   string    `json:"specialRequests"`
	Status            Status    `json:"status"`
	EstimatedWaitTime int       `json:"estimatedWaitTime"`
	Notified          bool      `json:"notified"`
	CreatedAt         time.Time `json:"createdAt"`
}

// UpdateResponse is the entry after an update, plus the reservation on promotion
type UpdateResponse struct {
	EntryResponse
	ReservationCreated bool                      `json:"reservationCreated"`
	Reservation        *reservations.Reservation `json:"reservation,omitempty"`
}

type ListResponse struct {
	Entries    []EntryResponse     `json:"entries"`
	Pagination response.Pagination `json:"pagination"`
}

func toEntryResponse(e *Entry) EntryResponse {
	return EntryResponse{
		ID:                e.ID,
		CustomerName:      e.CustomerName,
		CustomerEmail:     e.CustomerEmail,
		CustomerPhone:     e.CustomerPhone,
		PartySize:         e.PartySize,
		Date:              e.Date,
		Time:              e.Time,
		SpecialRequests:   e.SpecialRequests,
		Status:            e.Status,
		EstimatedWaitTime: e.EstimatedWaitTime,
		Notified:          e.Notified,
		CreatedAt:         e.CreatedAt,
	}
}
