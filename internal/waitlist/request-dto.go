package waitlist

// JoinRequest is the public join payload
type JoinRequest struct {
	CustomerName    string `json:"customerName" validate:"required,min=1,max=255"`
	CustomerEmail   string `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone   string `json:"customerPhone" validate:"required,min=7,max=32"`
	PartySize       int    `json:"partySize" validate:"required,min=1,max=50"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	SpecialRequests string `json:"specialRequests" validate:"omitempty,max=1000"`
}

// UpdateEntryRequest carries the proposed changes. Nil fields are left untouched.
// Phone is the customer credential when no staff session is present.
type UpdateEntryRequest struct {
	CustomerName      *string `json:"customerName" validate:"omitempty,min=1,max=255"`
	CustomerEmail     *string `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone     *string `json:"customerPhone" validate:"omitempty,min=7,max=32"`
	PartySize         *int    `json:"partySize" validate:"omitempty,min=1,max=50"`
	Date              *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time              *string `json:"time" validate:"omitempty,datetime=15:04"`
	SpecialRequests   *string `json:"specialRequests" validate:"omitempty,max=1000"`
	Status            *Status `json:"status" validate:"omitempty,oneof=waiting seated cancelled"`
	EstimatedWaitTime *int    `json:"estimatedWaitTime" validate:"omitempty,min=0"`
	Notified          *bool   `json:"notified"`

	Phone string `json:"phone"`
}

// ForCustomer keeps only the fields a customer may change
func (r UpdateEntryRequest) ForCustomer() UpdateEntryRequest {
	return UpdateEntryRequest{
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		PartySize:       r.PartySize,
		SpecialRequests: r.SpecialRequests,
		Phone:           r.Phone,
	}
}

// ListQuery filters the staff listing
type ListQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=waiting seated cancelled"`
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// Caller is who is asking: a staff session, or a customer holding the entry's phone number
type Caller struct {
	Staff bool
	Phone string
}

// HasCredential reports whether any credential was supplied at all
func (c Caller) HasCredential() bool {
	return c.Staff || NormalizePhone(c.Phone) != ""
}
