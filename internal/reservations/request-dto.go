package reservations

type ListQuery struct {
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Status string `form:"status" validate:"omitempty,oneof=confirmed seated completed cancelled no_show"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=confirmed seated completed cancelled no_show"`
}
