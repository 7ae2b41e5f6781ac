package reservations

import "tableside/internal/shared/utils/response"

type ListResponse struct {
	Reservations []Reservation       `json:"reservations"`
	Pagination   response.Pagination `json:"pagination"`
}
