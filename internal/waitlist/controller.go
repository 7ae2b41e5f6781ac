package waitlist

import (
	"errors"
	"net/http"
	"strconv"

	"tableside/internal/shared/middleware"
	"tableside/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{
		service:   service,
		validator: validator.New(),
	}
}

func parseEntryID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid waitlist entry ID", nil, nil)
		return 0, false
	}
	return uint(id), true
}

// callerFrom reads the staff session injected by the auth middleware and the customer phone
func callerFrom(ctx *gin.Context, phone string) Caller {
	if phone == "" {
		phone = ctx.Query("phone")
	}
	return Caller{
		Staff: middleware.IsStaff(ctx),
		Phone: phone,
	}
}

// respondError maps service errors to HTTP responses.
// Authorization failures carry no detail.
func respondError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Unauthorized", nil, nil)
	case errors.Is(err, ErrEntryNotFound):
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Waitlist entry not found", nil, nil)
	case errors.Is(err, ErrAlreadySeated):
		response.RespondJSON(ctx, "error", http.StatusConflict, "Waitlist entry is already seated", nil, nil)
	case errors.Is(err, ErrNotWaiting):
		response.RespondJSON(ctx, "error", http.StatusConflict, "Waitlist entry is no longer waiting", nil, nil)
	case errors.Is(err, ErrPastDate):
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Requested date is in the past", nil, nil)
	default:
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, fallback, nil, nil)
	}
}

// JoinWaitlist handles POST /api/v1/waitlist
func (c *Controller) JoinWaitlist(ctx *gin.Context) {
	var req JoinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	entry, err := c.service.Join(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err, "Failed to join waitlist")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Successfully joined waitlist", entry, nil)
}

// GetEntry handles GET /api/v1/waitlist/:id?phone=
func (c *Controller) GetEntry(ctx *gin.Context) {
	caller := callerFrom(ctx, "")
	if !caller.HasCredential() {
		respondError(ctx, ErrUnauthorized, "")
		return
	}

	id, ok := parseEntryID(ctx)
	if !ok {
		return
	}

	entry, err := c.service.GetEntry(ctx.Request.Context(), id, caller)
	if err != nil {
		respondError(ctx, err, "Failed to get waitlist entry")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entry retrieved successfully", entry, nil)
}

// UpdateEntry handles PUT /api/v1/waitlist/:id
func (c *Controller) UpdateEntry(ctx *gin.Context) {
	var req UpdateEntryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	caller := callerFrom(ctx, req.Phone)
	if !caller.HasCredential() {
		respondError(ctx, ErrUnauthorized, "")
		return
	}

	id, ok := parseEntryID(ctx)
	if !ok {
		return
	}

	// staff-only fields are ignored for customers, not validated
	if !caller.Staff {
		req = req.ForCustomer()
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	result, err := c.service.UpdateEntry(ctx.Request.Context(), id, caller, &req)
	if err != nil {
		respondError(ctx, err, "Failed to update waitlist entry")
		return
	}

	message := "Waitlist entry updated successfully"
	if result.ReservationCreated {
		message = "Waitlist entry seated and reservation created"
	}
	response.RespondJSON(ctx, "success", http.StatusOK, message, result, nil)
}

// DeleteEntry handles DELETE /api/v1/waitlist/:id?phone=
func (c *Controller) DeleteEntry(ctx *gin.Context) {
	caller := callerFrom(ctx, "")
	if !caller.HasCredential() {
		respondError(ctx, ErrUnauthorized, "")
		return
	}

	id, ok := parseEntryID(ctx)
	if !ok {
		return
	}

	if err := c.service.DeleteEntry(ctx.Request.Context(), id, caller); err != nil {
		respondError(ctx, err, "Failed to delete waitlist entry")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entry deleted successfully", nil, nil)
}

// ListEntries handles GET /api/v1/waitlist (staff)
func (c *Controller) ListEntries(ctx *gin.Context) {
	var query ListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	result, err := c.service.ListEntries(ctx.Request.Context(), query)
	if err != nil {
		respondError(ctx, err, "Failed to list waitlist entries")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entries retrieved successfully", result, nil)
}

// NotifyEntry handles POST /api/v1/waitlist/:id/notify (staff)
func (c *Controller) NotifyEntry(ctx *gin.Context) {
	id, ok := parseEntryID(ctx)
	if !ok {
		return
	}

	entry, err := c.service.NotifyEntry(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "Failed to notify party")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Party notified successfully", entry, nil)
}
