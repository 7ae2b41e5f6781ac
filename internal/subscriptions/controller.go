package subscriptions

import (
	"errors"
	"io"
	"net/http"

	"tableside/internal/billing"
	"tableside/internal/shared/middleware"
	"tableside/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// maxWebhookBody caps the raw event body read before verification
const maxWebhookBody = 1 << 20

type Controller struct {
	service   Service
	providers *billing.Registry
	validator *validator.Validate
}

func NewController(service Service, providers *billing.Registry) *Controller {
	return &Controller{
		service:   service,
		providers: providers,
		validator: validator.New(),
	}
}

func respondError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnsupportedProvider):
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Unsupported billing provider", nil, nil)
	case errors.Is(err, ErrInvalidSignature):
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid webhook signature", nil, nil)
	case errors.Is(err, ErrMalformedEvent):
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Malformed billing event", nil, err.Error())
	case errors.Is(err, ErrPlanNotFound):
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Plan not found", nil, nil)
	case errors.Is(err, ErrNoSubscription), errors.Is(err, ErrUserNotFound):
		response.RespondJSON(ctx, "error", http.StatusNotFound, "No subscription found", nil, nil)
	case errors.Is(err, ErrSubscriptionNotOwned):
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Forbidden", nil, nil)
	case errors.Is(err, ErrSubscriptionInactive):
		response.RespondJSON(ctx, "error", http.StatusConflict, "Subscription is not active", nil, nil)
	case errors.Is(err, ErrAlreadySubscribed):
		response.RespondJSON(ctx, "error", http.StatusConflict, "You already have an active subscription", nil, nil)
	case errors.Is(err, ErrSamePlan):
		response.RespondJSON(ctx, "error", http.StatusConflict, "Subscription is already on this plan", nil, nil)
	case errors.Is(err, ErrNoBillingCustomer):
		response.RespondJSON(ctx, "error", http.StatusConflict, "No billing account found", nil, nil)
	case errors.Is(err, ErrProviderUnavailable):
		response.RespondJSON(ctx, "error", http.StatusBadGateway, "Billing provider unavailable", nil, nil)
	default:
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, fallback, nil, nil)
	}
}

func currentUser(ctx *gin.Context) (uint, bool) {
	userID, ok := middleware.CurrentUserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Unauthorized", nil, nil)
		return 0, false
	}
	return userID, true
}

// HandleWebhook handles POST /api/v1/webhooks/:provider
func (c *Controller) HandleWebhook(ctx *gin.Context) {
	name := ctx.Param("provider")
	provider, ok := c.providers.Get(name)
	if !ok {
		respondError(ctx, ErrUnsupportedProvider, "")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondJSON(ctx, "error", http.StatusRequestEntityTooLarge, "Request body too large", nil, nil)
			return
		}
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Failed to read request body", nil, nil)
		return
	}

	result, err := c.service.HandleWebhook(ctx.Request.Context(), name, payload, ctx.GetHeader(provider.SignatureHeader()))
	if err != nil {
		respondError(ctx, err, "Failed to process billing event")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Event received", result, nil)
}

// ListPlans handles GET /api/v1/subscription/plans
func (c *Controller) ListPlans(ctx *gin.Context) {
	plans, err := c.service.ListPlans(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "Failed to list plans")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Plans retrieved successfully", plans, nil)
}

// GetStatus handles GET /api/v1/subscription/status
func (c *Controller) GetStatus(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	snapshot, err := c.service.GetStatus(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to get subscription status")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Subscription status retrieved successfully", snapshot, nil)
}

func (c *Controller) bindPlan(ctx *gin.Context, dst interface{}) bool {
	if err := ctx.ShouldBindJSON(dst); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}
	if err := c.validator.Struct(dst); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return false
	}
	return true
}

// CreateCheckout handles POST /api/v1/subscription/checkout
func (c *Controller) CreateCheckout(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req CheckoutRequest
	if !c.bindPlan(ctx, &req) {
		return
	}

	session, err := c.service.CreateCheckout(ctx.Request.Context(), userID, &req)
	if err != nil {
		respondError(ctx, err, "Failed to create checkout session")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Checkout session created", session, nil)
}

// CreateBillingPortal handles POST /api/v1/subscription/billing-portal
func (c *Controller) CreateBillingPortal(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	session, err := c.service.CreateBillingPortal(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to create billing portal session")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Billing portal session created", session, nil)
}

// Cancel handles POST /api/v1/subscription/cancel
func (c *Controller) Cancel(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	snapshot, err := c.service.Cancel(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to cancel subscription")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Subscription will cancel at period end", snapshot, nil)
}

// Reactivate handles POST /api/v1/subscription/reactivate
func (c *Controller) Reactivate(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	snapshot, err := c.service.Reactivate(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to reactivate subscription")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Subscription reactivated", snapshot, nil)
}

// ChangePlan handles POST /api/v1/subscription/change-plan
func (c *Controller) ChangePlan(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !c.bindPlan(ctx, &req) {
		return
	}

	snapshot, err := c.service.ChangePlan(ctx.Request.Context(), userID, &req)
	if err != nil {
		respondError(ctx, err, "Failed to change plan")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Plan changed successfully", snapshot, nil)
}
