package subscriptions

// CheckoutRequest represents the request to start a hosted checkout
type CheckoutRequest struct {
	PlanID uint `json:"planId" validate:"required,gt=0"`
}

// ChangePlanRequest represents the request to move to another plan
type ChangePlanRequest struct {
	PlanID uint `json:"planId" validate:"required,gt=0"`
}
