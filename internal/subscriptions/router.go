package subscriptions

import (
	"tableside/internal/shared/config"
	"tableside/internal/shared/middleware"
	"tableside/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupWebhookRoutes registers the provider callback. It carries no session;
// the signature header authenticates it.
func SetupWebhookRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/webhooks/:provider", controller.HandleWebhook)
}

// SetupSubscriptionRoutes configures the owner's self-service routes
func SetupSubscriptionRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	sub := rg.Group("/subscription")
	sub.GET("/plans", controller.ListPlans) // Public catalog

	owner := sub.Group("")
	owner.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireRoles(users.RoleOwner, users.RoleAdmin))
	{
		owner.GET("/status", controller.GetStatus)
		owner.POST("/checkout", controller.CreateCheckout)
		owner.POST("/billing-portal", controller.CreateBillingPortal)
		owner.POST("/cancel", controller.Cancel)
		owner.POST("/reactivate", controller.Reactivate)
		owner.POST("/change-plan", controller.ChangePlan)
	}
}
