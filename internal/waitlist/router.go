package waitlist

import (
	"tableside/internal/shared/config"
	"tableside/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes configures all waitlist-related routes.
// Entry routes accept either a staff session or the customer's phone number.
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	waitlist := rg.Group("/waitlist")
	waitlist.Use(middleware.OptionalAuthWithConfig(cfg))
	{
		waitlist.POST("", controller.JoinWaitlist)      // JOIN waitlist
		waitlist.GET("/:id", controller.GetEntry)       // GET entry (staff or ?phone=)
		waitlist.PUT("/:id", controller.UpdateEntry)    // UPDATE entry, promotes on seated
		waitlist.DELETE("/:id", controller.DeleteEntry) // DELETE entry (staff or ?phone=)
	}

	staff := rg.Group("/waitlist")
	staff.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireStaff())
	{
		staff.GET("", controller.ListEntries)             // List queue
		staff.POST("/:id/notify", controller.NotifyEntry) // Table ready
	}
}
