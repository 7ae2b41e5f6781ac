package reservations

import (
	"tableside/internal/shared/config"
	"tableside/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupReservationRoutes registers the staff-only reservation routes
func SetupReservationRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	reservations := rg.Group("/reservations")
	reservations.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireStaff())
	{
		reservations.GET("", controller.ListReservations)          // GET /api/v1/reservations?date=&status=
		reservations.GET("/:id", controller.GetReservation)        // GET /api/v1/reservations/:id
		reservations.PATCH("/:id/status", controller.UpdateStatus) // PATCH /api/v1/reservations/:id/status
	}
}
