// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"tableside/internal/auth"
	"tableside/internal/billing"
	"tableside/internal/reservations"
	"tableside/internal/shared/config"
	"tableside/internal/shared/database"
	"tableside/internal/shared/metrics"
	"tableside/internal/subscriptions"
	"tableside/internal/waitlist"
	"tableside/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	metrics   *metrics.Metrics
	cache     cache.Service
	notifier  Notifier
	providers *billing.Registry

	authRepo        auth.Repository
	waitlistService waitlist.Service
}

// Notifier is the notification surface the domain modules publish through
type Notifier interface {
	waitlist.NotificationService
	subscriptions.NotificationService
}

// NewRouter creates a new router instance. notifier may be nil.
func NewRouter(cfg *config.Config, db *database.DB, m *metrics.Metrics, notifier Notifier) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		metrics:  m,
		cache:    cache.NewService(db.GetRedisClient()),
		notifier: notifier,
		providers: billing.NewRegistry(billing.NewStripeProvider(billing.StripeConfig{
			SecretKey:     cfg.Billing.StripeSecretKey,
			WebhookSecret: cfg.Billing.StripeWebhookKey,
		})),
	}
}

// WaitlistService is available once SetupRoutes has run; the background jobs use it
func (r *Router) WaitlistService() waitlist.Service {
	return r.waitlistService
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)
		r.setupWaitlistRoutes(api)
		r.setupReservationRoutes(api)
		r.setupSubscriptionRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "tableside-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "tableside-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"redis_cache": r.db.GetRedisClient() != nil,
			"timestamp":   time.Now(),
		})
	})

	if r.config.MetricsEnabled && r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}
}

// setupAuthRoutes configures authentication routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	r.authRepo = auth.NewRepository(r.db.GetSQL())
	authService := auth.NewService(r.authRepo, r.config, r.metrics)
	auth.SetupAuthRoutes(rg, auth.NewController(authService), r.config)
}

// setupWaitlistRoutes configures the waitlist and its promotion path
func (r *Router) setupWaitlistRoutes(rg *gin.RouterGroup) {
	var notifier waitlist.NotificationService
	if r.notifier != nil {
		notifier = r.notifier
	}

	repo := waitlist.NewRepository(r.db.GetSQL())
	r.waitlistService = waitlist.NewService(repo, notifier, r.metrics, &waitlist.ServiceConfig{
		MinutesPerParty: r.config.Waitlist.MinutesPerParty,
	})
	waitlist.SetupWaitlistRoutes(rg, waitlist.NewController(r.waitlistService), r.config)
}

// setupReservationRoutes configures staff reservation routes
func (r *Router) setupReservationRoutes(rg *gin.RouterGroup) {
	service := reservations.NewService(reservations.NewRepository(r.db.GetSQL()))
	reservations.SetupReservationRoutes(rg, reservations.NewController(service), r.config)
}

// setupSubscriptionRoutes configures billing webhooks and owner self-service
func (r *Router) setupSubscriptionRoutes(rg *gin.RouterGroup) {
	var notifier subscriptions.NotificationService
	if r.notifier != nil {
		notifier = r.notifier
	}

	service := subscriptions.NewService(
		subscriptions.NewRepository(r.db.GetSQL()),
		r.providers,
		r.cache,
		notifier,
		auth.NewUserServiceAdapter(r.authRepo),
		r.metrics,
		&subscriptions.ServiceConfig{
			SuccessURL:        r.config.Billing.CheckoutSuccessURL,
			CancelURL:         r.config.Billing.CheckoutCancelURL,
			PortalReturnURL:   r.config.Billing.PortalReturnURL,
			TrialDays:         r.config.Billing.TrialDays,
			TrialExpiringDays: r.config.Billing.TrialExpiringDays,
		},
	)

	controller := subscriptions.NewController(service, r.providers)
	subscriptions.SetupWebhookRoutes(rg, controller)
	subscriptions.SetupSubscriptionRoutes(rg, controller, r.config)
}
