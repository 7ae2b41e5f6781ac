package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tableside/api/routes"
	"tableside/internal/notifications"
	"tableside/internal/shared/config"
	"tableside/internal/shared/constants"
	"tableside/internal/shared/database"
	"tableside/internal/shared/metrics"
	"tableside/internal/waitlist"
	"tableside/pkg/logger"
	"tableside/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// Rebuild the logger now that the mode and level are known
	appLogger = logger.NewWithLevel(cfg.LogLevel)
	logger.SetDefault(appLogger)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to initialize database", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	appMetrics := metrics.New()

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.GetRedisClient() != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:              cfg.RateLimit.Enabled,
			WindowDuration:       cfg.RateLimit.WindowDuration,
			DefaultRequests:      cfg.RateLimit.DefaultRequests,
			PublicRequests:       cfg.RateLimit.PublicRequests,
			AuthRequests:         cfg.RateLimit.AuthRequests,
			StaffRequests:        cfg.RateLimit.StaffRequests,
			WebhookRequests:      cfg.RateLimit.WebhookRequests,
			SubscriptionRequests: cfg.RateLimit.SubscriptionRequests,
			HealthRequests:       cfg.RateLimit.HealthRequests,
			WhitelistedIPs:       cfg.RateLimit.WhitelistedIPs,
			KeyPrefix:            constants.RATE_LIMIT_PREFIX,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Notifications are optional; the API keeps serving without a broker
	var notifier routes.Notifier
	notificationService, err := notifications.NewServiceFromConfig(cfg.Notifications, appMetrics)
	if err != nil {
		appLogger.Error("Failed to initialize notification service", logger.Err(err))
		appLogger.Info("Continuing without notifications")
		notificationService = nil
	} else {
		notifier = notificationService
		defer func() {
			if err := notificationService.Close(); err != nil {
				appLogger.Error("Error stopping notification service", logger.Err(err))
			}
		}()
	}

	appRouter := routes.NewRouter(cfg, db, appMetrics, notifier)
	engine := setupRouter(cfg, appRouter, appMetrics, rateLimiter)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_base", cfg.GetAPIBasePath()),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("redis_cache", db.GetRedisClient() != nil),
			slog.Bool("rate_limiting", rateLimiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if notificationService != nil {
		// A broker failure stops delivery but never the API
		g.Go(func() error {
			if err := notificationService.Run(gctx); err != nil {
				appLogger.Error("Notification consumer stopped", logger.Err(err))
			}
			return nil
		})
	}

	if cfg.Waitlist.JobsEnabled {
		jobs := waitlist.NewJobProcessor(appRouter.WaitlistService(), &waitlist.JobConfig{
			ExpiryCheckInterval: cfg.Waitlist.ExpiryCheckInterval,
			EstimateInterval:    cfg.Waitlist.EstimateInterval,
		})
		g.Go(func() error {
			jobs.Start(gctx)
			<-gctx.Done()
			jobs.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", logger.Err(err))
		return
	}
	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, appRouter *routes.Router, m *metrics.Metrics, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Logs requests and recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	if cfg.MetricsEnabled {
		engine.Use(m.GinMiddleware())
	}

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter.SetupRoutes(engine)
	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}
