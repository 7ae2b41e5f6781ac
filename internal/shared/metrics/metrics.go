package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry and the service's collectors.
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	waitlistPromotions *prometheus.CounterVec
	billingEvents      *prometheus.CounterVec
	failedLogins       prometheus.Counter
	notifications      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		reg: reg,
		httpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		waitlistPromotions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_promotions_total",
			Help: "Waitlist entries seated, by outcome.",
		}, []string{"outcome"}),
		billingEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "billing_events_total",
			Help: "Billing provider events received, by type and outcome.",
		}, []string{"type", "outcome"}),
		failedLogins: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "failed_login_attempts_total",
			Help: "Total number of failed login attempts.",
		}),
		notifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications handed to the broker, by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// GinMiddleware records request counts and latency keyed by the route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) WaitlistPromotion(outcome string) {
	if m == nil {
		return
	}
	m.waitlistPromotions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BillingEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.billingEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) FailedLogin() {
	if m == nil {
		return
	}
	m.failedLogins.Inc()
}

func (m *Metrics) NotificationPublished(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, outcome).Inc()
}
