package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddleware_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/v1/waitlist/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/waitlist/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/waitlist/:id", "200"))
	assert.Equal(t, float64(2), got)
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.BillingEvent("checkout.session.completed", "processed")
	m.BillingEvent("checkout.session.completed", "duplicate")
	m.BillingEvent("checkout.session.completed", "duplicate")
	m.WaitlistPromotion("seated")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.billingEvents.WithLabelValues("checkout.session.completed", "duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.waitlistPromotions.WithLabelValues("seated")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BillingEvent("x", "y")
		m.WaitlistPromotion("seated")
		m.FailedLogin()
		m.NotificationPublished("a", "b")
	})
}
