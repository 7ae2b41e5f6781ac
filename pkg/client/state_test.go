package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the subscription routes from an in-memory snapshot
type fakeAPI struct {
	mu       sync.Mutex
	snapshot Snapshot
	calls    []string
	fail     map[string]int
}

// guard records the call and rejects it before any handler state changes
func (f *fakeAPI) guard(c *gin.Context) {
	f.mu.Lock()
	f.calls = append(f.calls, c.Request.Method+" "+c.FullPath())
	code, failing := f.fail[c.FullPath()]
	f.mu.Unlock()

	if c.GetHeader("Authorization") != "Bearer owner-token" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "status_code": 401, "message": "Unauthorized"})
		return
	}
	if failing {
		c.AbortWithStatusJSON(code, gin.H{"status": "error", "status_code": code, "message": "Subscription is not active"})
		return
	}
	c.Next()
}

func (f *fakeAPI) respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "status_code": 200, "message": "ok", "data": data})
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	trial := 5
	f := &fakeAPI{
		snapshot: Snapshot{
			HasSubscription: true,
			IsActive:        true,
			IsTrialing:      true,
			Features:        []string{"waitlist"},
			Limits:          map[string]int64{"reservations": 100, "staff_accounts": -1},
			Usage:           map[string]int64{"reservations": 40, "staff_accounts": 3},
			AtLimit:         []string{},

			TrialDaysRemaining: &trial,
		},
		fail: map[string]int{},
	}

	r := gin.New()
	api := r.Group("/api/v1/subscription")
	api.Use(f.guard)
	api.GET("/status", func(c *gin.Context) {
		f.mu.Lock()
		snap := f.snapshot
		f.mu.Unlock()
		f.respond(c, snap)
	})
	api.POST("/cancel", func(c *gin.Context) {
		f.mu.Lock()
		f.snapshot.CancelAtPeriodEnd = true
		snap := f.snapshot
		f.mu.Unlock()
		f.respond(c, snap)
	})
	api.POST("/reactivate", func(c *gin.Context) {
		f.mu.Lock()
		f.snapshot.CancelAtPeriodEnd = false
		snap := f.snapshot
		f.mu.Unlock()
		f.respond(c, snap)
	})
	api.POST("/change-plan", func(c *gin.Context) {
		var req planRequest
		_ = c.ShouldBindJSON(&req)
		f.mu.Lock()
		f.snapshot.Plan = &Plan{ID: req.PlanID, Code: "pro"}
		f.snapshot.Features = []string{"waitlist", "sms"}
		snap := f.snapshot
		f.mu.Unlock()
		f.respond(c, snap)
	})
	api.POST("/checkout", func(c *gin.Context) {
		f.respond(c, sessionResponse{URL: "https://checkout.example.com/cs_1"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, New(srv.URL+"/api/v1/", "owner-token", WithHTTPClient(srv.Client()))
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSubscriptionState_Refresh(t *testing.T) {
	_, c := newFakeAPI(t)
	state := NewSubscriptionState(c)

	assert.Nil(t, state.Snapshot())
	assert.False(t, state.IsActive())

	require.NoError(t, state.Refresh(context.Background()))
	assert.False(t, state.Loading())
	assert.NoError(t, state.Err())
	assert.True(t, state.IsActive())
	assert.True(t, state.IsTrialing())
	assert.True(t, state.HasFeature("waitlist"))
	assert.False(t, state.HasFeature("sms"))
	assert.False(t, state.IsAtLimit("reservations"))
	require.NotNil(t, state.Snapshot().TrialDaysRemaining)
	assert.Equal(t, 5, *state.Snapshot().TrialDaysRemaining)

	left, ok := state.Remaining("reservations")
	assert.True(t, ok)
	assert.EqualValues(t, 60, left)
	_, ok = state.Remaining("staff_accounts")
	assert.False(t, ok)
}

func TestSubscriptionState_ActionsRefetch(t *testing.T) {
	f, c := newFakeAPI(t)
	state := NewSubscriptionState(c)
	ctx := context.Background()

	require.NoError(t, state.Cancel(ctx))
	assert.True(t, state.IsCancelling())

	require.NoError(t, state.Reactivate(ctx))
	assert.False(t, state.IsCancelling())

	require.NoError(t, state.ChangePlan(ctx, 2))
	assert.True(t, state.HasFeature("sms"))

	url, err := state.Checkout(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_1", url)

	assert.Equal(t, []string{
		"POST /api/v1/subscription/cancel", "GET /api/v1/subscription/status",
		"POST /api/v1/subscription/reactivate", "GET /api/v1/subscription/status",
		"POST /api/v1/subscription/change-plan", "GET /api/v1/subscription/status",
		"POST /api/v1/subscription/checkout", "GET /api/v1/subscription/status",
	}, f.callLog())
}

func TestSubscriptionState_ErrorKeepsSnapshot(t *testing.T) {
	f, c := newFakeAPI(t)
	state := NewSubscriptionState(c)
	ctx := context.Background()
	require.NoError(t, state.Refresh(ctx))

	f.mu.Lock()
	f.fail["/api/v1/subscription/cancel"] = http.StatusConflict
	f.mu.Unlock()

	err := state.Cancel(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Subscription is not active", apiErr.Message)
	assert.Equal(t, err, state.Err())
	assert.NotNil(t, state.Snapshot())
	assert.False(t, state.IsCancelling())
}

func TestClient_Unauthorized(t *testing.T) {
	_, c := newFakeAPI(t)
	anon := New(c.baseURL, "", WithHTTPClient(c.httpClient))

	_, err := anon.Status(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
