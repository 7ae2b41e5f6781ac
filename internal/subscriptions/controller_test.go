package subscriptions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tableside/internal/billing"
	"tableside/internal/billing/billingtest"
	"tableside/internal/shared/testutil"
	"tableside/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fixture, string) {
	t.Helper()
	cfg := testutil.Config()
	f := newFixture(t)

	r := gin.New()
	api := r.Group("/api/v1")
	controller := NewController(f.svc, billing.NewRegistry(f.provider))
	SetupWebhookRoutes(api, controller)
	SetupSubscriptionRoutes(api, controller, cfg)

	return r, f, testutil.AccessToken(t, cfg, f.owner.ID, string(users.RoleOwner))
}

func do(r *gin.Engine, method, path, token string, body []byte, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestController_Webhook(t *testing.T) {
	r, f, _ := newTestRouter(t)
	start, end := period()
	body, sig := billingtest.CheckoutCompleted("evt_1", f.owner.ID, f.starter.ID, "sub_test123", start, end)

	w, _ := do(r, http.MethodPost, "/api/v1/webhooks/paypal", "", body, map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := do(r, http.MethodPost, "/api/v1/webhooks/stripe", "", body, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid webhook signature", env.Message)

	w, env = do(r, http.MethodPost, "/api/v1/webhooks/stripe", "", body, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, w.Code)
	var result WebhookResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "evt_1", result.EventID)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	w, env = do(r, http.MethodPost, "/api/v1/webhooks/stripe", "", body, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Duplicate)
}

func TestController_WebhookRejectsOversizedBody(t *testing.T) {
	r, _, _ := newTestRouter(t)
	body, sig := billingtest.SignedEvent("evt_big", "customer.updated", map[string]interface{}{
		"id":          "cus_1",
		"object":      "customer",
		"description": strings.Repeat("x", maxWebhookBody),
	})

	w, env := do(r, http.MethodPost, "/api/v1/webhooks/stripe", "", body, map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Request body too large", env.Message)
}

func TestController_StatusRequiresOwner(t *testing.T) {
	r, f, token := newTestRouter(t)
	cfg := testutil.Config()

	w, _ := do(r, http.MethodGet, "/api/v1/subscription/status", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	staff := testutil.AccessToken(t, cfg, f.owner.ID, string(users.RoleStaff))
	w, _ = do(r, http.MethodGet, "/api/v1/subscription/status", staff, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := do(r, http.MethodGet, "/api/v1/subscription/status", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	for _, key := range []string{"hasSubscription", "isActive", "isTrialing", "isTrialExpiring", "isAtLimit", "atLimit", "cancelAtPeriodEnd", "usage"} {
		assert.Contains(t, snap, key)
	}
}

func TestController_SelfService(t *testing.T) {
	r, f, token := newTestRouter(t)

	w, _ := do(r, http.MethodPost, "/api/v1/subscription/checkout", token, []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(r, http.MethodPost, "/api/v1/subscription/checkout", token, []byte(`{"planId":`+jsonID(f.starter.ID)+`}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var session SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.URL)

	w, _ = do(r, http.MethodPost, "/api/v1/subscription/cancel", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.subscribe(t, "evt_1")

	w, _ = do(r, http.MethodPost, "/api/v1/subscription/change-plan", token, []byte(`{"planId":`+jsonID(f.starter.ID)+`}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = do(r, http.MethodPost, "/api/v1/subscription/cancel", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap StatusSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.True(t, snap.CancelAtPeriodEnd)

	f.provider.Err = assert.AnError
	w, _ = do(r, http.MethodPost, "/api/v1/subscription/reactivate", token, nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestController_ListPlansIsPublic(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, env := do(r, http.MethodGet, "/api/v1/subscription/plans", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plans []PlanResponse
	require.NoError(t, json.Unmarshal(env.Data, &plans))
	assert.Len(t, plans, 2)
}

func jsonID(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
