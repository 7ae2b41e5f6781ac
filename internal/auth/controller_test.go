package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tableside/internal/shared/testutil"
	"tableside/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, Service) {
	t.Helper()
	cfg := testutil.Config()
	db := testutil.NewDB(t, &users.User{})
	svc := NewService(NewRepository(db), cfg, nil)

	r := gin.New()
	SetupAuthRoutes(r.Group("/api/v1"), NewController(svc), cfg)
	return r, svc
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestController_RegisterAndMe(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
		"password":   "secret-pass",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	w = doJSON(r, http.MethodGet, "/api/v1/auth/me", "Bearer "+body.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ada@example.com")

	// refresh tokens are not accepted as sessions
	w = doJSON(r, http.MethodGet, "/api/v1/auth/me", "Bearer "+body.Data.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestController_RegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"first_name": "Ada",
		"email":      "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestController_CreateStaffRequiresOwnerOrAdmin(t *testing.T) {
	r, _ := newTestRouter(t)
	cfg := testutil.Config()
	payload := map[string]string{
		"first_name": "Sam",
		"last_name":  "Server",
		"email":      "sam@example.com",
		"password":   "floor-pass",
	}

	w := doJSON(r, http.MethodPost, "/api/v1/auth/staff", testutil.AccessToken(t, cfg, 5, string(users.RoleStaff)), payload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/auth/staff", "", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/auth/staff", testutil.AccessToken(t, cfg, 1, string(users.RoleOwner)), payload)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"STAFF"`)

	w = doJSON(r, http.MethodPost, "/api/v1/auth/staff", testutil.AccessToken(t, cfg, 1, string(users.RoleOwner)), payload)
	assert.Equal(t, http.StatusConflict, w.Code)
}
