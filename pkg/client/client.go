// Package client is a Go client for the subscription API. SubscriptionState
// keeps the latest status snapshot for a signed-in owner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response decoded from the API envelope
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type Plan struct {
	ID          uint             `json:"id"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	PriceCents  int64            `json:"priceCents"`
	Currency    string           `json:"currency"`
	Interval    string           `json:"interval"`
	Features    []string         `json:"features"`
	Limits      map[string]int64 `json:"limits"`
	TrialDays   int              `json:"trialDays"`
}

type Subscription struct {
	ID                 uint       `json:"id"`
	PlanID             uint       `json:"planId"`
	Status             string     `json:"status"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	TrialEnd           *time.Time `json:"trialEnd,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
}

// Snapshot mirrors GET /subscription/status
type Snapshot struct {
	HasSubscription bool          `json:"hasSubscription"`
	Subscription    *Subscription `json:"subscription"`
	Plan            *Plan         `json:"plan"`

	Features []string         `json:"features"`
	Limits   map[string]int64 `json:"limits"`
	Usage    map[string]int64 `json:"usage"`
	AtLimit  []string         `json:"atLimit"`

	IsActive          bool `json:"isActive"`
	IsTrialing        bool `json:"isTrialing"`
	IsTrialExpiring   bool `json:"isTrialExpiring"`
	IsAtLimit         bool `json:"isAtLimit"`
	CancelAtPeriodEnd bool `json:"cancelAtPeriodEnd"`

	TrialDaysRemaining *int `json:"trialDaysRemaining"`
	DaysUntilRenewal   *int `json:"daysUntilRenewal"`

	GeneratedAt time.Time `json:"generatedAt"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API rooted at baseURL (for example
// http://localhost:8080/api/v1). token is the owner's access token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token and keeps it on the client
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return err
	}
	c.token = out.AccessToken
	return nil
}

type planRequest struct {
	PlanID uint `json:"planId"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := c.do(ctx, http.MethodGet, "/subscription/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (c *Client) Status(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/subscription/status", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Checkout returns the hosted checkout URL for planID
func (c *Client) Checkout(ctx context.Context, planID uint) (string, error) {
	var session sessionResponse
	if err := c.do(ctx, http.MethodPost, "/subscription/checkout", planRequest{PlanID: planID}, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

// BillingPortal returns the hosted billing portal URL
func (c *Client) BillingPortal(ctx context.Context) (string, error) {
	var session sessionResponse
	if err := c.do(ctx, http.MethodPost, "/subscription/billing-portal", nil, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (c *Client) Cancel(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, "/subscription/cancel", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Reactivate(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, "/subscription/reactivate", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) ChangePlan(ctx context.Context, planID uint) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, "/subscription/change-plan", planRequest{PlanID: planID}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
