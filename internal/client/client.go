// Package client is a typed Go client for the hydrate JSON API.
//
//	c := client.New("http://localhost:8080", client.WithTimezone("Europe/Berlin"))
//	if _, err := c.SignIn(ctx, "ana@example.com", "secret1"); err != nil {
//	    return err
//	}
//	p, err := c.LogWater(ctx, 250, model.UnitsMl)
//
// Sign-in stores the session token on the client; every later call sends it
// as a Bearer header. Failed calls return *APIError carrying the server's
// error type and message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/service"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Type    string // e.g. "validation_error", "transaction_failed"
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("hydrate api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("hydrate api: %d %s: %s", e.Status, e.Type, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL  string
	http     *http.Client
	timezone string

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimezone sends an IANA zone name with every request, so the server
// computes "today" in the caller's calendar.
func WithTimezone(name string) Option {
	return func(c *Client) { c.timezone = name }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*handler.SessionResponse, error) {
	return c.session(ctx, "/auth/signup", email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*handler.SessionResponse, error) {
	return c.session(ctx, "/auth/signin", email, password)
}

func (c *Client) session(ctx context.Context, path, email, password string) (*handler.SessionResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out handler.SessionResponse
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return &out, nil
}

// Me returns the signed-in account.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns today's view of the profile.
func (c *Client) Profile(ctx context.Context) (*handler.ProfileResponse, error) {
	var out handler.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSettings(ctx context.Context, patch service.SettingsPatch) (*handler.ProfileResponse, error) {
	var out handler.ProfileResponse
	if err := c.do(ctx, http.MethodPatch, "/api/profile", nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogWater records amount in the given units and returns the updated profile.
func (c *Client) LogWater(ctx context.Context, amount float64, units model.Units) (*handler.ProfileResponse, error) {
	var out handler.ProfileResponse
	req := handler.LogRequest{Amount: amount, Units: units}
	if err := c.do(ctx, http.MethodPost, "/api/logs", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs lists the caller's logs, newest first. Zero limit uses the server default.
func (c *Client) Logs(ctx context.Context, limit, offset int) ([]model.WaterLog, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []model.WaterLog
	if err := c.do(ctx, http.MethodGet, "/api/logs", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestLog returns the most recent log. It fails with a 404 *APIError when
// nothing was logged yet.
func (c *Client) LatestLog(ctx context.Context) (*model.WaterLog, error) {
	var out model.WaterLog
	if err := c.do(ctx, http.MethodGet, "/api/logs/latest", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns per-day totals, oldest first. Zero days uses the server default.
func (c *Client) History(ctx context.Context, days int) ([]model.DailyTotal, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	var out []model.DailyTotal
	if err := c.do(ctx, http.MethodGet, "/api/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.timezone != "" {
		req.Header.Set(handler.TimezoneHeader, c.timezone)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var body handler.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Type = body.Error
		apiErr.Message = body.Message
		apiErr.Field = body.Field
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
