// Package notifyclient is a thin HTTP client for the notification service,
// shared by notifyctl and by collaborating services that register tokens or
// trigger sweeps.
package notifyclient

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

type Client struct {
	BaseURL     string
	SweepSecret string
	HTTP        *http.Client
}

func New(baseURL, sweepSecret string) *Client {
	return &Client{
		BaseURL:     normalizeBaseURL(baseURL),
		SweepSecret: sweepSecret,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Device is the registration payload and response shape.
type Device struct {
	UserID     string `json:"userId"`
	Token      string `json:"token"`
	Channel    string `json:"channel"`
	Platform   string `json:"platform,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// TypePreference mirrors the server's per-type toggle.
type TypePreference struct {
	Enabled      bool   `json:"enabled"`
	ScheduleTime string `json:"scheduleTime,omitempty"`
	ScheduleDay  *int   `json:"scheduleDay,omitempty"`
}

// Preferences mirrors the server's preference resource.
type Preferences struct {
	UserID  string                    `json:"userId"`
	Enabled bool                      `json:"enabled"`
	PerType map[string]TypePreference `json:"perType"`
}

// SendRequest is an ad-hoc notification send.
type SendRequest struct {
	UserID string            `json:"userId"`
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// SendResult reports the outcome of an ad-hoc send.
type SendResult struct {
	Success bool   `json:"success"`
	Channel string `json:"channel,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HistoryEntry is one audit row from the server.
type HistoryEntry struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

func (c *Client) RegisterDevice(ctx context.Context, dev Device) error {
	return c.do(ctx, http.MethodPost, "/v1/devices/register", dev, nil, false)
}

func (c *Client) UnregisterToken(ctx context.Context, token string) error {
	body := map[string]string{"token": token}
	return c.do(ctx, http.MethodPost, "/v1/devices/unregister", body, nil, false)
}

func (c *Client) UnregisterUser(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "/v1/devices/unregister", body, nil, false)
}

func (c *Client) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	var prefs Preferences
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+userID+"/preferences", nil, &prefs, false); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (c *Client) PutPreferences(ctx context.Context, userID string, prefs Preferences) error {
	return c.do(ctx, http.MethodPut, "/v1/users/"+userID+"/preferences", prefs, nil, false)
}

func (c *Client) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+userID+"/history", nil, &entries, false); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var res SendResult
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/send", req, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sweep triggers one named background pass and returns the raw stats body.
func (c *Client) Sweep(ctx context.Context, name string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/internal/sweep/"+name, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, sweep bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sweep {
		req.Header.Set("X-Sweep-Secret", c.SweepSecret)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		if len(data) == 0 {
			data = []byte(resp.Status)
		}
		return fmt.Errorf("%s %s failed: %s", method, path, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func normalizeBaseURL(in string) string {
	return strings.TrimRight(strings.TrimSpace(in), "/")
}
