// Package journalapi is the read-only client for the journaling
// collaborator: user profiles and note/meditation activity. The engine never
// writes journaling data.
package journalapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/domain"
)

// Profile is the slice of the user record the engine reads: delivery
// addressing plus the values/mission fields used only for email
// personalization.
type Profile struct {
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Timezone    string    `json:"timezone"`
	PushChannel string    `json:"pushChannel"` // "fcm", "apns" or "auto"
	Values      []string  `json:"values,omitempty"`
	Mission     string    `json:"mission,omitempty"`
}

// WeeklyActivity is a user's journaling activity for one ISO week.
type WeeklyActivity struct {
	JournalCount    int `json:"journalCount"`
	MeditationCount int `json:"meditationCount"`
}

// Streak describes the user's current journaling streak.
type Streak struct {
	Current        int  `json:"current"`
	CompletedToday bool `json:"completedToday"`
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrUserNotFound
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("journalapi: %s: %s", path, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Profile fetches a user profile. Returns domain.ErrUserNotFound for unknown
// users.
func (c *Client) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/internal/users/"+userID.String()+"/profile", nil, &p); err != nil {
		return nil, err
	}
	if p.UserID == uuid.Nil {
		p.UserID = userID
	}
	return &p, nil
}

// WeeklyActivity fetches note/meditation counts for the week starting at
// weekStart.
func (c *Client) WeeklyActivity(ctx context.Context, userID uuid.UUID, weekStart time.Time) (WeeklyActivity, error) {
	q := url.Values{"weekStart": {weekStart.Format("2006-01-02")}}
	var a WeeklyActivity
	err := c.get(ctx, "/internal/users/"+userID.String()+"/activity", q, &a)
	return a, err
}

// HasEntryOn reports whether the user logged a journal entry on the given
// local calendar day.
func (c *Client) HasEntryOn(ctx context.Context, userID uuid.UUID, day time.Time) (bool, error) {
	q := url.Values{"date": {day.Format("2006-01-02")}}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.get(ctx, "/internal/users/"+userID.String()+"/entries/exists", q, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Streak fetches the user's current streak state.
func (c *Client) Streak(ctx context.Context, userID uuid.UUID) (Streak, error) {
	var s Streak
	err := c.get(ctx, "/internal/users/"+userID.String()+"/streak", nil, &s)
	return s, err
}

// ActiveUsers lists users with any journaling activity in the week starting
// at weekStart; the weekly recompute pass iterates these.
func (c *Client) ActiveUsers(ctx context.Context, weekStart time.Time) ([]uuid.UUID, error) {
	q := url.Values{"weekStart": {weekStart.Format("2006-01-02")}}
	var out struct {
		UserIDs []uuid.UUID `json:"userIds"`
	}
	if err := c.get(ctx, "/internal/users/active", q, &out); err != nil {
		return nil, err
	}
	return out.UserIDs, nil
}
