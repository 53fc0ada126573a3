package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"journal-notify/internal/domain"
)

// FCMClient speaks the JSON/HTTP push channel: one POST per send carrying
// notification and data blocks.
type FCMClient struct {
	Endpoint  string
	ServerKey string
	HTTP      *http.Client
}

func NewFCMClient(endpoint, serverKey string) *FCMClient {
	return &FCMClient{
		Endpoint:  endpoint,
		ServerKey: serverKey,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmRequest struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Name  string `json:"name"`
	Error *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *FCMClient) Send(ctx context.Context, token string, n *domain.Notification) (*DeliveryResult, error) {
	payload := fcmRequest{
		Token: token,
		Notification: fcmNotification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.ServerKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed fcmResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		id := parsed.Name
		if id == "" {
			id = strings.TrimSpace(string(data))
		}
		return &DeliveryResult{MessageID: id}, nil
	}

	reason := resp.Status
	if parsed.Error != nil {
		reason = parsed.Error.Status
		if parsed.Error.Message != "" {
			reason = parsed.Error.Status + ": " + parsed.Error.Message
		}
	} else if len(data) > 0 {
		reason = strings.TrimSpace(string(data))
	}

	if fcmTokenGone(reason) || resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredToken, reason)
	}
	return nil, &ProviderError{Channel: domain.ChannelFCM, Status: resp.StatusCode, Reason: reason}
}

// fcmTokenGone matches the provider's "registration token not registered"
// class of errors across the shapes it has been seen to echo back.
func fcmTokenGone(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "unregistered") ||
		strings.Contains(lower, "registration-token-not-registered") ||
		strings.Contains(lower, "invalidregistration") ||
		strings.Contains(lower, "notregistered")
}
