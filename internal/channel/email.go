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

// EmailMessage is one transactional email.
type EmailMessage struct {
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text"`
	Tags    []string          `json:"tags,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// EmailSender posts to a Resend-shaped transactional email API.
type EmailSender struct {
	BaseURL string
	APIKey  string
	From    string
	HTTP    *http.Client
}

func NewEmailSender(baseURL, apiKey, from string) *EmailSender {
	return &EmailSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		From:    from,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type emailRequest struct {
	From string `json:"from"`
	EmailMessage
}

type emailResponse struct {
	ID string `json:"id"`
}

// Send posts the message and returns the provider message ID.
func (s *EmailSender) Send(ctx context.Context, msg EmailMessage) (string, error) {
	body, err := json.Marshal(emailRequest{From: s.From, EmailMessage: msg})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		reason := strings.TrimSpace(string(data))
		if reason == "" {
			reason = resp.Status
		}
		return "", &ProviderError{Channel: domain.ChannelEmail, Status: resp.StatusCode, Reason: reason}
	}

	var parsed emailResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("email: decode response: %w", err)
	}
	return parsed.ID, nil
}
