package channel

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"journal-notify/internal/domain"
)

// Provider tokens are valid for up to an hour; re-mint with slack so a token
// is never presented near its horizon.
const (
	apnsTokenLifetime = 50 * time.Minute
	apnsTokenSlack    = 5 * time.Minute
)

// APNsClient speaks the HTTP/2 push channel. Every request carries a
// short-lived ES256 provider token; the token is cached across sends within
// its validity window but correctness holds even if re-minted every call.
type APNsClient struct {
	Host  string
	Topic string
	KeyID string
	Team  string

	key  *ecdsa.PrivateKey
	http *http.Client
	now  func() time.Time

	mu       sync.Mutex
	bearer   string
	mintedAt time.Time
}

// NewAPNsClient parses the PEM-encoded P-256 signing key (.p8 contents).
func NewAPNsClient(host, topic, keyID, teamID, privateKeyPEM string) (*APNsClient, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("apns: parse signing key: %w", err)
	}
	return &APNsClient{
		Host:  host,
		Topic: topic,
		KeyID: keyID,
		Team:  teamID,
		key:   key,
		http:  &http.Client{Timeout: 10 * time.Second},
		now:   time.Now,
	}, nil
}

// providerToken returns a cached bearer token, minting a fresh one when the
// cached one is within the slack of its lifetime.
func (c *APNsClient) providerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.bearer != "" && now.Sub(c.mintedAt) < apnsTokenLifetime-apnsTokenSlack {
		return c.bearer, nil
	}

	t := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.Team,
		"iat": now.Unix(),
	})
	t.Header["kid"] = c.KeyID
	signed, err := t.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("apns: sign provider token: %w", err)
	}
	c.bearer = signed
	c.mintedAt = now
	return signed, nil
}

type apnsPayload struct {
	APS  apnsAPS           `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsAPS struct {
	Alert   apnsAlert `json:"alert"`
	Badge   *int      `json:"badge,omitempty"`
	Sound   string    `json:"sound,omitempty"`
	URLArgs []string  `json:"url-args,omitempty"`
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsErrorBody struct {
	Reason string `json:"reason"`
}

func (c *APNsClient) Send(ctx context.Context, token string, n *domain.Notification) (*DeliveryResult, error) {
	bearer, err := c.providerToken()
	if err != nil {
		return nil, err
	}

	payload := apnsPayload{
		APS: apnsAPS{
			Alert:   apnsAlert{Title: n.Title, Body: n.Body},
			Badge:   n.Badge,
			Sound:   n.Sound,
			URLArgs: n.URLArgs,
		},
		Data: n.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	apnsID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/3/device/"+token, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+bearer)
	req.Header.Set("apns-id", apnsID)
	req.Header.Set("apns-expiration", strconv.FormatInt(c.now().Add(24*time.Hour).Unix(), 10))
	req.Header.Set("apns-priority", "10")
	req.Header.Set("apns-topic", c.Topic)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		if id := resp.Header.Get("apns-id"); id != "" {
			apnsID = id
		}
		return &DeliveryResult{MessageID: apnsID}, nil
	}

	var parsed apnsErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &parsed)
	reason := parsed.Reason
	if reason == "" {
		reason = resp.Status
	}

	switch parsed.Reason {
	case "BadDeviceToken", "Unregistered", "ExpiredToken", "DeviceTokenNotForTopic":
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredToken, reason)
	}
	return nil, &ProviderError{Channel: domain.ChannelAPNs, Status: resp.StatusCode, Reason: reason}
}
