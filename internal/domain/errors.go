package domain

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUnregisteredToken = errors.New("unregistered token")
	ErrRateLimited       = errors.New("rate limited")
)

// Reason classifies a delivery outcome. The pipeline returns these instead of
// propagating provider errors past its boundary; callers branch on the value.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonUserNotFound          Reason = "user_not_found"
	ReasonNotificationsDisabled Reason = "notifications_disabled"
	ReasonNoChannel             Reason = "no_channel"
	ReasonRateLimited           Reason = "rate_limited"
	ReasonUnregisteredToken     Reason = "unregistered_token"
	ReasonTransientChannelError Reason = "transient_channel_error"
	ReasonRetryExhausted        Reason = "retry_exhausted"
)

// Terminal reports whether a reason must never be retried. A transient
// channel error is the only retryable outcome; rate limiting is terminal for
// the attempt that hit it but a queued retry may still replay later.
func (r Reason) Terminal() bool {
	switch r {
	case ReasonUserNotFound, ReasonNotificationsDisabled, ReasonNoChannel, ReasonUnregisteredToken, ReasonRetryExhausted:
		return true
	}
	return false
}
