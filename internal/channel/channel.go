// Package channel holds the thin protocol clients for the push and email
// providers. Adapters translate provider-specific error shapes into the
// shared taxonomy at this boundary: a permanently dead token surfaces as an
// error wrapping domain.ErrUnregisteredToken, anything else as a
// *ProviderError the pipeline treats as retryable.
package channel

import (
	"context"
	"fmt"

	"journal-notify/internal/domain"
)

// DeliveryResult is what a successful provider call returns.
type DeliveryResult struct {
	MessageID string
}

// PushSender is implemented by both push adapters.
type PushSender interface {
	Send(ctx context.Context, token string, n *domain.Notification) (*DeliveryResult, error)
}

// ProviderError is a non-2xx provider response with its structured reason.
type ProviderError struct {
	Channel domain.Channel
	Status  int
	Reason  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Channel, e.Status, e.Reason)
}
