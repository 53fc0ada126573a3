package domain

import (
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/njson"
)

// RetryJob is a queued record of a failed, retryable delivery attempt.
// Deleted on successful replay or once attempts reach MaxAttempts.
type RetryJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	Payload     njson.JSON `gorm:"type:jsonb;not null" json:"payload"`
	LastError   string     `json:"lastError"`
	Attempts    int        `gorm:"not null" json:"attempts"`
	MaxAttempts int        `gorm:"not null" json:"maxAttempts"`
	ScheduledAt time.Time  `gorm:"not null;index" json:"scheduledAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Notification decodes the queued payload.
func (j *RetryJob) Notification() (*Notification, error) {
	var n Notification
	if err := j.Payload.Decode(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// SetNotification encodes the queued payload.
func (j *RetryJob) SetNotification(n *Notification) error {
	data, err := njson.Wrap(n)
	if err != nil {
		return err
	}
	j.Payload = data
	return nil
}
