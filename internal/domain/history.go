package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one append-only delivery-audit row. It doubles as the
// rate limiter's counting source and is pruned after the retention window.
type HistoryEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_history_user_sent,priority:1" json:"userId"`
	Type      string    `gorm:"not null" json:"type"`
	Channel   Channel   `json:"channel"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Delivered bool      `gorm:"not null" json:"delivered"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `gorm:"not null;index:idx_history_user_sent,priority:2" json:"sentAt"`
}
