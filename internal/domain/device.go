package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceRegistration is one channel-specific delivery address for a user.
// A user may hold several; the registry picks the freshest per channel.
type DeviceRegistration struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Token            string    `gorm:"uniqueIndex;not null" json:"token"`
	Channel          Channel   `gorm:"not null" json:"channel"`
	Platform         string    `json:"platform"`
	Timezone         string    `json:"timezone"`
	AppVersion       string    `json:"appVersion"`
	LastRegisteredAt time.Time `json:"lastRegisteredAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RegisteredAt returns the freshest timestamp available for ordering devices.
func (d DeviceRegistration) RegisteredAt() time.Time {
	if !d.LastRegisteredAt.IsZero() {
		return d.LastRegisteredAt
	}
	if !d.UpdatedAt.IsZero() {
		return d.UpdatedAt
	}
	return d.CreatedAt
}
