package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduledRule is one recurring notification rule. Read-mostly; LastSent is
// updated after each dispatch to prevent a same-day re-fire.
type ScheduledRule struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	Type          string     `gorm:"not null" json:"type"`
	DaysOfWeek    string     `gorm:"not null" json:"daysOfWeek"` // csv of 0=Sunday..6
	ScheduledTime string     `gorm:"not null" json:"scheduledTime"`
	LastSent      *time.Time `json:"lastSent,omitempty"`
	Enabled       bool       `gorm:"not null;default:true" json:"enabled"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Days parses the DaysOfWeek csv into a set keyed by time.Weekday ordinal.
func (r *ScheduledRule) Days() map[int]bool {
	out := map[int]bool{}
	for _, part := range strings.Split(r.DaysOfWeek, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if d, err := strconv.Atoi(part); err == nil && d >= 0 && d <= 6 {
			out[d] = true
		}
	}
	return out
}

// ScheduledClock parses ScheduledTime ("HH:MM") into hour and minute.
func (r *ScheduledRule) ScheduledClock() (hour, minute int, ok bool) {
	parts := strings.SplitN(r.ScheduledTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
