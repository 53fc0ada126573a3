package domain

import (
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/njson"
)

// TypePreference is one per-type toggle inside a user's preference row.
// ScheduleTime ("HH:MM") and ScheduleDay (0=Sunday..6) only apply to the
// recurring types.
type TypePreference struct {
	Enabled      bool   `json:"enabled"`
	ScheduleTime string `json:"scheduleTime,omitempty"`
	ScheduleDay  *int   `json:"scheduleDay,omitempty"`
}

// Preferences is the per-user notification settings row. A missing row or a
// missing per-type entry means everything is enabled.
type Preferences struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`
	Enabled   bool       `gorm:"not null;default:true" json:"enabled"`
	PerType   njson.JSON `gorm:"type:jsonb" json:"perType"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TypePrefs decodes the per-type settings column.
func (p *Preferences) TypePrefs() (map[string]TypePreference, error) {
	out := map[string]TypePreference{}
	if err := p.PerType.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetTypePrefs encodes the per-type settings column.
func (p *Preferences) SetTypePrefs(prefs map[string]TypePreference) error {
	data, err := njson.Wrap(prefs)
	if err != nil {
		return err
	}
	p.PerType = data
	return nil
}

// Allows reports whether notifications of the given type may be sent under
// these preferences. A nil receiver applies the defaults (all enabled).
func (p *Preferences) Allows(notificationType string) bool {
	if p == nil {
		return true
	}
	if !p.Enabled {
		return false
	}
	prefs, err := p.TypePrefs()
	if err != nil {
		// A corrupt column must not silence the user forever.
		return true
	}
	tp, ok := prefs[notificationType]
	if !ok {
		return true
	}
	return tp.Enabled
}
