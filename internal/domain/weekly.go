package domain

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyProgress tracks one user's journaling activity for one ISO week.
// ClaimedAt and ReminderAttemptedAt are optimistic locks consumed by the
// report and reminder workers respectively; each worker only ever touches
// its own column.
type WeeklyProgress struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_week,priority:1" json:"userId"`
	WeekStart           time.Time  `gorm:"not null;uniqueIndex:idx_progress_user_week,priority:2" json:"weekStart"`
	Timezone            string     `json:"timezone"`
	JournalCount        int        `gorm:"not null" json:"journalCount"`
	MeditationCount     int        `gorm:"not null" json:"meditationCount"`
	Eligible            bool       `gorm:"not null" json:"eligible"`
	ReportReadyAt       *time.Time `json:"reportReadyAt,omitempty"`
	ReportSentAt        *time.Time `json:"reportSentAt,omitempty"`
	ReminderSentAt      *time.Time `json:"reminderSentAt,omitempty"`
	ReminderAttemptedAt *time.Time `json:"reminderAttemptedAt,omitempty"`
	ClaimedAt           *time.Time `json:"claimedAt,omitempty"`
	NextReportAtUTC     *time.Time `gorm:"column:next_report_at_utc;index" json:"nextReportAtUtc,omitempty"`
	RetryAttempts       int        `gorm:"not null" json:"retryAttempts"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// WeeklyReport is the idempotent record of what was actually emailed,
// independent of the progress row's claim state. Upsert keyed on
// (UserID, WeekStart).
type WeeklyReport struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_report_user_week,priority:1" json:"userId"`
	WeekStart    time.Time `gorm:"not null;uniqueIndex:idx_report_user_week,priority:2" json:"weekStart"`
	Subject      string    `json:"subject"`
	BodyMarkdown string    `json:"bodyMarkdown"`
	SentAt       time.Time `json:"sentAt"`
	MessageID    string    `json:"messageId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WeekStartFor returns the Monday 00:00 of t's ISO week in loc, normalized
// to a UTC date so it is stable as a partition key.
func WeekStartFor(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	weekday := int(local.Weekday())
	// time.Weekday has Sunday=0; ISO weeks start Monday.
	offset := (weekday + 6) % 7
	monday := local.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}
