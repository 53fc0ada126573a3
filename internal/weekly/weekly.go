// Package weekly maintains per-user weekly progress rows and runs the two
// claim-based email workers (weekly report, weekly reminder). Safety under
// overlapping worker invocations rests on claim-before-work conditional
// updates in the progress store; there is no lock service.
package weekly

import (
	"context"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/channel"
	"journal-notify/internal/domain"
	"journal-notify/internal/journalapi"
)

// Clock mirrors schedule.Clock so workers are testable with fixed instants.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func RealClock() Clock { return realClock{} }

type progressStore interface {
	UpsertCounts(ctx context.Context, row *domain.WeeklyProgress) error
	MarkReportReady(ctx context.Context, id uuid.UUID, readyAt, nextReportAt time.Time) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WeeklyProgress, error)
	GetForWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*domain.WeeklyProgress, error)

	DueReports(ctx context.Context, now time.Time, limit int) ([]domain.WeeklyProgress, error)
	ClaimReport(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ReleaseReportClaim(ctx context.Context, id uuid.UUID) error
	MarkReportSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	RescheduleReport(ctx context.Context, id uuid.UUID, attempts int, nextAt time.Time) error
	DisableReport(ctx context.Context, id uuid.UUID, attempts int) error

	DueReminders(ctx context.Context, from, to time.Time, limit int) ([]domain.WeeklyProgress, error)
	ClaimReminder(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error
	MarkReminderSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	BumpReminderAttempts(ctx context.Context, id uuid.UUID, attempts int) error

	ReleaseStuckClaims(ctx context.Context, now time.Time, ttl time.Duration) (int64, error)
}

type reportStore interface {
	Upsert(ctx context.Context, report *domain.WeeklyReport) error
}

type emailSender interface {
	Send(ctx context.Context, msg channel.EmailMessage) (string, error)
}

type profileReader interface {
	Profile(ctx context.Context, userID uuid.UUID) (*journalapi.Profile, error)
}

type activityReader interface {
	WeeklyActivity(ctx context.Context, userID uuid.UUID, weekStart time.Time) (journalapi.WeeklyActivity, error)
	ActiveUsers(ctx context.Context, weekStart time.Time) ([]uuid.UUID, error)
	Profile(ctx context.Context, userID uuid.UUID) (*journalapi.Profile, error)
}
