package weekly

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/domain"
	"journal-notify/internal/store"
)

// Tracker is the recompute ("tag-sync") pass: it refreshes each active
// user's progress row for the current ISO week and stamps report readiness
// exactly once. Recomputing an already-eligible, unsent row never touches
// claim state.
type Tracker struct {
	Progress progressStore
	Journal  activityReader

	// EligibleMin is the journal-entry threshold for weekly-report
	// eligibility.
	EligibleMin int
	// ReportDelay is how far in the future NextReportAtUTC lands once a row
	// first becomes eligible.
	ReportDelay time.Duration
	DefaultTZ   string

	Clock  Clock
	Logger *slog.Logger
}

func NewTracker(progress progressStore, journal activityReader, eligibleMin int, reportDelay time.Duration, defaultTZ string, logger *slog.Logger) *Tracker {
	return &Tracker{
		Progress:    progress,
		Journal:     journal,
		EligibleMin: eligibleMin,
		ReportDelay: reportDelay,
		DefaultTZ:   defaultTZ,
		Clock:       RealClock(),
		Logger:      logger,
	}
}

// Stats summarizes one recompute sweep.
type TrackerStats struct {
	Synced   int
	Eligible int
	Readied  int
}

// Sweep recomputes progress for every user active this week.
func (t *Tracker) Sweep(ctx context.Context) (TrackerStats, error) {
	now := t.Clock.Now().UTC()
	weekStart := domain.WeekStartFor(now, time.UTC)

	users, err := t.Journal.ActiveUsers(ctx, weekStart)
	if err != nil {
		return TrackerStats{}, err
	}

	var stats TrackerStats
	for _, userID := range users {
		readied, eligible, err := t.syncUser(ctx, userID, now)
		if err != nil {
			t.Logger.Error("sync weekly progress", "user_id", userID, "error", err)
			continue
		}
		stats.Synced++
		if eligible {
			stats.Eligible++
		}
		if readied {
			stats.Readied++
		}
	}
	return stats, nil
}

func (t *Tracker) syncUser(ctx context.Context, userID uuid.UUID, now time.Time) (readied, eligible bool, err error) {
	profile, err := t.Journal.Profile(ctx, userID)
	if err != nil {
		return false, false, err
	}
	tz := profile.Timezone
	if tz == "" {
		tz = t.DefaultTZ
	}
	loc, locErr := time.LoadLocation(tz)
	if locErr != nil {
		loc = time.UTC
		tz = "UTC"
	}

	weekStart := domain.WeekStartFor(now, loc)
	activity, err := t.Journal.WeeklyActivity(ctx, userID, weekStart)
	if err != nil {
		return false, false, err
	}

	eligible = activity.JournalCount >= t.EligibleMin
	row := &domain.WeeklyProgress{
		UserID:          userID,
		WeekStart:       weekStart,
		Timezone:        tz,
		JournalCount:    activity.JournalCount,
		MeditationCount: activity.MeditationCount,
		Eligible:        eligible,
	}
	if err := t.Progress.UpsertCounts(ctx, row); err != nil {
		return false, false, err
	}
	if !eligible {
		return false, false, nil
	}

	current, err := t.Progress.GetForWeek(ctx, userID, weekStart)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, eligible, nil
		}
		return false, eligible, err
	}
	if current.ReportReadyAt != nil || current.ReportSentAt != nil {
		return false, eligible, nil
	}

	readied, err = t.Progress.MarkReportReady(ctx, current.ID, now, now.Add(t.ReportDelay))
	if err != nil {
		return false, eligible, err
	}
	if readied {
		t.Logger.Info("weekly report ready",
			"user_id", userID, "week_start", weekStart.Format("2006-01-02"),
			"journal_count", activity.JournalCount)
	}
	return readied, eligible, nil
}
