package weekly

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/channel"
	"journal-notify/internal/domain"
	"journal-notify/internal/observability/metrics"
)

// Reminder window, relative to the local Monday that starts the week. A
// reminder makes sense once most of the week has passed but there is still
// time to act, so it opens Thursday evening and closes when the week ends.
const (
	reminderOpenOffset  = 3*24*time.Hour + 19*time.Hour // Thursday 19:00 local
	reminderCloseOffset = 7 * 24 * time.Hour            // end of Sunday local
)

// ReminderWorker nudges users who have not yet reached the weekly report
// threshold. The reminder claim lives in its own column
// (reminder_attempted_at) so it never contends with the report worker.
type ReminderWorker struct {
	Progress progressStore
	Email    emailSender
	Profiles profileReader

	// EligibleMin mirrors the tracker's threshold; it appears in the email
	// copy ("N of M entries").
	EligibleMin      int
	MaxRetryAttempts int
	BatchSize        int
	DefaultTZ        string

	Clock  Clock
	Logger *slog.Logger
}

func NewReminderWorker(progress progressStore, email emailSender, profiles profileReader, eligibleMin, maxRetries, batchSize int, defaultTZ string, logger *slog.Logger) *ReminderWorker {
	return &ReminderWorker{
		Progress:         progress,
		Email:            email,
		Profiles:         profiles,
		EligibleMin:      eligibleMin,
		MaxRetryAttempts: maxRetries,
		BatchSize:        batchSize,
		DefaultTZ:        defaultTZ,
		Clock:            RealClock(),
		Logger:           logger,
	}
}

// Sweep scans this week's progress rows and sends at most one reminder per
// (user, week). Rows outside their local fire window are skipped without
// claiming so a later sweep can still pick them up.
func (w *ReminderWorker) Sweep(ctx context.Context) (WorkerStats, error) {
	now := w.Clock.Now().UTC()

	// Rows are keyed on the user's local Monday. A west-of-UTC user's Sunday
	// evening is already the next UTC week, so scan both week starts and let
	// inWindow decide per row.
	weekStart := domain.WeekStartFor(now, time.UTC)
	candidates, err := w.Progress.DueReminders(ctx, weekStart.AddDate(0, 0, -7), weekStart, w.BatchSize)
	if err != nil {
		return WorkerStats{}, err
	}

	stats := WorkerStats{Candidates: len(candidates)}
	for i := range candidates {
		row := &candidates[i]

		// Already eligible, or the report is on its way: a nudge would be
		// noise. Leave the row unclaimed.
		if row.Eligible || row.ReportReadyAt != nil {
			continue
		}
		if !w.inWindow(row, now) {
			continue
		}
		if row.RetryAttempts >= w.MaxRetryAttempts {
			continue
		}

		claimed, err := w.Progress.ClaimReminder(ctx, row.ID, now)
		if err != nil {
			w.Logger.Error("claim weekly reminder", "progress_id", row.ID, "error", err)
			stats.Failed++
			continue
		}
		if !claimed {
			continue
		}
		stats.Claimed++

		switch w.processClaimed(ctx, row.ID, now) {
		case "sent":
			stats.Sent++
		case "released":
			stats.Released++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

func (w *ReminderWorker) processClaimed(ctx context.Context, id uuid.UUID, now time.Time) string {
	row, err := w.Progress.Get(ctx, id)
	if err != nil {
		w.Logger.Error("refetch claimed row", "progress_id", id, "error", err)
		return "failed"
	}

	// The candidate snapshot is stale by the time the claim lands: the tracker
	// may have made the row eligible or readied its report in between. Release
	// without sending rather than nudge a user whose report is on its way.
	if row.Eligible || row.ReportReadyAt != nil || row.ReminderSentAt != nil {
		if err := w.Progress.ReleaseReminderClaim(ctx, row.ID); err != nil {
			w.Logger.Error("release reminder claim", "progress_id", row.ID, "error", err)
			return "failed"
		}
		return "released"
	}

	profile, err := w.Profiles.Profile(ctx, row.UserID)
	if err != nil {
		return w.fail(ctx, row, err)
	}
	if profile.Email == "" {
		// Keep the claim: without an address there is nothing to retry.
		w.Logger.Warn("weekly reminder skipped: user has no email", "user_id", row.UserID)
		return "released"
	}

	deadline := w.weekClose(row)
	subject, html, text, err := RenderReminder(ReminderData{
		Name:          displayName(profile.DisplayName),
		JournalCount:  row.JournalCount,
		Needed:        w.EligibleMin,
		Deadline:      deadline,
		TimeRemaining: formatRemaining(deadline.Sub(now)),
	})
	if err != nil {
		return w.fail(ctx, row, err)
	}

	messageID, err := w.Email.Send(ctx, channel.EmailMessage{
		To:      []string{profile.Email},
		Subject: subject,
		HTML:    html,
		Text:    text,
		Tags:    []string{"weekly-reminder"},
	})
	if err != nil {
		return w.fail(ctx, row, err)
	}

	if err := w.Progress.MarkReminderSent(ctx, row.ID, now); err != nil {
		w.Logger.Error("mark reminder sent", "progress_id", row.ID, "error", err)
		return "failed"
	}

	metrics.WeeklyEmailsTotal.WithLabelValues("reminder", "sent").Inc()
	w.Logger.Info("weekly reminder sent",
		"user_id", row.UserID, "week_start", row.WeekStart.Format("2006-01-02"),
		"journal_count", row.JournalCount, "message_id", messageID)
	return "sent"
}

// fail releases the reminder claim so the next sweep retries, until attempts
// run out; an exhausted row keeps its claim column set, which removes it from
// the due predicate for the rest of the week.
func (w *ReminderWorker) fail(ctx context.Context, row *domain.WeeklyProgress, cause error) string {
	attempts := row.RetryAttempts + 1
	w.Logger.Error("weekly reminder processing failed",
		"user_id", row.UserID, "attempts", attempts, "error", cause)

	if err := w.Progress.BumpReminderAttempts(ctx, row.ID, attempts); err != nil {
		w.Logger.Error("bump reminder attempts", "progress_id", row.ID, "error", err)
	}
	if attempts >= w.MaxRetryAttempts {
		metrics.WeeklyEmailsTotal.WithLabelValues("reminder", "exhausted").Inc()
		return "failed"
	}
	if err := w.Progress.ReleaseReminderClaim(ctx, row.ID); err != nil {
		w.Logger.Error("release reminder claim", "progress_id", row.ID, "error", err)
	}
	metrics.WeeklyEmailsTotal.WithLabelValues("reminder", "retried").Inc()
	return "failed"
}

// inWindow reports whether now falls inside the row's local reminder window
// (Thursday 19:00 through end of Sunday).
func (w *ReminderWorker) inWindow(row *domain.WeeklyProgress, now time.Time) bool {
	open := w.weekOpen(row).Add(reminderOpenOffset)
	end := w.weekClose(row)
	local := now.In(w.location(row))
	return !local.Before(open) && local.Before(end)
}

// weekOpen is the local Monday 00:00 that starts the row's week.
func (w *ReminderWorker) weekOpen(row *domain.WeeklyProgress) time.Time {
	ws := row.WeekStart
	return time.Date(ws.Year(), ws.Month(), ws.Day(), 0, 0, 0, 0, w.location(row))
}

// weekClose is the first instant of the following local Monday.
func (w *ReminderWorker) weekClose(row *domain.WeeklyProgress) time.Time {
	return w.weekOpen(row).Add(reminderCloseOffset)
}

func (w *ReminderWorker) location(row *domain.WeeklyProgress) *time.Location {
	tz := row.Timezone
	if tz == "" {
		tz = w.DefaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
