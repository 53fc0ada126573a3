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

// ReportWorker sends the weekly report email for due, eligible progress
// rows. Multiple instances may sweep concurrently; ClaimReport serializes
// ownership so a (user, week) is processed by at most one of them.
type ReportWorker struct {
	Progress progressStore
	Reports  reportStore
	Email    emailSender
	Profiles profileReader

	MaxRetryAttempts int
	RetryDelay       time.Duration
	BatchSize        int

	Clock  Clock
	Logger *slog.Logger
}

func NewReportWorker(progress progressStore, reports reportStore, email emailSender, profiles profileReader, maxRetries int, retryDelay time.Duration, batchSize int, logger *slog.Logger) *ReportWorker {
	return &ReportWorker{
		Progress:         progress,
		Reports:          reports,
		Email:            email,
		Profiles:         profiles,
		MaxRetryAttempts: maxRetries,
		RetryDelay:       retryDelay,
		BatchSize:        batchSize,
		Clock:            RealClock(),
		Logger:           logger,
	}
}

// WorkerStats summarizes one sweep of either email worker.
type WorkerStats struct {
	Candidates int
	Claimed    int
	Sent       int
	Released   int
	Failed     int
}

func (w *ReportWorker) Sweep(ctx context.Context) (WorkerStats, error) {
	now := w.Clock.Now().UTC()
	candidates, err := w.Progress.DueReports(ctx, now, w.BatchSize)
	if err != nil {
		return WorkerStats{}, err
	}

	stats := WorkerStats{Candidates: len(candidates)}
	for i := range candidates {
		row := &candidates[i]

		claimed, err := w.Progress.ClaimReport(ctx, row.ID, now)
		if err != nil {
			w.Logger.Error("claim weekly report", "progress_id", row.ID, "error", err)
			stats.Failed++
			continue
		}
		if !claimed {
			// Another instance won the race; expected, not an error.
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

func (w *ReportWorker) processClaimed(ctx context.Context, id uuid.UUID, now time.Time) string {
	row, err := w.Progress.Get(ctx, id)
	if err != nil {
		w.Logger.Error("refetch claimed row", "progress_id", id, "error", err)
		return "failed"
	}

	// Defensive re-validation: eligibility could have flipped between the
	// candidate query and the claim.
	if !row.Eligible || row.ReportSentAt != nil {
		if err := w.Progress.ReleaseReportClaim(ctx, row.ID); err != nil {
			w.Logger.Error("release stale claim", "progress_id", row.ID, "error", err)
			return "failed"
		}
		return "released"
	}

	profile, err := w.Profiles.Profile(ctx, row.UserID)
	if err != nil {
		return w.fail(ctx, row, now, err)
	}
	if profile.Email == "" {
		// No address will ever appear by retrying.
		if err := w.Progress.DisableReport(ctx, row.ID, row.RetryAttempts); err != nil {
			w.Logger.Error("disable report row", "progress_id", row.ID, "error", err)
		}
		w.Logger.Warn("weekly report disabled: user has no email", "user_id", row.UserID)
		return "released"
	}

	subject, html, text, markdown, err := RenderReport(ReportData{
		Name:            displayName(profile.DisplayName),
		WeekStart:       row.WeekStart,
		JournalCount:    row.JournalCount,
		MeditationCount: row.MeditationCount,
		Values:          profile.Values,
		Mission:         profile.Mission,
	})
	if err != nil {
		return w.fail(ctx, row, now, err)
	}

	messageID, err := w.Email.Send(ctx, channel.EmailMessage{
		To:      []string{profile.Email},
		Subject: subject,
		HTML:    html,
		Text:    text,
		Tags:    []string{"weekly-report"},
	})
	if err != nil {
		return w.fail(ctx, row, now, err)
	}

	// Record what was sent first; the upsert is idempotent on (user, week),
	// so a crash between these two writes converges on the next sweep.
	if err := w.Reports.Upsert(ctx, &domain.WeeklyReport{
		UserID:       row.UserID,
		WeekStart:    row.WeekStart,
		Subject:      subject,
		BodyMarkdown: markdown,
		SentAt:       now,
		MessageID:    messageID,
	}); err != nil {
		w.Logger.Error("upsert weekly report record", "user_id", row.UserID, "error", err)
	}
	if err := w.Progress.MarkReportSent(ctx, row.ID, now); err != nil {
		w.Logger.Error("mark report sent", "progress_id", row.ID, "error", err)
		return "failed"
	}

	metrics.WeeklyEmailsTotal.WithLabelValues("report", "sent").Inc()
	w.Logger.Info("weekly report sent",
		"user_id", row.UserID, "week_start", row.WeekStart.Format("2006-01-02"), "message_id", messageID)
	return "sent"
}

// fail applies the claim pattern's error arm: reschedule with the claim
// released, or permanently disable once attempts are exhausted.
func (w *ReportWorker) fail(ctx context.Context, row *domain.WeeklyProgress, now time.Time, cause error) string {
	attempts := row.RetryAttempts + 1
	w.Logger.Error("weekly report processing failed",
		"user_id", row.UserID, "attempts", attempts, "error", cause)

	if attempts >= w.MaxRetryAttempts {
		if err := w.Progress.DisableReport(ctx, row.ID, attempts); err != nil {
			w.Logger.Error("disable report row", "progress_id", row.ID, "error", err)
		}
		metrics.WeeklyEmailsTotal.WithLabelValues("report", "exhausted").Inc()
		return "failed"
	}
	if err := w.Progress.RescheduleReport(ctx, row.ID, attempts, now.Add(w.RetryDelay)); err != nil {
		w.Logger.Error("reschedule report row", "progress_id", row.ID, "error", err)
	}
	metrics.WeeklyEmailsTotal.WithLabelValues("report", "retried").Inc()
	return "failed"
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
