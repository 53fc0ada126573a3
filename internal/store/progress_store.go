package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"journal-notify/internal/domain"
)

type ProgressStore struct{ db *gorm.DB }

func (s *Store) Progress() *ProgressStore { return &ProgressStore{db: s.DB} }

// UpsertCounts writes the recomputed activity counts for a (user, week). It
// deliberately never touches the claim or sent columns so recomputing an
// already-eligible, not-yet-sent row cannot corrupt an in-flight worker.
func (p *ProgressStore) UpsertCounts(ctx context.Context, row *domain.WeeklyProgress) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "week_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"timezone", "journal_count", "meditation_count", "eligible", "updated_at",
			}),
		}).
		Create(row).Error
}

// MarkReportReady stamps ReportReadyAt/NextReportAtUTC exactly once: a second
// recompute pass against an already-ready row affects zero rows.
func (p *ProgressStore) MarkReportReady(ctx context.Context, id uuid.UUID, readyAt, nextReportAt time.Time) (bool, error) {
	tx := p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ? AND report_ready_at IS NULL AND report_sent_at IS NULL", id).
		Updates(map[string]any{
			"report_ready_at":    readyAt,
			"next_report_at_utc": nextReportAt,
		})
	return tx.RowsAffected == 1, tx.Error
}

func (p *ProgressStore) Get(ctx context.Context, id uuid.UUID) (*domain.WeeklyProgress, error) {
	var row domain.WeeklyProgress
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (p *ProgressStore) GetForWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*domain.WeeklyProgress, error) {
	var row domain.WeeklyProgress
	if err := p.db.WithContext(ctx).
		First(&row, "user_id = ? AND week_start = ?", userID, weekStart).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// DueReports lists candidate rows for the report worker. The list is
// advisory; ClaimReport is what serializes ownership.
func (p *ProgressStore) DueReports(ctx context.Context, now time.Time, limit int) ([]domain.WeeklyProgress, error) {
	var rows []domain.WeeklyProgress
	tx := p.db.WithContext(ctx).
		Where("eligible = ? AND report_sent_at IS NULL AND claimed_at IS NULL AND next_report_at_utc IS NOT NULL AND next_report_at_utc <= ?", true, now).
		Order("next_report_at_utc ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimReport atomically takes ownership of a due row. Exactly one concurrent
// caller observes true; everyone else loses the race (zero rows affected).
func (p *ProgressStore) ClaimReport(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tx := p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ? AND eligible = ? AND report_sent_at IS NULL AND claimed_at IS NULL AND next_report_at_utc <= ?", id, true, now).
		Update("claimed_at", now)
	return tx.RowsAffected == 1, tx.Error
}

// ReleaseReportClaim hands a claimed-but-unprocessed row back (defensive
// re-validation found it ineligible or already handled).
func (p *ProgressStore) ReleaseReportClaim(ctx context.Context, id uuid.UUID) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Update("claimed_at", nil).Error
}

// MarkReportSent writes the terminal state; the sent column short-circuits
// every future due-predicate regardless of the claim.
func (p *ProgressStore) MarkReportSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"report_sent_at": sentAt,
			"claimed_at":     nil,
		}).Error
}

// RescheduleReport releases the claim and pushes the due time forward after a
// processing error.
func (p *ProgressStore) RescheduleReport(ctx context.Context, id uuid.UUID, attempts int, nextAt time.Time) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_attempts":     attempts,
			"next_report_at_utc": nextAt,
			"claimed_at":         nil,
		}).Error
}

// DisableReport permanently stops retrying a row that exhausted its attempts.
func (p *ProgressStore) DisableReport(ctx context.Context, id uuid.UUID, attempts int) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"eligible":           false,
			"retry_attempts":     attempts,
			"next_report_at_utc": nil,
			"claimed_at":         nil,
		}).Error
}

// DueReminders lists rows the reminder worker may still act on, across the
// inclusive [from, to] week-start range. Rows are keyed on the user's local
// Monday, so a west-of-UTC user's Sunday evening falls in the previous UTC
// week; the caller passes both Mondays and the per-row window check decides.
func (p *ProgressStore) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]domain.WeeklyProgress, error) {
	var rows []domain.WeeklyProgress
	tx := p.db.WithContext(ctx).
		Where("week_start >= ? AND week_start <= ? AND reminder_sent_at IS NULL AND reminder_attempted_at IS NULL AND report_sent_at IS NULL", from, to)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimReminder takes reminder ownership via its own claim column so the two
// workers never interfere.
func (p *ProgressStore) ClaimReminder(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tx := p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ? AND reminder_sent_at IS NULL AND reminder_attempted_at IS NULL", id).
		Update("reminder_attempted_at", now)
	return tx.RowsAffected == 1, tx.Error
}

func (p *ProgressStore) ReleaseReminderClaim(ctx context.Context, id uuid.UUID) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Update("reminder_attempted_at", nil).Error
}

func (p *ProgressStore) MarkReminderSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Update("reminder_sent_at", sentAt).Error
}

func (p *ProgressStore) BumpReminderAttempts(ctx context.Context, id uuid.UUID, attempts int) error {
	return p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("id = ?", id).
		Update("retry_attempts", attempts).Error
}

// ReleaseStuckClaims frees claims older than the TTL that never produced a
// sent record, so a worker crash mid-processing cannot strand a row forever.
func (p *ProgressStore) ReleaseStuckClaims(ctx context.Context, now time.Time, ttl time.Duration) (int64, error) {
	cutoff := now.Add(-ttl)

	reports := p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("claimed_at IS NOT NULL AND claimed_at < ? AND report_sent_at IS NULL", cutoff).
		Update("claimed_at", nil)
	if reports.Error != nil {
		return 0, reports.Error
	}

	reminders := p.db.WithContext(ctx).
		Model(&domain.WeeklyProgress{}).
		Where("reminder_attempted_at IS NOT NULL AND reminder_attempted_at < ? AND reminder_sent_at IS NULL", cutoff).
		Update("reminder_attempted_at", nil)
	if reminders.Error != nil {
		return reports.RowsAffected, reminders.Error
	}

	return reports.RowsAffected + reminders.RowsAffected, nil
}
