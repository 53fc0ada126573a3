package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"journal-notify/internal/domain"
)

type ReportStore struct{ db *gorm.DB }

func (s *Store) Reports() *ReportStore { return &ReportStore{db: s.DB} }

// Upsert records what was actually emailed, keyed on (user, week). Replays
// overwrite the same row, so the record stays idempotent no matter how the
// progress row's claim state evolved.
func (r *ReportStore) Upsert(ctx context.Context, report *domain.WeeklyReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "week_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subject", "body_markdown", "sent_at", "message_id", "updated_at",
			}),
		}).
		Create(report).Error
}

func (r *ReportStore) GetForWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*domain.WeeklyReport, error) {
	var report domain.WeeklyReport
	if err := r.db.WithContext(ctx).
		First(&report, "user_id = ? AND week_start = ?", userID, weekStart).Error; err != nil {
		return nil, translate(err)
	}
	return &report, nil
}
