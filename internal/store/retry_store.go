package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"journal-notify/internal/domain"
)

type RetryStore struct{ db *gorm.DB }

func (s *Store) Retries() *RetryStore { return &RetryStore{db: s.DB} }

func (r *RetryStore) Create(ctx context.Context, job *domain.RetryJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// Due returns jobs whose scheduled time has passed, oldest first, bounded.
func (r *RetryStore) Due(ctx context.Context, now time.Time, limit int) ([]domain.RetryJob, error) {
	var jobs []domain.RetryJob
	tx := r.db.WithContext(ctx).
		Where("scheduled_at <= ?", now).
		Order("scheduled_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Reschedule persists a failed replay: bumped attempt count, last error and
// the next due time.
func (r *RetryStore) Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.RetryJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":     attempts,
			"last_error":   lastError,
			"scheduled_at": nextAt,
		}).Error
}

func (r *RetryStore) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.RetryJob{}, "id = ?", id).Error
}

// Depth reports the current queue size for the metrics surface.
func (r *RetryStore) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.RetryJob{}).Count(&n).Error
	return n, err
}
