package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"journal-notify/internal/domain"
)

type HistoryStore struct{ db *gorm.DB }

func (s *Store) History() *HistoryStore { return &HistoryStore{db: s.DB} }

func (h *HistoryStore) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	return h.db.WithContext(ctx).Create(entry).Error
}

// CountDeliveredSince counts successful sends for the user since the cutoff.
// Failed attempts are audit rows, not spend against the daily cap.
func (h *HistoryStore) CountDeliveredSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := h.db.WithContext(ctx).
		Model(&domain.HistoryEntry{}).
		Where("user_id = ? AND delivered = ? AND sent_at >= ?", userID, true, since).
		Count(&n).Error
	return n, err
}

// CountTypeDeliveredSince counts successful sends of one type since the cutoff.
func (h *HistoryStore) CountTypeDeliveredSince(ctx context.Context, userID uuid.UUID, notificationType string, since time.Time) (int64, error) {
	var n int64
	err := h.db.WithContext(ctx).
		Model(&domain.HistoryEntry{}).
		Where("user_id = ? AND type = ? AND delivered = ? AND sent_at >= ?", userID, notificationType, true, since).
		Count(&n).Error
	return n, err
}

// PruneOlderThan drops audit rows past the retention window.
func (h *HistoryStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := h.db.WithContext(ctx).
		Where("sent_at < ?", cutoff).
		Delete(&domain.HistoryEntry{})
	return tx.RowsAffected, tx.Error
}

func (h *HistoryStore) RecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	tx := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sent_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
