package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"journal-notify/internal/domain"
)

type RuleStore struct{ db *gorm.DB }

func (s *Store) Rules() *RuleStore { return &RuleStore{db: s.DB} }

func (r *RuleStore) Enabled(ctx context.Context) ([]domain.ScheduledRule, error) {
	var rules []domain.ScheduledRule
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleStore) Upsert(ctx context.Context, rule *domain.ScheduledRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *RuleStore) UpdateLastSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.ScheduledRule{}).
		Where("id = ?", id).
		Update("last_sent", at).Error
}
