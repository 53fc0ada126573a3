package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"journal-notify/internal/domain"
)

type PreferenceStore struct{ db *gorm.DB }

func (s *Store) Preferences() *PreferenceStore { return &PreferenceStore{db: s.DB} }

// Get returns the user's preference row, or ErrRecordNotFound when the user
// has never saved settings (callers apply defaults).
func (p *PreferenceStore) Get(ctx context.Context, userID uuid.UUID) (*domain.Preferences, error) {
	var prefs domain.Preferences
	if err := p.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &prefs, nil
}

func (p *PreferenceStore) Upsert(ctx context.Context, prefs *domain.Preferences) error {
	if prefs.ID == uuid.Nil {
		prefs.ID = uuid.New()
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "per_type", "updated_at"}),
		}).
		Create(prefs).Error
}
