package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"journal-notify/internal/domain"
)

type DeviceStore struct{ db *gorm.DB }

func (s *Store) Devices() *DeviceStore { return &DeviceStore{db: s.DB} }

// Upsert registers a token, refreshing the existing row when the token is
// already known (tokens are unique across users).
func (d *DeviceStore) Upsert(ctx context.Context, device *domain.DeviceRegistration) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "channel", "platform", "timezone", "app_version", "last_registered_at", "updated_at",
			}),
		}).
		Create(device).Error
}

func (d *DeviceStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.DeviceRegistration, error) {
	var devices []domain.DeviceRegistration
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_registered_at DESC").
		Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// DeleteByToken prunes a single registration, typically after a provider
// reported the token as permanently invalid.
func (d *DeviceStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	tx := d.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&domain.DeviceRegistration{})
	return tx.RowsAffected, tx.Error
}

// DeleteByUser removes every registration for a user (logout).
func (d *DeviceStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.DeviceRegistration{})
	return tx.RowsAffected, tx.Error
}
