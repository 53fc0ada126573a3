package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"journal-notify/internal/domain"
)

// ErrRecordNotFound is returned by lookups when no row matches.
var ErrRecordNotFound = errors.New("record not found")

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(
		&domain.DeviceRegistration{},
		&domain.Preferences{},
		&domain.HistoryEntry{},
		&domain.RetryJob{},
		&domain.WeeklyProgress{},
		&domain.WeeklyReport{},
		&domain.ScheduledRule{},
	)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
