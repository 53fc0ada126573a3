// Package ratelimit enforces the per-user daily cap and per-type cooldown.
// Both checks are advisory reads over the notification history; a race can
// admit one extra send, which is acceptable for spam prevention.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type historyCounter interface {
	CountDeliveredSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	CountTypeDeliveredSince(ctx context.Context, userID uuid.UUID, notificationType string, since time.Time) (int64, error)
}

const (
	ReasonDailyLimit   = "daily_limit_exceeded"
	ReasonTypeCooldown = "type_cooldown"
)

type Result struct {
	Exceeded bool
	Reason   string
}

type Limiter struct {
	History      historyCounter
	DailyMax     int
	TypeCooldown time.Duration
	TypeMax      int

	Now func() time.Time
}

func New(history historyCounter, dailyMax int, typeCooldown time.Duration, typeMax int) *Limiter {
	return &Limiter{
		History:      history,
		DailyMax:     dailyMax,
		TypeCooldown: typeCooldown,
		TypeMax:      typeMax,
		Now:          time.Now,
	}
}

// Check evaluates both counters for the user and type.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, notificationType string) (Result, error) {
	now := l.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if l.DailyMax > 0 {
		total, err := l.History.CountDeliveredSince(ctx, userID, dayStart)
		if err != nil {
			return Result{}, err
		}
		if total >= int64(l.DailyMax) {
			return Result{Exceeded: true, Reason: ReasonDailyLimit}, nil
		}
	}

	if l.TypeMax > 0 && l.TypeCooldown > 0 {
		typed, err := l.History.CountTypeDeliveredSince(ctx, userID, notificationType, now.Add(-l.TypeCooldown))
		if err != nil {
			return Result{}, err
		}
		if typed >= int64(l.TypeMax) {
			return Result{Exceeded: true, Reason: ReasonTypeCooldown}, nil
		}
	}

	return Result{}, nil
}
