// Package schedule evaluates recurring notification rules against each
// user's local clock. Timezone conversion is a pure function of (instant,
// zone) and the clock is injected, so the evaluator is testable with fixed
// instants and arbitrary IANA zones.
package schedule

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/delivery"
	"journal-notify/internal/domain"
	"journal-notify/internal/journalapi"
	"journal-notify/internal/observability/metrics"
)

// Clock abstracts wall time for the evaluator.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func RealClock() Clock { return realClock{} }

type ruleStore interface {
	Enabled(ctx context.Context) ([]domain.ScheduledRule, error)
	UpdateLastSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type profileReader interface {
	Profile(ctx context.Context, userID uuid.UUID) (*journalapi.Profile, error)
}

type journalReader interface {
	HasEntryOn(ctx context.Context, userID uuid.UUID, day time.Time) (bool, error)
	Streak(ctx context.Context, userID uuid.UUID) (journalapi.Streak, error)
}

type pusher interface {
	SendPush(ctx context.Context, userID uuid.UUID, n *domain.Notification, uc *delivery.UserContext, opts delivery.Options) (delivery.Result, error)
}

// Stats summarizes one evaluator sweep.
type Stats struct {
	Evaluated  int
	Fired      int
	Dispatched int
	Suppressed int
}

type Evaluator struct {
	Rules    ruleStore
	Profiles profileReader
	Journal  journalReader
	Pipeline pusher

	// Window is how long after the scheduled instant a rule still fires,
	// tolerating evaluator polling cadence.
	Window    time.Duration
	DefaultTZ string

	Clock  Clock
	Logger *slog.Logger
}

func NewEvaluator(rules ruleStore, profiles profileReader, journal journalReader, pipeline pusher, window time.Duration, defaultTZ string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		Rules:     rules,
		Profiles:  profiles,
		Journal:   journal,
		Pipeline:  pipeline,
		Window:    window,
		DefaultTZ: defaultTZ,
		Clock:     RealClock(),
		Logger:    logger,
	}
}

// Sweep evaluates every enabled rule once against the current instant.
func (e *Evaluator) Sweep(ctx context.Context) (Stats, error) {
	rules, err := e.Rules.Enabled(ctx)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	now := e.Clock.Now()
	for i := range rules {
		rule := &rules[i]
		stats.Evaluated++
		fired, dispatched, err := e.evaluate(ctx, rule, now)
		if err != nil {
			e.Logger.Error("evaluate rule", "rule_id", rule.ID, "user_id", rule.UserID, "error", err)
			continue
		}
		if fired {
			stats.Fired++
			if dispatched {
				stats.Dispatched++
			} else {
				stats.Suppressed++
			}
		}
	}
	return stats, nil
}

func (e *Evaluator) evaluate(ctx context.Context, rule *domain.ScheduledRule, now time.Time) (fired, dispatched bool, err error) {
	profile, err := e.Profiles.Profile(ctx, rule.UserID)
	if err != nil {
		return false, false, err
	}

	loc := e.location(profile.Timezone)
	userNow := now.In(loc)

	if !rule.Days()[int(userNow.Weekday())] {
		return false, false, nil
	}

	hour, minute, ok := rule.ScheduledClock()
	if !ok {
		e.Logger.Warn("rule has malformed scheduled time", "rule_id", rule.ID, "scheduled_time", rule.ScheduledTime)
		return false, false, nil
	}

	scheduled := time.Date(userNow.Year(), userNow.Month(), userNow.Day(), hour, minute, 0, 0, loc)
	lag := userNow.Sub(scheduled)
	if lag < 0 || lag > e.Window {
		return false, false, nil
	}

	if rule.LastSent != nil {
		last := rule.LastSent.In(loc)
		if sameLocalDate(last, userNow) {
			return false, false, nil
		}
	}

	metrics.SchedulerLagSeconds.Set(lag.Seconds())

	n, err := e.compose(ctx, rule, userNow)
	if err != nil {
		return true, false, err
	}

	// The rule fired whether or not content was suppressed; stamping
	// LastSent either way prevents re-evaluation churn for the rest of the
	// local day.
	if n != nil {
		res, err := e.Pipeline.SendPush(ctx, rule.UserID, n, &delivery.UserContext{Profile: profile}, delivery.Options{})
		if err != nil {
			return true, false, err
		}
		dispatched = res.Success
		e.Logger.Info("scheduled rule fired",
			"rule_id", rule.ID, "user_id", rule.UserID, "type", rule.Type,
			"lag_seconds", lag.Seconds(), "success", res.Success, "reason", string(res.Reason))
	}

	if err := e.Rules.UpdateLastSent(ctx, rule.ID, userNow.UTC()); err != nil {
		return true, dispatched, err
	}
	return true, dispatched, nil
}

// compose builds the type-specific payload, or nil when the notification is
// suppressed for this user today.
func (e *Evaluator) compose(ctx context.Context, rule *domain.ScheduledRule, userNow time.Time) (*domain.Notification, error) {
	switch rule.Type {
	case domain.TypeDailyReminder:
		exists, err := e.Journal.HasEntryOn(ctx, rule.UserID, userNow)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
		return &domain.Notification{
			Type:  domain.TypeDailyReminder,
			Title: "Time to journal",
			Body:  "A few minutes of reflection keeps the habit alive.",
			Data:  map[string]string{"screen": "journal"},
		}, nil

	case domain.TypeStreakReminder:
		streak, err := e.Journal.Streak(ctx, rule.UserID)
		if err != nil {
			return nil, err
		}
		if streak.CompletedToday || streak.Current == 0 {
			return nil, nil
		}
		return &domain.Notification{
			Type:  domain.TypeStreakReminder,
			Title: "Keep your streak going",
			Body:  "You're on a " + strconv.Itoa(streak.Current) + "-day streak. Don't break it today.",
			Data:  map[string]string{"screen": "journal", "streak": strconv.Itoa(streak.Current)},
		}, nil

	case domain.TypeWeeklyReflection:
		return &domain.Notification{
			Type:  domain.TypeWeeklyReflection,
			Title: "Weekly reflection",
			Body:  "Look back on your week and note what mattered.",
			Data:  map[string]string{"screen": "reflection"},
		}, nil
	}

	e.Logger.Warn("unknown rule type", "rule_id", rule.ID, "type", rule.Type)
	return nil, nil
}

func (e *Evaluator) location(tz string) *time.Location {
	if tz == "" {
		tz = e.DefaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sameLocalDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
