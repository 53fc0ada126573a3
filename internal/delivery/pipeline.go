// Package delivery composes, routes and sends push notifications, recording
// every outcome to history. It never lets a provider error escape its
// boundary: callers branch on the returned Result.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/channel"
	"journal-notify/internal/domain"
	"journal-notify/internal/journalapi"
	"journal-notify/internal/observability/metrics"
	"journal-notify/internal/ratelimit"
	"journal-notify/internal/registry"
	"journal-notify/internal/store"
)

type deviceStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.DeviceRegistration, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
}

type preferenceStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Preferences, error)
}

type historyStore interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
}

type retryStore interface {
	Create(ctx context.Context, job *domain.RetryJob) error
}

type profileReader interface {
	Profile(ctx context.Context, userID uuid.UUID) (*journalapi.Profile, error)
}

type limiter interface {
	Check(ctx context.Context, userID uuid.UUID, notificationType string) (ratelimit.Result, error)
}

// Result is the structured outcome of a send attempt.
type Result struct {
	Success bool
	Channel domain.Channel
	Reason  domain.Reason
}

// Options tune a single send. DisableRetry is set by the retry processor so
// a replayed failure cannot enqueue a nested retry chain.
type Options struct {
	DisableRetry bool
}

// UserContext carries already-fetched user state so callers iterating many
// users can avoid a refetch per send. Any nil field is loaded on demand.
type UserContext struct {
	Profile     *journalapi.Profile
	Preferences *domain.Preferences
	Devices     []domain.DeviceRegistration
}

type Pipeline struct {
	Devices  deviceStore
	Prefs    preferenceStore
	History  historyStore
	Retries  retryStore
	Profiles profileReader
	Limiter  limiter
	Senders  map[domain.Channel]channel.PushSender

	// RetryMaxAttempts and RetryDelay seed new retry jobs.
	RetryMaxAttempts int
	RetryDelay       time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func NewPipeline(st *store.Store, profiles profileReader, lim limiter, senders map[domain.Channel]channel.PushSender, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Devices:          st.Devices(),
		Prefs:            st.Preferences(),
		History:          st.History(),
		Retries:          st.Retries(),
		Profiles:         profiles,
		Limiter:          lim,
		Senders:          senders,
		RetryMaxAttempts: 5,
		RetryDelay:       5 * time.Minute,
		Logger:           logger,
		Now:              time.Now,
	}
}

// SendPush runs the full delivery sequence: rate limit, profile and
// preference checks, channel resolution, provider send, history, and failure
// classification (prune vs retry). uc may be nil.
func (p *Pipeline) SendPush(ctx context.Context, userID uuid.UUID, n *domain.Notification, uc *UserContext, opts Options) (Result, error) {
	if uc == nil {
		uc = &UserContext{}
	}

	rl, err := p.Limiter.Check(ctx, userID, n.Type)
	if err != nil {
		return Result{Reason: domain.ReasonTransientChannelError}, err
	}
	if rl.Exceeded {
		p.record(ctx, userID, n, domain.ChannelNone, false, rl.Reason)
		metrics.DeliveriesTotal.WithLabelValues("none", n.Type, string(domain.ReasonRateLimited)).Inc()
		return Result{Reason: domain.ReasonRateLimited}, nil
	}

	profile := uc.Profile
	if profile == nil {
		profile, err = p.Profiles.Profile(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				p.record(ctx, userID, n, domain.ChannelNone, false, string(domain.ReasonUserNotFound))
				return Result{Reason: domain.ReasonUserNotFound}, nil
			}
			return Result{Reason: domain.ReasonTransientChannelError}, err
		}
	}

	prefs := uc.Preferences
	if prefs == nil {
		prefs, err = p.Prefs.Get(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return Result{Reason: domain.ReasonTransientChannelError}, err
		}
		// A missing row means defaults: everything enabled.
	}
	if !prefs.Allows(n.Type) {
		p.record(ctx, userID, n, domain.ChannelNone, false, string(domain.ReasonNotificationsDisabled))
		return Result{Reason: domain.ReasonNotificationsDisabled}, nil
	}

	devices := uc.Devices
	if devices == nil {
		devices, err = p.Devices.ListByUser(ctx, userID)
		if err != nil {
			return Result{Reason: domain.ReasonTransientChannelError}, err
		}
	}

	ch, device := registry.DetermineChannel(profile.PushChannel, devices)
	if ch == domain.ChannelNone {
		p.record(ctx, userID, n, domain.ChannelNone, false, string(domain.ReasonNoChannel))
		metrics.DeliveriesTotal.WithLabelValues("none", n.Type, string(domain.ReasonNoChannel)).Inc()
		return Result{Reason: domain.ReasonNoChannel}, nil
	}

	sender, ok := p.Senders[ch]
	if !ok {
		p.record(ctx, userID, n, ch, false, string(domain.ReasonNoChannel))
		return Result{Reason: domain.ReasonNoChannel}, nil
	}

	start := p.Now()
	res, sendErr := sender.Send(ctx, device.Token, n)
	duration := p.Now().Sub(start)
	metrics.DeliveryDurationSeconds.WithLabelValues(string(ch)).Observe(duration.Seconds())

	if sendErr == nil {
		p.record(ctx, userID, n, ch, true, "")
		metrics.DeliveriesTotal.WithLabelValues(string(ch), n.Type, "delivered").Inc()
		p.Logger.Info("push delivered",
			"user_id", userID, "type", n.Type, "channel", ch,
			"message_id", res.MessageID, "duration", duration.String())
		return Result{Success: true, Channel: ch}, nil
	}

	p.record(ctx, userID, n, ch, false, sendErr.Error())

	if errors.Is(sendErr, domain.ErrUnregisteredToken) {
		if _, err := p.Devices.DeleteByToken(ctx, device.Token); err != nil {
			p.Logger.Error("prune dead token", "user_id", userID, "error", err)
		}
		metrics.DeliveriesTotal.WithLabelValues(string(ch), n.Type, string(domain.ReasonUnregisteredToken)).Inc()
		metrics.RegistrationsTotal.WithLabelValues(string(ch), device.Platform, "pruned").Inc()
		p.Logger.Warn("pruned unregistered token", "user_id", userID, "channel", ch)
		return Result{Channel: ch, Reason: domain.ReasonUnregisteredToken}, nil
	}

	metrics.DeliveriesTotal.WithLabelValues(string(ch), n.Type, string(domain.ReasonTransientChannelError)).Inc()
	if !opts.DisableRetry {
		if err := p.enqueueRetry(ctx, userID, n, sendErr); err != nil {
			p.Logger.Error("enqueue retry", "user_id", userID, "error", err)
		}
	}
	return Result{Channel: ch, Reason: domain.ReasonTransientChannelError}, nil
}

func (p *Pipeline) enqueueRetry(ctx context.Context, userID uuid.UUID, n *domain.Notification, cause error) error {
	job := &domain.RetryJob{
		UserID:      userID,
		LastError:   cause.Error(),
		Attempts:    0,
		MaxAttempts: p.RetryMaxAttempts,
		ScheduledAt: p.Now().Add(p.RetryDelay),
	}
	if err := job.SetNotification(n); err != nil {
		return err
	}
	if err := p.Retries.Create(ctx, job); err != nil {
		return err
	}
	metrics.RetryJobsTotal.WithLabelValues("enqueued").Inc()
	p.Logger.Info("retry enqueued", "user_id", userID, "type", n.Type, "scheduled_at", job.ScheduledAt)
	return nil
}

// record appends the audit row. Failures to write history are logged, never
// returned; the send outcome stands on its own.
func (p *Pipeline) record(ctx context.Context, userID uuid.UUID, n *domain.Notification, ch domain.Channel, delivered bool, errText string) {
	entry := &domain.HistoryEntry{
		UserID:    userID,
		Type:      n.Type,
		Channel:   ch,
		Title:     n.Title,
		Body:      n.Body,
		Delivered: delivered,
		Error:     errText,
		SentAt:    p.Now().UTC(),
	}
	if err := p.History.Append(ctx, entry); err != nil {
		p.Logger.Error("append history", "user_id", userID, "error", err)
	}
}
