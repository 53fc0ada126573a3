// Package retry replays failed deliveries on an exponential backoff table.
// Jobs are not claimed: an overlapping sweep may replay a job twice, which
// the providers tolerate; what matters is that a replay itself can never
// enqueue a nested retry.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/delivery"
	"journal-notify/internal/domain"
	"journal-notify/internal/observability/metrics"
)

// Backoff is the fixed schedule indexed by attempt count, clamped at the
// last entry.
var Backoff = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
}

// BackoffFor returns the delay before the next replay after `attempts`
// failures.
func BackoffFor(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(Backoff) {
		return Backoff[len(Backoff)-1]
	}
	return Backoff[attempts]
}

type jobStore interface {
	Due(ctx context.Context, now time.Time, limit int) ([]domain.RetryJob, error)
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	Depth(ctx context.Context) (int64, error)
}

type pusher interface {
	SendPush(ctx context.Context, userID uuid.UUID, n *domain.Notification, uc *delivery.UserContext, opts delivery.Options) (delivery.Result, error)
}

// Stats summarizes one sweep.
type Stats struct {
	Processed int
	Delivered int
	Requeued  int
	Dropped   int
}

type Processor struct {
	Jobs     jobStore
	Pipeline pusher

	BatchSize int
	Workers   int

	Logger *slog.Logger
	Now    func() time.Time
}

func NewProcessor(jobs jobStore, pipeline pusher, batchSize, workers int, logger *slog.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		Jobs:      jobs,
		Pipeline:  pipeline,
		BatchSize: batchSize,
		Workers:   workers,
		Logger:    logger,
		Now:       time.Now,
	}
}

// Sweep polls due jobs and replays them through the pipeline with retries
// disabled. Rows are independent, so a bounded pool processes them in
// parallel.
func (p *Processor) Sweep(ctx context.Context) (Stats, error) {
	now := p.Now()
	jobs, err := p.Jobs.Due(ctx, now, p.BatchSize)
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
		sem   = make(chan struct{}, p.Workers)
	)
	for i := range jobs {
		job := jobs[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := p.process(ctx, &job)
			mu.Lock()
			stats.Processed++
			switch outcome {
			case "delivered":
				stats.Delivered++
			case "requeued":
				stats.Requeued++
			default:
				stats.Dropped++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if depth, err := p.Jobs.Depth(ctx); err == nil {
		metrics.RetryQueueDepth.Set(float64(depth))
	}
	return stats, nil
}

func (p *Processor) process(ctx context.Context, job *domain.RetryJob) string {
	n, err := job.Notification()
	if err != nil {
		// Undecodable payloads can never succeed; drop them.
		p.Logger.Error("retry payload corrupt", "job_id", job.ID, "error", err)
		p.drop(ctx, job, "corrupt")
		return "dropped"
	}

	// User context is refetched fresh inside the pipeline: preferences and
	// devices may have changed since enqueue.
	res, err := p.Pipeline.SendPush(ctx, job.UserID, n, nil, delivery.Options{DisableRetry: true})
	if err != nil {
		p.Logger.Error("retry replay", "job_id", job.ID, "error", err)
	}

	if res.Success {
		if err := p.Jobs.Delete(ctx, job.ID); err != nil {
			p.Logger.Error("delete retry job", "job_id", job.ID, "error", err)
		}
		metrics.RetryJobsTotal.WithLabelValues("delivered").Inc()
		return "delivered"
	}

	if res.Reason.Terminal() {
		// The user vanished, disabled notifications or lost their last
		// device; replaying cannot help.
		p.drop(ctx, job, string(res.Reason))
		return "dropped"
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		p.drop(ctx, job, "exhausted")
		p.Logger.Warn("retry exhausted",
			"job_id", job.ID, "user_id", job.UserID, "type", n.Type, "attempts", attempts)
		return "dropped"
	}

	lastErr := string(res.Reason)
	if err != nil {
		lastErr = err.Error()
	}
	nextAt := p.Now().Add(BackoffFor(attempts))
	if err := p.Jobs.Reschedule(ctx, job.ID, attempts, lastErr, nextAt); err != nil {
		p.Logger.Error("reschedule retry job", "job_id", job.ID, "error", err)
	}
	metrics.RetryJobsTotal.WithLabelValues("requeued").Inc()
	return "requeued"
}

func (p *Processor) drop(ctx context.Context, job *domain.RetryJob, outcome string) {
	if err := p.Jobs.Delete(ctx, job.ID); err != nil {
		p.Logger.Error("delete retry job", "job_id", job.ID, "error", err)
	}
	metrics.RetryJobsTotal.WithLabelValues(outcome).Inc()
}
