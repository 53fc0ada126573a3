package retry_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/delivery"
	"journal-notify/internal/domain"
	"journal-notify/internal/njson"
	"journal-notify/internal/retry"
)

type fakeJobs struct {
	mu          sync.Mutex
	due         []domain.RetryJob
	rescheduled map[uuid.UUID]int
	nextAt      map[uuid.UUID]time.Time
	deleted     map[uuid.UUID]bool
}

func newFakeJobs(jobs ...domain.RetryJob) *fakeJobs {
	return &fakeJobs{
		due:         jobs,
		rescheduled: map[uuid.UUID]int{},
		nextAt:      map[uuid.UUID]time.Time{},
		deleted:     map[uuid.UUID]bool{},
	}
}

func (f *fakeJobs) Due(context.Context, time.Time, int) ([]domain.RetryJob, error) {
	return f.due, nil
}

func (f *fakeJobs) Reschedule(_ context.Context, id uuid.UUID, attempts int, _ string, nextAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = attempts
	f.nextAt[id] = nextAt
	return nil
}

func (f *fakeJobs) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

func (f *fakeJobs) Depth(context.Context) (int64, error) { return 0, nil }

type fakePipeline struct {
	mu     sync.Mutex
	result delivery.Result
	opts   []delivery.Options
}

func (f *fakePipeline) SendPush(_ context.Context, _ uuid.UUID, _ *domain.Notification, _ *delivery.UserContext, opts delivery.Options) (delivery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	return f.result, nil
}

func job(t *testing.T, attempts, maxAttempts int) domain.RetryJob {
	t.Helper()
	j := domain.RetryJob{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
	if err := j.SetNotification(&domain.Notification{Type: domain.TypeDailyReminder, Title: "t", Body: "b"}); err != nil {
		t.Fatalf("set payload: %v", err)
	}
	return j
}

func TestBackoffTable(t *testing.T) {
	want := []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour}
	for i, d := range want {
		if got := retry.BackoffFor(i); got != d {
			t.Fatalf("attempt %d: expected %s, got %s", i, d, got)
		}
	}
	// Past the table the last entry clamps.
	if got := retry.BackoffFor(7); got != 2*time.Hour {
		t.Fatalf("expected clamp at 2h, got %s", got)
	}
	if got := retry.BackoffFor(-1); got != 5*time.Minute {
		t.Fatalf("expected first entry for negative attempts, got %s", got)
	}
}

func TestSweepDeliveredDeletesJob(t *testing.T) {
	j := job(t, 1, 5)
	jobs := newFakeJobs(j)
	pipe := &fakePipeline{result: delivery.Result{Success: true, Channel: domain.ChannelFCM}}

	p := retry.NewProcessor(jobs, pipe, 10, 2, slog.Default())
	stats, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Delivered != 1 || stats.Processed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !jobs.deleted[j.ID] {
		t.Fatal("delivered job must be removed from the queue")
	}
	if len(pipe.opts) != 1 || !pipe.opts[0].DisableRetry {
		t.Fatal("replays must run with retries disabled")
	}
}

func TestSweepTransientFailureRequeues(t *testing.T) {
	j := job(t, 1, 5)
	jobs := newFakeJobs(j)
	pipe := &fakePipeline{result: delivery.Result{Reason: domain.ReasonTransientChannelError}}

	p := retry.NewProcessor(jobs, pipe, 10, 1, slog.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	stats, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Requeued != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := jobs.rescheduled[j.ID]; got != 2 {
		t.Fatalf("expected attempts bumped to 2, got %d", got)
	}
	// Second failure backs off per the table entry for two attempts.
	if want := now.Add(30 * time.Minute); !jobs.nextAt[j.ID].Equal(want) {
		t.Fatalf("expected next attempt at %s, got %s", want, jobs.nextAt[j.ID])
	}
}

func TestSweepTerminalReasonDrops(t *testing.T) {
	j := job(t, 0, 5)
	jobs := newFakeJobs(j)
	pipe := &fakePipeline{result: delivery.Result{Reason: domain.ReasonNoChannel}}

	p := retry.NewProcessor(jobs, pipe, 10, 1, slog.Default())
	stats, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Dropped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !jobs.deleted[j.ID] {
		t.Fatal("terminal outcome must delete the job")
	}
	if len(jobs.rescheduled) != 0 {
		t.Fatal("terminal outcome must not reschedule")
	}
}

func TestSweepExhaustionDrops(t *testing.T) {
	j := job(t, 4, 5)
	jobs := newFakeJobs(j)
	pipe := &fakePipeline{result: delivery.Result{Reason: domain.ReasonTransientChannelError}}

	p := retry.NewProcessor(jobs, pipe, 10, 1, slog.Default())
	stats, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Dropped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !jobs.deleted[j.ID] {
		t.Fatal("exhausted job must be deleted")
	}
}

func TestSweepCorruptPayloadDrops(t *testing.T) {
	j := domain.RetryJob{ID: uuid.New(), UserID: uuid.New(), Payload: njson.JSON("{not json"), MaxAttempts: 5}
	jobs := newFakeJobs(j)
	pipe := &fakePipeline{result: delivery.Result{Success: true}}

	p := retry.NewProcessor(jobs, pipe, 10, 1, slog.Default())
	stats, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Dropped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(pipe.opts) != 0 {
		t.Fatal("corrupt payload must not reach the pipeline")
	}
}
