package weekly_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"journal-notify/internal/channel"
	"journal-notify/internal/domain"
	"journal-notify/internal/journalapi"
	"journal-notify/internal/weekly"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// fakeProgress is an in-memory progress store honoring the conditional-update
// claim semantics.
type fakeProgress struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.WeeklyProgress

	// onGet, when set, mutates the stored row before Get copies it out,
	// simulating a concurrent writer landing between claim and refetch.
	onGet func(*domain.WeeklyProgress)
}

func newFakeProgress(rows ...*domain.WeeklyProgress) *fakeProgress {
	f := &fakeProgress{rows: map[uuid.UUID]*domain.WeeklyProgress{}}
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeProgress) UpsertCounts(_ context.Context, row *domain.WeeklyProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.UserID == row.UserID && r.WeekStart.Equal(row.WeekStart) {
			r.Timezone = row.Timezone
			r.JournalCount = row.JournalCount
			r.MeditationCount = row.MeditationCount
			r.Eligible = row.Eligible
			return nil
		}
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.ID] = &cp
	return nil
}

func (f *fakeProgress) MarkReportReady(_ context.Context, id uuid.UUID, readyAt, nextAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	if r == nil || r.ReportReadyAt != nil || r.ReportSentAt != nil {
		return false, nil
	}
	r.ReportReadyAt, r.NextReportAtUTC = &readyAt, &nextAt
	return true, nil
}

func (f *fakeProgress) Get(_ context.Context, id uuid.UUID) (*domain.WeeklyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	if r == nil {
		return nil, errors.New("not found")
	}
	if f.onGet != nil {
		f.onGet(r)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeProgress) GetForWeek(_ context.Context, userID uuid.UUID, weekStart time.Time) (*domain.WeeklyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.UserID == userID && r.WeekStart.Equal(weekStart) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeProgress) DueReports(_ context.Context, now time.Time, _ int) ([]domain.WeeklyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WeeklyProgress
	for _, r := range f.rows {
		if r.Eligible && r.ReportSentAt == nil && r.ClaimedAt == nil &&
			r.NextReportAtUTC != nil && !r.NextReportAtUTC.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeProgress) ClaimReport(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	if r == nil || !r.Eligible || r.ReportSentAt != nil || r.ClaimedAt != nil ||
		r.NextReportAtUTC == nil || r.NextReportAtUTC.After(now) {
		return false, nil
	}
	r.ClaimedAt = &now
	return true, nil
}

func (f *fakeProgress) ReleaseReportClaim(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.ClaimedAt = nil
	}
	return nil
}

func (f *fakeProgress) MarkReportSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.ReportSentAt = &sentAt
		r.ClaimedAt = nil
	}
	return nil
}

func (f *fakeProgress) RescheduleReport(_ context.Context, id uuid.UUID, attempts int, nextAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.RetryAttempts = attempts
		r.NextReportAtUTC = &nextAt
		r.ClaimedAt = nil
	}
	return nil
}

func (f *fakeProgress) DisableReport(_ context.Context, id uuid.UUID, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.Eligible = false
		r.RetryAttempts = attempts
		r.NextReportAtUTC = nil
		r.ClaimedAt = nil
	}
	return nil
}

func (f *fakeProgress) DueReminders(_ context.Context, from, to time.Time, _ int) ([]domain.WeeklyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WeeklyProgress
	for _, r := range f.rows {
		if !r.WeekStart.Before(from) && !r.WeekStart.After(to) && r.ReminderSentAt == nil &&
			r.ReminderAttemptedAt == nil && r.ReportSentAt == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeProgress) ClaimReminder(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	if r == nil || r.ReminderSentAt != nil || r.ReminderAttemptedAt != nil {
		return false, nil
	}
	r.ReminderAttemptedAt = &now
	return true, nil
}

func (f *fakeProgress) ReleaseReminderClaim(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.ReminderAttemptedAt = nil
	}
	return nil
}

func (f *fakeProgress) MarkReminderSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.ReminderSentAt = &sentAt
	}
	return nil
}

func (f *fakeProgress) BumpReminderAttempts(_ context.Context, id uuid.UUID, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.rows[id]; r != nil {
		r.RetryAttempts = attempts
	}
	return nil
}

func (f *fakeProgress) ReleaseStuckClaims(context.Context, time.Time, time.Duration) (int64, error) {
	return 0, nil
}

type fakeReports struct {
	mu      sync.Mutex
	upserts []domain.WeeklyReport
}

func (f *fakeReports) Upsert(_ context.Context, r *domain.WeeklyReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *r)
	return nil
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []channel.EmailMessage
	err  error
}

func (f *fakeEmail) Send(_ context.Context, msg channel.EmailMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "email-1", nil
}

type fakeJournal struct {
	profiles map[uuid.UUID]*journalapi.Profile
	activity map[uuid.UUID]journalapi.WeeklyActivity
	active   []uuid.UUID
}

func (f *fakeJournal) Profile(_ context.Context, userID uuid.UUID) (*journalapi.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return p, nil
}

func (f *fakeJournal) WeeklyActivity(_ context.Context, userID uuid.UUID, _ time.Time) (journalapi.WeeklyActivity, error) {
	return f.activity[userID], nil
}

func (f *fakeJournal) ActiveUsers(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.active, nil
}

// Wednesday mid-week, 12:00 UTC.
var testNow = time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

func TestTrackerMarksEligibleOnce(t *testing.T) {
	userID := uuid.New()
	journal := &fakeJournal{
		profiles: map[uuid.UUID]*journalapi.Profile{userID: {UserID: userID, Email: "u@x", Timezone: "UTC"}},
		activity: map[uuid.UUID]journalapi.WeeklyActivity{userID: {JournalCount: 3, MeditationCount: 1}},
		active:   []uuid.UUID{userID},
	}
	progress := newFakeProgress()

	tr := weekly.NewTracker(progress, journal, 3, time.Hour, "UTC", slog.Default())
	tr.Clock = fixedClock(testNow)

	stats, err := tr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Synced != 1 || stats.Eligible != 1 || stats.Readied != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	weekStart := domain.WeekStartFor(testNow, time.UTC)
	row, err := progress.GetForWeek(context.Background(), userID, weekStart)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.ReportReadyAt == nil || row.NextReportAtUTC == nil {
		t.Fatal("eligible row must be marked ready")
	}
	if want := testNow.Add(time.Hour); !row.NextReportAtUTC.Equal(want) {
		t.Fatalf("expected report due at %s, got %s", want, row.NextReportAtUTC)
	}

	// A second recompute pass refreshes counts but does not re-mark.
	journal.activity[userID] = journalapi.WeeklyActivity{JournalCount: 4}
	stats, err = tr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Readied != 0 {
		t.Fatalf("second sweep must not re-mark, got %+v", stats)
	}
	row, _ = progress.GetForWeek(context.Background(), userID, weekStart)
	if row.JournalCount != 4 {
		t.Fatalf("counts must refresh, got %d", row.JournalCount)
	}
}

func TestTrackerBelowThresholdNotReady(t *testing.T) {
	userID := uuid.New()
	journal := &fakeJournal{
		profiles: map[uuid.UUID]*journalapi.Profile{userID: {UserID: userID, Timezone: "UTC"}},
		activity: map[uuid.UUID]journalapi.WeeklyActivity{userID: {JournalCount: 2}},
		active:   []uuid.UUID{userID},
	}
	progress := newFakeProgress()

	tr := weekly.NewTracker(progress, journal, 3, time.Hour, "UTC", slog.Default())
	tr.Clock = fixedClock(testNow)

	stats, err := tr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Eligible != 0 || stats.Readied != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func dueReportRow(userID uuid.UUID) *domain.WeeklyProgress {
	due := testNow.Add(-time.Minute)
	ready := testNow.Add(-time.Hour)
	return &domain.WeeklyProgress{
		ID:              uuid.New(),
		UserID:          userID,
		WeekStart:       domain.WeekStartFor(testNow, time.UTC),
		Timezone:        "UTC",
		JournalCount:    3,
		Eligible:        true,
		ReportReadyAt:   &ready,
		NextReportAtUTC: &due,
	}
}

func TestReportWorkerSendsAndMarks(t *testing.T) {
	userID := uuid.New()
	progress := newFakeProgress(dueReportRow(userID))
	reports := &fakeReports{}
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com", DisplayName: "Ada"},
	}}

	w := weekly.NewReportWorker(progress, reports, email, journal, 3, 5*time.Minute, 10, slog.Default())
	w.Clock = fixedClock(testNow)

	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Claimed != 1 || stats.Sent != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(email.sent))
	}
	if email.sent[0].To[0] != "user@example.com" {
		t.Fatalf("unexpected recipient %v", email.sent[0].To)
	}
	if !strings.Contains(email.sent[0].HTML, "Ada") {
		t.Fatal("expected personalized body")
	}
	if len(reports.upserts) != 1 {
		t.Fatalf("expected one report record, got %d", len(reports.upserts))
	}

	rows, _ := progress.DueReports(context.Background(), testNow, 10)
	if len(rows) != 0 {
		t.Fatal("sent row must not stay due")
	}

	// A second sweep is a no-op.
	stats, err = w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Claimed != 0 || len(email.sent) != 1 {
		t.Fatalf("second sweep must not resend, got %+v", stats)
	}
}

func TestReportWorkerRetriesThenExhausts(t *testing.T) {
	userID := uuid.New()
	row := dueReportRow(userID)
	progress := newFakeProgress(row)
	email := &fakeEmail{err: errors.New("smtp down")}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	w := weekly.NewReportWorker(progress, &fakeReports{}, email, journal, 3, 0, 10, slog.Default())
	w.Clock = fixedClock(testNow)

	// Attempts 1 and 2 reschedule with the claim released.
	for i := 1; i <= 2; i++ {
		if _, err := w.Sweep(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		got, _ := progress.Get(context.Background(), row.ID)
		if got.RetryAttempts != i {
			t.Fatalf("sweep %d: expected %d attempts, got %d", i, i, got.RetryAttempts)
		}
		if got.ClaimedAt != nil {
			t.Fatalf("sweep %d: claim must be released for retry", i)
		}
		if !got.Eligible {
			t.Fatalf("sweep %d: row disabled too early", i)
		}
	}

	// The third failure reaches MaxRetryAttempts and disables the row.
	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("final sweep: %v", err)
	}
	got, _ := progress.Get(context.Background(), row.ID)
	if got.Eligible {
		t.Fatal("exhausted row must be disabled")
	}
	if got.NextReportAtUTC != nil {
		t.Fatal("disabled row must not stay scheduled")
	}
}

func TestReportWorkerReleasesStaleClaim(t *testing.T) {
	userID := uuid.New()
	row := dueReportRow(userID)
	progress := newFakeProgress(row)
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	// Simulate the race: another writer marks the row sent between the claim
	// and the worker's refetch. Re-validation must release the claim.
	sent := testNow.Add(-time.Minute)
	progress.onGet = func(r *domain.WeeklyProgress) { r.ReportSentAt = &sent }

	w := weekly.NewReportWorker(progress, &fakeReports{}, email, journal, 3, 0, 10, slog.Default())
	w.Clock = fixedClock(testNow)

	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Claimed != 1 || stats.Released != 1 {
		t.Fatalf("expected claim then release, got %+v", stats)
	}
	if len(email.sent) != 0 {
		t.Fatal("already-sent row must not be emailed")
	}
	got, _ := progress.Get(context.Background(), row.ID)
	if got.ClaimedAt != nil {
		t.Fatal("stale claim must be released")
	}
}

func TestReportWorkerDisablesWhenNoEmail(t *testing.T) {
	userID := uuid.New()
	row := dueReportRow(userID)
	progress := newFakeProgress(row)
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: ""},
	}}

	w := weekly.NewReportWorker(progress, &fakeReports{}, &fakeEmail{}, journal, 3, 0, 10, slog.Default())
	w.Clock = fixedClock(testNow)

	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := progress.Get(context.Background(), row.ID)
	if got.Eligible {
		t.Fatal("a user with no address must be disabled, not retried")
	}
}

// reminderRow is below threshold in the current week.
func reminderRow(userID uuid.UUID, tz string) *domain.WeeklyProgress {
	return &domain.WeeklyProgress{
		ID:           uuid.New(),
		UserID:       userID,
		WeekStart:    domain.WeekStartFor(testNow, time.UTC),
		Timezone:     tz,
		JournalCount: 1,
	}
}

func newReminderWorker(progress *fakeProgress, email *fakeEmail, journal *fakeJournal, at time.Time) *weekly.ReminderWorker {
	w := weekly.NewReminderWorker(progress, email, journal, 3, 2, 10, "UTC", slog.Default())
	w.Clock = fixedClock(at)
	return w
}

// Friday 20:00 UTC, inside the Thursday-evening-to-Sunday window.
var reminderNow = time.Date(2025, 6, 6, 20, 0, 0, 0, time.UTC)

func TestReminderWorkerSendsInsideWindow(t *testing.T) {
	userID := uuid.New()
	progress := newFakeProgress(reminderRow(userID, "UTC"))
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com", DisplayName: "Ada"},
	}}

	w := newReminderWorker(progress, email, journal, reminderNow)
	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(email.sent) != 1 || !strings.Contains(email.sent[0].HTML, "1 of 3") {
		t.Fatalf("expected progress copy in email, got %+v", email.sent)
	}

	// At most one reminder per (user, week).
	stats, err = w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if stats.Claimed != 0 || len(email.sent) != 1 {
		t.Fatalf("second sweep must not resend, got %+v", stats)
	}
}

func TestReminderWorkerSkipsOutsideWindow(t *testing.T) {
	userID := uuid.New()
	progress := newFakeProgress(reminderRow(userID, "UTC"))
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	// Wednesday is before the Thursday-evening window opens.
	w := newReminderWorker(progress, email, journal, testNow)
	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Claimed != 0 || len(email.sent) != 0 {
		t.Fatalf("expected skip outside window, got %+v", stats)
	}

	// The row stays unclaimed so a later in-window sweep still sends.
	w = newReminderWorker(progress, email, journal, reminderNow)
	stats, err = w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("in-window sweep: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected send once inside window, got %+v", stats)
	}
}

func TestReminderWorkerSkipsEligibleAndReadyRows(t *testing.T) {
	eligibleUser, readyUser := uuid.New(), uuid.New()
	eligible := reminderRow(eligibleUser, "UTC")
	eligible.Eligible = true
	ready := reminderRow(readyUser, "UTC")
	at := testNow
	ready.ReportReadyAt = &at

	progress := newFakeProgress(eligible, ready)
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		eligibleUser: {UserID: eligibleUser, Email: "a@x"},
		readyUser:    {UserID: readyUser, Email: "b@x"},
	}}

	w := newReminderWorker(progress, email, journal, reminderNow)
	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Claimed != 0 || len(email.sent) != 0 {
		t.Fatalf("eligible or ready rows must be skipped, got %+v", stats)
	}
}

func TestReminderWorkerReleasesWhenReportBecomesReady(t *testing.T) {
	userID := uuid.New()
	row := reminderRow(userID, "UTC")
	progress := newFakeProgress(row)
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	// Simulate the race: the tracker readies the report between the candidate
	// snapshot and the worker's post-claim refetch. The claim must be released
	// without sending.
	ready := reminderNow.Add(-time.Second)
	progress.onGet = func(r *domain.WeeklyProgress) { r.ReportReadyAt = &ready }

	w := newReminderWorker(progress, email, journal, reminderNow)
	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Claimed != 1 || stats.Released != 1 || stats.Sent != 0 {
		t.Fatalf("expected claim then release, got %+v", stats)
	}
	if len(email.sent) != 0 {
		t.Fatal("a report-ready user must not get a reminder")
	}
	got, _ := progress.Get(context.Background(), row.ID)
	if got.ReminderAttemptedAt != nil {
		t.Fatal("released claim must clear the attempt column")
	}
}

func TestReminderWorkerReachesWestOfUTCSundayEvening(t *testing.T) {
	userID := uuid.New()
	row := reminderRow(userID, "America/Los_Angeles")
	progress := newFakeProgress(row)
	email := &fakeEmail{}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	// Sunday 23:00 Pacific is already Monday 06:00 UTC: the row belongs to
	// the previous UTC week but its local window is still open.
	late := time.Date(2025, 6, 9, 6, 0, 0, 0, time.UTC)
	w := newReminderWorker(progress, email, journal, late)

	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Sent != 1 || len(email.sent) != 1 {
		t.Fatalf("expected late-Sunday send, got %+v", stats)
	}
}

func TestReminderWorkerRetriesThenStops(t *testing.T) {
	userID := uuid.New()
	row := reminderRow(userID, "UTC")
	progress := newFakeProgress(row)
	email := &fakeEmail{err: errors.New("smtp down")}
	journal := &fakeJournal{profiles: map[uuid.UUID]*journalapi.Profile{
		userID: {UserID: userID, Email: "user@example.com"},
	}}

	// First failure releases the claim for a later retry.
	w := newReminderWorker(progress, email, journal, reminderNow)
	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := progress.Get(context.Background(), row.ID)
	if got.RetryAttempts != 1 || got.ReminderAttemptedAt != nil {
		t.Fatalf("expected released claim after first failure, got %+v", got)
	}

	// Second failure hits the cap; the claim stays set, removing the row
	// from future due lists.
	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	got, _ = progress.Get(context.Background(), row.ID)
	if got.RetryAttempts != 2 || got.ReminderAttemptedAt == nil {
		t.Fatalf("expected exhausted claim kept, got %+v", got)
	}

	// No further sends even if the provider recovers.
	email.err = nil
	stats, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("third sweep: %v", err)
	}
	if stats.Claimed != 0 || len(email.sent) != 0 {
		t.Fatalf("exhausted row must stay silent, got %+v", stats)
	}
}
