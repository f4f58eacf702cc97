package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
	"github.com/Areeb3176/schedule-agent/internal/fanout"
)

// memJobStore is an in-memory JobStore safe for timer goroutines.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ScheduledJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*domain.ScheduledJob)}
}

func (m *memJobStore) CreateJob(_ context.Context, job *domain.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, jobID string) (*domain.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobStore) FinishJob(_ context.Context, jobID string, status domain.JobStatus, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobPending {
		return false, nil
	}
	j.Status = status
	j.CompletedAt = &completedAt
	return true, nil
}

func (m *memJobStore) CancelJob(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobPending {
		return false, nil
	}
	j.Status = domain.JobCancelled
	return true, nil
}

func (m *memJobStore) ListJobs(_ context.Context) ([]domain.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledJob
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memJobStore) PendingJobs(ctx context.Context) ([]domain.ScheduledJob, error) {
	all, _ := m.ListJobs(ctx)
	var out []domain.ScheduledJob
	for _, j := range all {
		if j.Status == domain.JobPending {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memJobStore) PurgeFinishedJobs(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if j.Status.Terminal() {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) status(t *testing.T, jobID string) domain.JobStatus {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		t.Fatalf("job %s not in store", jobID)
	}
	return j.Status
}

// fakeRunner records fan-out invocations and signals each one.
type fakeRunner struct {
	mu   sync.Mutex
	runs []fanout.Params
	err  error
	ran  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 8)}
}

func (f *fakeRunner) Run(_ context.Context, p fanout.Params) (fanout.Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, p)
	f.mu.Unlock()
	f.ran <- struct{}{}
	return fanout.Result{Total: 1, Success: 1}, f.err
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

// justBefore pins the scheduler clock `lead` before the next minute
// boundary, so a fire time on that boundary arms a real timer of that
// length despite the minute-granularity wire format.
func justBefore(s *Scheduler, lead time.Duration) string {
	base := time.Now().UTC().Truncate(time.Minute).Add(time.Minute)
	s.now = func() time.Time { return base.Add(-lead) }
	return base.Format("2006-01-02T15:04")
}

func newTestScheduler(store JobStore, runner Runner) *Scheduler {
	return New(store, runner, time.UTC, zap.NewNop())
}

func waitStatus(t *testing.T, store *memJobStore, jobID string, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.status(t, jobID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s, stuck at %s", jobID, want, store.status(t, jobID))
}

func TestSchedulePastTimeRejected(t *testing.T) {
	store := newMemJobStore()
	s := newTestScheduler(store, newFakeRunner())

	_, err := s.Schedule(context.Background(), "2020-01-01T10:00", nil, 7, 1)
	if !errors.Is(err, domain.ErrPastTime) {
		t.Fatalf("want ErrPastTime, got %v", err)
	}
	if jobs, _ := store.ListJobs(context.Background()); len(jobs) != 0 {
		t.Fatalf("nothing should be persisted on rejection, got %d jobs", len(jobs))
	}
}

func TestScheduleInvalidWindowRejected(t *testing.T) {
	store := newMemJobStore()
	s := newTestScheduler(store, newFakeRunner())

	_, err := s.Schedule(context.Background(), "2099-01-01T10:00", nil, 0, 1)
	if !errors.Is(err, domain.ErrInvalidWindow) {
		t.Fatalf("want ErrInvalidWindow, got %v", err)
	}
	if jobs, _ := store.ListJobs(context.Background()); len(jobs) != 0 {
		t.Fatalf("nothing should be persisted on rejection, got %d jobs", len(jobs))
	}
}

func TestScheduleMalformedTimeRejected(t *testing.T) {
	s := newTestScheduler(newMemJobStore(), newFakeRunner())
	if _, err := s.Schedule(context.Background(), "tomorrow at noon", nil, 7, 1); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestScheduledJobFiresAndCompletes(t *testing.T) {
	store := newMemJobStore()
	runner := newFakeRunner()
	s := newTestScheduler(store, runner)
	defer s.Stop()

	fireAt := justBefore(s, 20*time.Millisecond)
	job, err := s.Schedule(context.Background(), fireAt, []int64{2, 3}, 5, 1)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if store.status(t, job.ID) != domain.JobPending {
		t.Fatalf("job should start pending")
	}

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
	waitStatus(t, store, job.ID, domain.JobCompleted)

	runner.mu.Lock()
	p := runner.runs[0]
	runner.mu.Unlock()
	if len(p.UserIDs) != 2 || p.WindowDays != 5 {
		t.Fatalf("fired params mismatch: %+v", p)
	}
	if !p.IncludeAdmins {
		t.Fatal("explicit recipient lists include admins")
	}
}

func TestFailedRunMarksJobFailed(t *testing.T) {
	store := newMemJobStore()
	runner := newFakeRunner()
	runner.err = errors.New("store unavailable")
	s := newTestScheduler(store, runner)
	defer s.Stop()

	job, err := s.Schedule(context.Background(), justBefore(s, 20*time.Millisecond), nil, 7, 1)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitStatus(t, store, job.ID, domain.JobFailed)
}

func TestCancelPendingPreventsFiring(t *testing.T) {
	store := newMemJobStore()
	runner := newFakeRunner()
	s := newTestScheduler(store, runner)
	defer s.Stop()

	// A long lead keeps the timer far away while cancellation runs.
	job, err := s.Schedule(context.Background(), justBefore(s, 30*time.Second), nil, 7, 1)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	changed, err := s.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !changed {
		t.Fatal("cancel of a pending job should report a transition")
	}
	if store.status(t, job.ID) != domain.JobCancelled {
		t.Fatalf("want cancelled, got %s", store.status(t, job.ID))
	}

	time.Sleep(200 * time.Millisecond)
	if runner.runCount() != 0 {
		t.Fatalf("cancelled job must not run, got %d runs", runner.runCount())
	}
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	store := newMemJobStore()
	s := newTestScheduler(store, newFakeRunner())

	done := time.Now().UTC()
	_ = store.CreateJob(context.Background(), &domain.ScheduledJob{
		ID:          "scheduled_done",
		Status:      domain.JobCompleted,
		CompletedAt: &done,
	})

	changed, err := s.Cancel(context.Background(), "scheduled_done")
	if err != nil {
		t.Fatalf("cancelling a terminal job must not error: %v", err)
	}
	if changed {
		t.Fatal("terminal job must stay terminal")
	}
	if store.status(t, "scheduled_done") != domain.JobCompleted {
		t.Fatal("status changed on idempotent cancel")
	}
}

func TestRestoreFiresOverdueJob(t *testing.T) {
	store := newMemJobStore()
	runner := newFakeRunner()
	s := newTestScheduler(store, runner)
	defer s.Stop()

	_ = store.CreateJob(context.Background(), &domain.ScheduledJob{
		ID:     "scheduled_overdue",
		Status: domain.JobPending,
		FireAt: time.Now().UTC().Add(-time.Hour),
	})

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue job never fired after restore")
	}
	waitStatus(t, store, "scheduled_overdue", domain.JobCompleted)
}

func TestClearFinishedKeepsPending(t *testing.T) {
	store := newMemJobStore()
	s := newTestScheduler(store, newFakeRunner())
	ctx := context.Background()

	_ = store.CreateJob(ctx, &domain.ScheduledJob{ID: "a", Status: domain.JobCompleted})
	_ = store.CreateJob(ctx, &domain.ScheduledJob{ID: "b", Status: domain.JobCancelled})
	_ = store.CreateJob(ctx, &domain.ScheduledJob{ID: "c", Status: domain.JobPending})

	n, err := s.ClearFinished(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 purged, got %d", n)
	}
	if store.status(t, "c") != domain.JobPending {
		t.Fatal("pending job must survive a purge")
	}
}
