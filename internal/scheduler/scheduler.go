// Package scheduler owns deferred fan-out jobs: validation, persistence,
// in-process timers that fire them, and the recurring daily run.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
	"github.com/Areeb3176/schedule-agent/internal/fanout"
)

// runTimeout bounds one fired job's orchestrator run.
const runTimeout = 10 * time.Minute

// JobStore is the slice of storage the scheduler needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.ScheduledJob) error
	GetJob(ctx context.Context, jobID string) (*domain.ScheduledJob, error)
	FinishJob(ctx context.Context, jobID string, status domain.JobStatus, completedAt time.Time) (bool, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	ListJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	PendingJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	PurgeFinishedJobs(ctx context.Context) (int64, error)
}

// Runner executes one fan-out; implemented by fanout.Orchestrator.
type Runner interface {
	Run(ctx context.Context, p fanout.Params) (fanout.Result, error)
}

// Scheduler registers, fires and cancels deferred jobs.
type Scheduler struct {
	store  JobStore
	runner Runner
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Scheduler. loc is the reference timezone fire times are
// interpreted in.
func New(store JobStore, runner Runner, loc *time.Location, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		loc:    loc,
		log:    log,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule validates and persists a deferred fan-out, then arms its timer.
// localFireTime is "2006-01-02T15:04" wall time in the reference timezone;
// it must be strictly in the future. Nothing is persisted when validation
// fails. An empty userIDs list means "all non-admin users at fire time".
func (s *Scheduler) Schedule(ctx context.Context, localFireTime string, userIDs []int64, windowDays int, createdBy int64) (*domain.ScheduledJob, error) {
	if err := domain.ValidateWindow(windowDays); err != nil {
		return nil, err
	}

	fireLocal, err := time.ParseInLocation("2006-01-02T15:04", localFireTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse fire time: %w", err)
	}
	fireAt := fireLocal.UTC()
	if !fireAt.After(s.now().UTC()) {
		return nil, domain.ErrPastTime
	}

	job := &domain.ScheduledJob{
		ID:        "scheduled_" + uuid.NewString(),
		FireAt:    fireAt,
		Status:    domain.JobPending,
		UserIDs:   userIDs,
		FetchDays: windowDays,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	s.arm(job)
	s.log.Info("job scheduled",
		zap.String("jobID", job.ID),
		zap.Time("fireAt", fireAt),
		zap.Int("recipients", len(userIDs)),
		zap.Int64("createdBy", createdBy),
	)
	return job, nil
}

// arm registers the in-process timer for a pending job.
func (s *Scheduler) arm(job *domain.ScheduledJob) {
	delay := job.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	jobID := job.ID
	userIDs := job.UserIDs
	windowDays := job.FetchDays

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.fire(jobID, userIDs, windowDays)
	})
}

// fire runs one job to completion and records its terminal status. The
// pending→terminal transition is guarded in the store, so a job that was
// cancelled between timer fire and here stays cancelled.
func (s *Scheduler) fire(jobID string, userIDs []int64, windowDays int) {
	s.mu.Lock()
	delete(s.timers, jobID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	s.log.Info("executing scheduled job", zap.String("jobID", jobID))

	// Explicit recipient lists include admins; an empty list resolves to
	// all non-admin users as of now, not as of schedule time.
	p := fanout.Params{
		UserIDs:       userIDs,
		IncludeAdmins: len(userIDs) > 0,
		WindowDays:    windowDays,
	}

	res, err := s.runner.Run(ctx, p)
	status := domain.JobCompleted
	if err != nil {
		status = domain.JobFailed
		s.log.Error("scheduled job failed", zap.String("jobID", jobID), zap.Error(err))
	} else {
		s.log.Info("scheduled job completed",
			zap.String("jobID", jobID),
			zap.Int("total", res.Total),
			zap.Int("success", res.Success),
			zap.Int("failed", res.Failed),
		)
	}

	moved, ferr := s.store.FinishJob(ctx, jobID, status, s.now().UTC())
	if ferr != nil {
		s.log.Error("finish job failed", zap.String("jobID", jobID), zap.Error(ferr))
	} else if !moved {
		s.log.Warn("job already terminal, status not updated", zap.String("jobID", jobID))
	}
}

// Cancel disarms a job's timer and marks it cancelled. Cancelling a job
// that is already terminal is a no-op success; the return value reports
// whether this call performed the transition.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	changed, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Info("job cancelled", zap.String("jobID", jobID))
	}
	return changed, nil
}

// List returns all jobs, newest first.
func (s *Scheduler) List(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.store.ListJobs(ctx)
}

// ClearFinished purges completed, failed and cancelled jobs.
func (s *Scheduler) ClearFinished(ctx context.Context) (int64, error) {
	return s.store.PurgeFinishedJobs(ctx)
}

// Restore re-arms pending jobs after a restart. Jobs whose fire time has
// already passed fire immediately.
func (s *Scheduler) Restore(ctx context.Context) error {
	jobs, err := s.store.PendingJobs(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		s.arm(&jobs[i])
	}
	if len(jobs) > 0 {
		s.log.Info("pending jobs restored", zap.Int("count", len(jobs)))
	}
	return nil
}

// Stop disarms all timers. In-flight runs are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// RunDaily fires a personalized fan-out to all non-admin users every day at
// the given local wall time ("HH:MM" in the reference timezone) until ctx is
// canceled.
func (s *Scheduler) RunDaily(ctx context.Context, at string) error {
	target, err := time.Parse("15:04", at)
	if err != nil {
		return fmt.Errorf("parse daily time %q: %w", at, err)
	}

	for {
		next := s.nextDaily(target.Hour(), target.Minute())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("daily schedule stopping")
			return nil
		case <-timer.C:
			s.log.Info("daily summary run triggered")
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			res, err := s.runner.Run(runCtx, fanout.Params{IncludeAdmins: false})
			cancel()
			if err != nil {
				s.log.Error("daily summary run failed", zap.Error(err))
			} else {
				s.log.Info("daily summary run finished",
					zap.Int("total", res.Total),
					zap.Int("success", res.Success),
					zap.Int("failed", res.Failed),
				)
			}
		}
	}
}

// nextDaily returns the next occurrence of HH:MM in the reference timezone.
func (s *Scheduler) nextDaily(hour, minute int) time.Time {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
