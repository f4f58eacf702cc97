package store

import (
	"context"
	"time"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// Repo defines storage operations for users, credentials, the delivery
// audit log and scheduled jobs.
type Repo interface {
	// Users.
	UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error)
	SetFetchDays(ctx context.Context, userID int64, days int) error
	DeleteUser(ctx context.Context, id int64) error

	// Credentials. Tokens are encrypted before they touch disk and
	// decrypted on read; callers only ever see plaintext.
	SaveCredential(ctx context.Context, userID int64, access, refresh string, expiresAt time.Time) error
	GetCredential(ctx context.Context, userID int64) (domain.Credential, error)

	// Delivery audit log. Append-only.
	AppendDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error
	ListDeliveryRecords(ctx context.Context, f domain.LogFilter) ([]domain.DeliveryRecord, error)
	DeliveryStats(ctx context.Context, f domain.LogFilter) (domain.LogStats, error)

	// Scheduled jobs.
	CreateJob(ctx context.Context, job *domain.ScheduledJob) error
	GetJob(ctx context.Context, jobID string) (*domain.ScheduledJob, error)
	// FinishJob moves a pending job to completed or failed. It reports
	// false when the job was not pending, so the transition happens at
	// most once.
	FinishJob(ctx context.Context, jobID string, status domain.JobStatus, completedAt time.Time) (bool, error)
	// CancelJob marks a pending job cancelled; cancelling a terminal job
	// is a no-op and reports false.
	CancelJob(ctx context.Context, jobID string) (bool, error)
	ListJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	PendingJobs(ctx context.Context) ([]domain.ScheduledJob, error)
	PurgeFinishedJobs(ctx context.Context) (int64, error)

	Close() error
}
