package domain

import "time"

// JobStatus is the lifecycle state of a scheduled job. Terminal states
// are absorbing: a job leaves pending at most once.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ScheduledJob is a deferred fan-out invocation. An empty UserIDs list means
// "all non-admin users", resolved lazily at fire time rather than at
// schedule time.
type ScheduledJob struct {
	ID          string
	FireAt      time.Time // UTC
	Status      JobStatus
	UserIDs     []int64
	FetchDays   int
	CreatedBy   int64
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DeliveryRecord is one append-only audit log entry. Recipient identity is
// denormalized so history survives user edits and deletion.
type DeliveryRecord struct {
	ID          string
	UserID      int64
	UserEmail   string
	UserName    string
	Subject     string
	Status      string // "success" | "failed"
	Error       string
	EventsCount int
	FetchDays   int
	SentAt      time.Time // UTC
}

// Delivery record statuses.
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// LogFilter bounds audit log queries.
type LogFilter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// LogStats aggregates delivery outcomes over a filter range.
type LogStats struct {
	Total   int
	Success int
	Failed  int
}
