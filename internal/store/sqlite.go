package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/Areeb3176/schedule-agent/internal/crypto"
	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database. Credential
// columns are sealed with the injected cipher before they are written.
type SQLiteRepo struct {
	db     *sql.DB
	cipher *crypto.Cipher
}

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string, cipher *crypto.Cipher) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db, cipher: cipher}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertUser inserts a user or updates name, role and window preference on
// conflict by email. The stored row (with its assigned ID) is returned.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u == nil {
		return nil, errors.New("nil user")
	}
	now := time.Now().UTC().Unix()
	fetchDays := u.FetchDays
	if fetchDays == 0 {
		fetchDays = domain.DefaultFetchDays
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, name, role, fetch_days, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			role = excluded.role`,
		u.Email, u.Name, string(u.Role), fetchDays, now,
	)
	if err != nil {
		return nil, err
	}
	return r.GetUserByEmail(ctx, u.Email)
}

const userColumns = `id, email, name, role, fetch_days, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		role      string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.FetchDays, &createdAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// GetUser returns a user by ID or domain.ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

// GetUserByEmail returns a user by email or domain.ErrNotFound.
func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

// ListUsers returns all users, admins first, then by name.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY CASE role WHEN 'admin' THEN 0 ELSE 1 END, LOWER(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// GetUsersByIDs returns the users matching the given IDs; unknown IDs are
// silently skipped.
func (r *SQLiteRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sq.Select("id", "email", "name", "role", "fetch_days", "created_at").
		From("users").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// SetFetchDays updates a user's window preference.
func (r *SQLiteRepo) SetFetchDays(ctx context.Context, userID int64, days int) error {
	if err := domain.ValidateWindow(days); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET fetch_days = ? WHERE id = ?`, days, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user; the credentials row cascades.
func (r *SQLiteRepo) DeleteUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// SaveCredential writes a user's token pair encrypted at rest. An empty
// refresh token keeps whatever refresh token is already stored, matching
// providers that only return one on the first grant.
func (r *SQLiteRepo) SaveCredential(ctx context.Context, userID int64, access, refresh string, expiresAt time.Time) error {
	if access == "" {
		return errors.New("access token required")
	}
	encAccess, err := r.cipher.Encrypt(access)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	var encRefresh []byte
	if refresh != "" {
		encRefresh, err = r.cipher.Encrypt(refresh)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	now := time.Now().UTC().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, credentials.refresh_token),
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		userID, encAccess, encRefresh, expiresAt.UTC().Unix(), now,
	)
	return err
}

// GetCredential returns a user's decrypted token pair or domain.ErrNoCredential.
func (r *SQLiteRepo) GetCredential(ctx context.Context, userID int64) (domain.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at, updated_at
		FROM credentials WHERE user_id = ?`, userID)

	var (
		encAccess  []byte
		encRefresh []byte
		expiresAt  int64
		updatedAt  int64
	)
	if err := row.Scan(&encAccess, &encRefresh, &expiresAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, domain.ErrNoCredential
		}
		return domain.Credential{}, err
	}

	access, err := r.cipher.Decrypt(encAccess)
	if err != nil {
		return domain.Credential{}, err
	}
	var refresh string
	if len(encRefresh) > 0 {
		refresh, err = r.cipher.Decrypt(encRefresh)
		if err != nil {
			return domain.Credential{}, err
		}
	}

	return domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
	}, nil
}

// AppendDeliveryRecord writes one audit log entry. Entries are never updated.
func (r *SQLiteRepo) AppendDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error {
	if rec == nil {
		return errors.New("nil delivery record")
	}
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_log
			(id, user_id, user_email, user_name, subject, status, error, events_count, fetch_days, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.UserEmail, rec.UserName, rec.Subject,
		rec.Status, rec.Error, rec.EventsCount, rec.FetchDays, sentAt.UTC().Unix(),
	)
	return err
}

// logQuery applies the optional date-range filter shared by listing and stats.
func logQuery(builder sq.SelectBuilder, f domain.LogFilter) sq.SelectBuilder {
	if f.Start != nil {
		builder = builder.Where(sq.GtOrEq{"sent_at": f.Start.UTC().Unix()})
	}
	if f.End != nil {
		builder = builder.Where(sq.LtOrEq{"sent_at": f.End.UTC().Unix()})
	}
	return builder
}

// ListDeliveryRecords returns audit entries, most recent first.
func (r *SQLiteRepo) ListDeliveryRecords(ctx context.Context, f domain.LogFilter) ([]domain.DeliveryRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query, args, err := logQuery(
		sq.Select("id", "user_id", "user_email", "user_name", "subject",
			"status", "error", "events_count", "fetch_days", "sent_at").
			From("delivery_log"), f).
		OrderBy("sent_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec    domain.DeliveryRecord
			sentAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserEmail, &rec.UserName,
			&rec.Subject, &rec.Status, &rec.Error, &rec.EventsCount, &rec.FetchDays, &sentAt); err != nil {
			return nil, err
		}
		rec.SentAt = time.Unix(sentAt, 0).UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}

// DeliveryStats aggregates outcomes over the filter range.
func (r *SQLiteRepo) DeliveryStats(ctx context.Context, f domain.LogFilter) (domain.LogStats, error) {
	query, args, err := logQuery(
		sq.Select(
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)",
		).From("delivery_log"), f).ToSql()
	if err != nil {
		return domain.LogStats{}, err
	}

	var stats domain.LogStats
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&stats.Total, &stats.Success, &stats.Failed); err != nil {
		return domain.LogStats{}, err
	}
	return stats, nil
}

// CreateJob persists a new pending scheduled job.
func (r *SQLiteRepo) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := job.Status
	if status == "" {
		status = domain.JobPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs
			(job_id, fire_at, status, user_ids, fetch_days, created_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.FireAt.UTC().Unix(), string(status),
		joinIDs(job.UserIDs), job.FetchDays, job.CreatedBy, createdAt.UTC().Unix(),
		toNullInt64(job.CompletedAt),
	)
	return err
}

const jobColumns = `job_id, fire_at, status, user_ids, fetch_days, created_by, created_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*domain.ScheduledJob, error) {
	var (
		job         domain.ScheduledJob
		fireAt      int64
		status      string
		userIDs     string
		createdAt   int64
		completedNS sql.NullInt64
	)
	if err := row.Scan(&job.ID, &fireAt, &status, &userIDs,
		&job.FetchDays, &job.CreatedBy, &createdAt, &completedNS); err != nil {
		return nil, err
	}
	job.FireAt = time.Unix(fireAt, 0).UTC()
	job.Status = domain.JobStatus(status)
	job.UserIDs = splitIDs(userIDs)
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.CompletedAt = fromNullInt64(completedNS)
	return &job, nil
}

// GetJob returns a job by ID or domain.ErrNotFound.
func (r *SQLiteRepo) GetJob(ctx context.Context, jobID string) (*domain.ScheduledJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// FinishJob transitions a pending job to completed or failed. The WHERE
// clause makes the transition happen at most once.
func (r *SQLiteRepo) FinishJob(ctx context.Context, jobID string, status domain.JobStatus, completedAt time.Time) (bool, error) {
	if !status.Terminal() || status == domain.JobCancelled {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, completed_at = ?
		WHERE job_id = ? AND status = 'pending'`,
		string(status), completedAt.UTC().Unix(), jobID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelJob marks a pending job cancelled. Terminal jobs are left alone.
func (r *SQLiteRepo) CancelJob(ctx context.Context, jobID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET status = 'cancelled', completed_at = ?
		WHERE job_id = ? AND status = 'pending'`,
		time.Now().UTC().Unix(), jobID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListJobs returns all jobs, most recently created first.
func (r *SQLiteRepo) ListJobs(ctx context.Context) ([]domain.ScheduledJob, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs ORDER BY created_at DESC`)
}

// PendingJobs returns jobs still awaiting their fire time, soonest first.
func (r *SQLiteRepo) PendingJobs(ctx context.Context) ([]domain.ScheduledJob, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE status = 'pending' ORDER BY fire_at ASC`)
}

func (r *SQLiteRepo) queryJobs(ctx context.Context, query string) ([]domain.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *job)
	}
	return res, rows.Err()
}

// PurgeFinishedJobs deletes completed, failed and cancelled jobs.
func (r *SQLiteRepo) PurgeFinishedJobs(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scheduled_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
