package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrActiveAssignmentExists is returned when a second active assignment
// would be created for a job
var ErrActiveAssignmentExists = domain.ErrActiveAssignmentExists

const uniqueViolation = "23505"

// Postgres is the PostgreSQL Store. Inside WithinTx every query runs on the
// transaction.
type Postgres struct {
	client *postgresql.Client
	q      sqlx.ExtContext
	inTx   bool
	logger *slog.Logger
}

var _ booking.Store = (*Postgres)(nil)

// NewPostgres creates a Postgres store
func NewPostgres(client *postgresql.Client, logger *slog.Logger) *Postgres {
	return &Postgres{
		client: client,
		q:      client.GetDB(),
		logger: logger,
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. Nested calls reuse the
// outer transaction.
func (s *Postgres) WithinTx(ctx context.Context, fn func(tx booking.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&Postgres{client: s.client, q: tx, inTx: true, logger: s.logger})
	})
}

func (s *Postgres) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	return s.getJob(ctx, id, "")
}

func (s *Postgres) GetJobForUpdate(ctx context.Context, id int64) (*domain.Job, error) {
	return s.getJob(ctx, id, " FOR UPDATE")
}

func (s *Postgres) getJob(ctx context.Context, id int64, lock string) (*domain.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE id = $1` + lock

	var row jobRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Postgres) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			user_id, status, due, immediate, from_language_id, duration,
			gender, certified, job_type, customer_phone_type, customer_physical_type,
			town, session_time_seconds, admin_comments, reference, user_email,
			created_at, will_expire_at, withdraw_at, end_at, expiry_notified, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, NOW()
		)
		RETURNING id
	`

	err := s.q.QueryRowxContext(
		ctx,
		query,
		job.UserID,
		job.Status,
		job.Due,
		job.Immediate,
		job.FromLanguageID,
		job.Duration,
		job.Gender,
		job.Certified,
		job.JobType,
		job.CustomerPhoneType,
		job.CustomerPhysicalType,
		job.Town,
		int64(job.SessionTime/time.Second),
		job.AdminComments,
		job.Reference,
		job.UserEmail,
		job.CreatedAt,
		job.WillExpireAt,
		timePtrNull(job.WithdrawAt),
		timePtrNull(job.EndAt),
		job.ExpiryNotified,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs SET
			status = $1, due = $2, from_language_id = $3, session_time_seconds = $4,
			admin_comments = $5, reference = $6, created_at = $7, will_expire_at = $8,
			withdraw_at = $9, end_at = $10, expiry_notified = $11, updated_at = NOW()
		WHERE id = $12
	`

	res, err := s.q.ExecContext(
		ctx,
		query,
		job.Status,
		job.Due,
		job.FromLanguageID,
		int64(job.SessionTime/time.Second),
		job.AdminComments,
		job.Reference,
		job.CreatedAt,
		job.WillExpireAt,
		timePtrNull(job.WithdrawAt),
		timePtrNull(job.EndAt),
		job.ExpiryNotified,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateJobStatusIf is the compare-and-set accept relies on
func (s *Postgres) UpdateJobStatusIf(ctx context.Context, id int64, from, to domain.JobStatus) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		  AND status = $3
	`

	res, err := s.q.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Postgres) ListPendingJobs(ctx context.Context) ([]domain.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY id`
	return s.selectJobs(ctx, query, domain.StatusPending)
}

func (s *Postgres) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM jobs
		WHERE status = $1
		  AND expiry_notified = FALSE
		  AND will_expire_at <= $2
		ORDER BY id
		FOR UPDATE SKIP LOCKED`
	return s.selectJobs(ctx, query, domain.StatusPending, now)
}

func (s *Postgres) selectJobs(ctx context.Context, query string, args ...interface{}) ([]domain.Job, error) {
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *rows[i].toDomain())
	}
	return jobs, nil
}

func (s *Postgres) ActiveAssignment(ctx context.Context, jobID int64) (*domain.Assignment, error) {
	query := `
		SELECT id, job_id, translator_id, created_at, cancel_at, completed_at, completed_by
		FROM translator_assignments
		WHERE job_id = $1
		  AND cancel_at IS NULL
		  AND completed_at IS NULL
	`

	var row assignmentRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active assignment: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Postgres) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	query := `
		INSERT INTO translator_assignments (
			job_id, translator_id, created_at, cancel_at, completed_at, completed_by
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var completedBy sql.NullInt64
	if a.CompletedBy != nil {
		completedBy = sql.NullInt64{Int64: *a.CompletedBy, Valid: true}
	}

	err := s.q.QueryRowxContext(
		ctx,
		query,
		a.JobID,
		a.TranslatorID,
		a.CreatedAt,
		timePtrNull(a.CancelAt),
		timePtrNull(a.CompletedAt),
		completedBy,
	).Scan(&a.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrActiveAssignmentExists
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (s *Postgres) CancelAssignment(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE translator_assignments
		SET cancel_at = $1
		WHERE id = $2
		  AND cancel_at IS NULL
		  AND completed_at IS NULL
	`
	return s.execAffected(ctx, "cancel assignment", query, at, id)
}

func (s *Postgres) CompleteAssignment(ctx context.Context, id int64, by int64, at time.Time) (bool, error) {
	query := `
		UPDATE translator_assignments
		SET completed_at = $1, completed_by = $2
		WHERE id = $3
		  AND cancel_at IS NULL
		  AND completed_at IS NULL
	`
	return s.execAffected(ctx, "complete assignment", query, at, by, id)
}

func (s *Postgres) execAffected(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Postgres) TranslatorBusyAt(ctx context.Context, translatorID int64, due time.Time, excludeJobID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM translator_assignments a
			JOIN jobs j ON j.id = a.job_id
			WHERE a.translator_id = $1
			  AND a.cancel_at IS NULL
			  AND a.completed_at IS NULL
			  AND j.due = $2
			  AND j.id <> $3
		)
	`

	var busy bool
	if err := sqlx.GetContext(ctx, s.q, &busy, query, translatorID, due, excludeJobID); err != nil {
		return false, fmt.Errorf("failed to check translator schedule: %w", err)
	}
	return busy, nil
}

func (s *Postgres) CreateReopenMarker(ctx context.Context, m *domain.ReopenMarker) error {
	query := `
		INSERT INTO reopen_markers (job_id, reopened_from_job_id, reopened_by, reopened_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.q.ExecContext(ctx, query, m.JobID, m.ReopenedFromJobID, m.ReopenedBy, m.ReopenedAt); err != nil {
		return fmt.Errorf("failed to create reopen marker: %w", err)
	}
	return nil
}

func (s *Postgres) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	query := `
		INSERT INTO audit_log (actor_id, job_id, changes, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.q.QueryRowxContext(ctx, query, e.ActorID, e.JobID, changes, e.CreatedAt).Scan(&e.ID); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

const translatorSelect = `
	SELECT
		u.id, u.email, u.name, u.mobile, u.role_id, u.active, u.town,
		u.not_get_notification, u.not_get_nighttime,
		p.translator_type, p.translator_level, p.gender, p.not_get_emergency,
		COALESCE(array_agg(l.language_id ORDER BY l.language_id) FILTER (WHERE l.language_id IS NOT NULL), '{}') AS language_ids
	FROM users u
	JOIN translator_profiles p ON p.user_id = u.id
	LEFT JOIN translator_languages l ON l.user_id = u.id`

const translatorGroupBy = `
	GROUP BY u.id, p.user_id`

func (s *Postgres) GetTranslator(ctx context.Context, id int64) (*domain.Translator, error) {
	return s.getTranslator(ctx, `WHERE u.id = $1`, id)
}

func (s *Postgres) GetTranslatorByEmail(ctx context.Context, email string) (*domain.Translator, error) {
	return s.getTranslator(ctx, `WHERE LOWER(u.email) = LOWER($1)`, email)
}

func (s *Postgres) getTranslator(ctx context.Context, where string, arg interface{}) (*domain.Translator, error) {
	query := translatorSelect + "\n\t" + where + translatorGroupBy

	var row translatorRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTranslatorNotFound
		}
		return nil, fmt.Errorf("failed to get translator: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Postgres) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	query := `
		SELECT
			u.id, u.email, u.name, u.town, u.not_get_notification, u.not_get_nighttime,
			c.consumer_type, c.customer_type
		FROM users u
		JOIN customer_profiles c ON c.user_id = u.id
		WHERE u.id = $1
	`

	var row customerRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Postgres) Blacklist(ctx context.Context, customerID int64) (eligibility.Blacklist, error) {
	query := `SELECT translator_id FROM user_blacklist WHERE customer_id = $1`

	var ids []int64
	if err := sqlx.SelectContext(ctx, s.q, &ids, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to get blacklist: %w", err)
	}
	return eligibility.NewBlacklist(ids...), nil
}

// Roster loads the translator pool for q. Opt-outs, town and blacklist are
// left to the eligibility filter.
func (s *Postgres) Roster(ctx context.Context, q eligibility.PoolQuery) ([]domain.Translator, error) {
	conditions := []string{
		"u.role_id = $1",
		"u.active = TRUE",
		"p.translator_type = $2",
		"EXISTS (SELECT 1 FROM translator_languages tl WHERE tl.user_id = u.id AND tl.language_id = $3)",
		"p.translator_level = ANY($4)",
	}
	args := []interface{}{q.RoleID, q.TranslatorType, q.LanguageID, pq.Array(q.LevelStrings())}
	argIdx := 5

	if q.Gender != domain.GenderAny {
		conditions = append(conditions, fmt.Sprintf("p.gender = $%d", argIdx))
		args = append(args, q.Gender)
		argIdx++
	}
	if len(q.ExcludeIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("u.id <> ALL($%d)", argIdx))
		args = append(args, pq.Array(q.ExcludeIDs))
	}

	query := translatorSelect + "\n\tWHERE " + strings.Join(conditions, "\n\t  AND ") + translatorGroupBy + "\n\tORDER BY u.id"

	var rows []translatorRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load translator roster: %w", err)
	}

	out := make([]domain.Translator, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}
