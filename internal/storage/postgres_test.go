package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/shared/logger"
	"github.com/cuongbtq/booking-dispatch/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewDiscard()
	client := postgresql.NewFromDB(sqlx.NewDb(db, "sqlmock"), log.Logger)
	return NewPostgres(client, log.Logger), mock
}

var jobRowColumns = []string{
	"id", "user_id", "status", "due", "immediate", "from_language_id", "duration",
	"gender", "certified", "job_type", "customer_phone_type", "customer_physical_type",
	"town", "session_time_seconds", "admin_comments", "reference", "user_email",
	"created_at", "will_expire_at", "withdraw_at", "end_at", "expiry_notified",
}

func TestPostgres_GetJob(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	due := now.Add(48 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			42, 7, "completed", due, false, 10, 60,
			"female", "yes", "paid", true, false,
			"Stockholm", 5400, "done", "ref", "c@example.com",
			now, now.Add(time.Hour), nil, due.Add(time.Hour), false,
		))

	job, err := store.GetJob(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, domain.GenderFemale, job.Gender)
	assert.Equal(t, 90*time.Minute, job.SessionTime)
	assert.Nil(t, job.WithdrawAt)
	require.NotNil(t, job.EndAt)
	assert.Equal(t, due.Add(time.Hour), *job.EndAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJobNotFound(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetJobForUpdate(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateJobStatusIf(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "row matched", affected: 1, want: true},
		{name: "status already moved", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
				WithArgs(domain.StatusAssigned, int64(5), domain.StatusPending).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := store.UpdateJobStatusIf(context.Background(), 5, domain.StatusPending, domain.StatusAssigned)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_CreateAssignmentUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO translator_assignments")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.CreateAssignment(context.Background(), &domain.Assignment{JobID: 1, TranslatorID: 2, CreatedAt: now})
	assert.ErrorIs(t, err, ErrActiveAssignmentExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ActiveAssignmentNone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM translator_assignments")).
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)

	asg, err := store.ActiveAssignment(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, asg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CancelAssignmentIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("SET cancel_at = $1")).
		WithArgs(now, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := store.CancelAssignment(context.Background(), 9, now)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithinTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx booking.Store) error {
			_, err := tx.UpdateJobStatusIf(context.Background(), 1, domain.StatusPending, domain.StatusAssigned)
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		store, mock := newMockStore(t)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithinTx(context.Background(), func(tx booking.Store) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_AppendAudit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_log")).
		WithArgs(int64(3), int64(8), []byte(`[{"kind":"new_job_created"}]`), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	entry := &domain.AuditEntry{
		ActorID:   3,
		JobID:     8,
		Changes:   []domain.ChangeDescriptor{{Kind: domain.ChangeNewJobCreated}},
		CreatedAt: now,
	}
	require.NoError(t, store.AppendAudit(context.Background(), entry))
	assert.Equal(t, int64(11), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Roster(t *testing.T) {
	store, mock := newMockStore(t)

	columns := []string{
		"id", "email", "name", "mobile", "role_id", "active", "town",
		"not_get_notification", "not_get_nighttime",
		"translator_type", "translator_level", "gender", "not_get_emergency", "language_ids",
	}
	mock.ExpectQuery(`p\.gender = \$5\s+AND u\.id <> ALL\(\$6\)`).
		WithArgs(int64(2), domain.TranslatorProfessional, int64(10), sqlmock.AnyArg(), domain.GenderFemale, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			1, "t@example.com", "Tess", "+46700000000", 2, true, "Stockholm",
			false, true,
			"professional", "Certified", "female", false, "{10,12}",
		))

	job := &domain.Job{JobType: domain.JobTypePaid, FromLanguageID: 10, Gender: domain.GenderFemale}
	roster, err := store.Roster(context.Background(), eligibility.New(2).PoolQuery(job, 4))
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, []int64{10, 12}, roster[0].LanguageIDs)
	assert.Equal(t, domain.LevelCertified, roster[0].Level)
	assert.True(t, roster[0].NotGetNighttime)
	require.NoError(t, mock.ExpectationsWereMet())
}
