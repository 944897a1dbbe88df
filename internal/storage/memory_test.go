package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestMemory_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := m.PutJob(domain.Job{Status: domain.StatusPending, Due: now.Add(time.Hour)})

	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(tx booking.Store) error {
		ok, err := tx.UpdateJobStatusIf(ctx, id, domain.StatusPending, domain.StatusAssigned)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.CreateAssignment(ctx, &domain.Assignment{JobID: id, TranslatorID: 7, CreatedAt: now}))
		require.NoError(t, tx.AppendAudit(ctx, &domain.AuditEntry{JobID: id}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	job, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Empty(t, m.Assignments(id))
	assert.Empty(t, m.AuditEntries(id))
}

func TestMemory_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := m.PutJob(domain.Job{Status: domain.StatusPending})

	err := m.WithinTx(ctx, func(tx booking.Store) error {
		// nested calls join the outer transaction
		return tx.WithinTx(ctx, func(inner booking.Store) error {
			_, err := inner.UpdateJobStatusIf(ctx, id, domain.StatusPending, domain.StatusAssigned)
			return err
		})
	})
	require.NoError(t, err)

	job, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, job.Status)
}

func TestMemory_UpdateJobStatusIf(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := m.PutJob(domain.Job{Status: domain.StatusAssigned})

	ok, err := m.UpdateJobStatusIf(ctx, id, domain.StatusPending, domain.StatusAssigned)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.UpdateJobStatusIf(ctx, 999, domain.StatusPending, domain.StatusAssigned)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_SingleActiveAssignment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := m.PutJob(domain.Job{Status: domain.StatusAssigned})

	first := &domain.Assignment{JobID: id, TranslatorID: 1, CreatedAt: now}
	require.NoError(t, m.CreateAssignment(ctx, first))

	err := m.CreateAssignment(ctx, &domain.Assignment{JobID: id, TranslatorID: 2, CreatedAt: now})
	require.ErrorIs(t, err, ErrActiveAssignmentExists)

	changed, err := m.CancelAssignment(ctx, first.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, m.CreateAssignment(ctx, &domain.Assignment{JobID: id, TranslatorID: 2, CreatedAt: now}))

	active, err := m.ActiveAssignment(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, int64(2), active.TranslatorID)
	assert.Len(t, m.Assignments(id), 2)
}

func TestMemory_StampsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	asg := &domain.Assignment{JobID: 1, TranslatorID: 1, CreatedAt: now}
	require.NoError(t, m.CreateAssignment(ctx, asg))

	changed, err := m.CompleteAssignment(ctx, asg.ID, 1, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.CompleteAssignment(ctx, asg.ID, 1, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.CancelAssignment(ctx, asg.ID, now)
	require.NoError(t, err)
	assert.False(t, changed)

	stored := m.Assignments(1)[0]
	assert.Equal(t, now, *stored.CompletedAt)
	assert.Nil(t, stored.CancelAt)
}

func TestMemory_ListExpiredPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	expired := m.PutJob(domain.Job{Status: domain.StatusPending, WillExpireAt: now.Add(-time.Minute)})
	m.PutJob(domain.Job{Status: domain.StatusPending, WillExpireAt: now.Add(time.Minute)})
	m.PutJob(domain.Job{Status: domain.StatusPending, WillExpireAt: now.Add(-time.Hour), ExpiryNotified: true})
	m.PutJob(domain.Job{Status: domain.StatusAssigned, WillExpireAt: now.Add(-time.Hour)})

	jobs, err := m.ListExpiredPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, expired, jobs[0].ID)
}

func TestMemory_TranslatorBusyAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	due := now.Add(48 * time.Hour)
	held := m.PutJob(domain.Job{Status: domain.StatusAssigned, Due: due})
	other := m.PutJob(domain.Job{Status: domain.StatusPending, Due: due})
	require.NoError(t, m.CreateAssignment(ctx, &domain.Assignment{JobID: held, TranslatorID: 5, CreatedAt: now}))

	busy, err := m.TranslatorBusyAt(ctx, 5, due, other)
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = m.TranslatorBusyAt(ctx, 5, due, held)
	require.NoError(t, err)
	assert.False(t, busy)

	busy, err = m.TranslatorBusyAt(ctx, 6, due, other)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestMemory_Roster(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := domain.Translator{
		RoleID:      2,
		Active:      true,
		Type:        domain.TranslatorProfessional,
		Level:       domain.LevelCertified,
		Gender:      domain.GenderFemale,
		LanguageIDs: []int64{10},
	}

	match := base
	match.ID, match.Email = 1, "match@example.com"
	m.AddTranslator(match)

	volunteer := base
	volunteer.ID, volunteer.Type = 2, domain.TranslatorVolunteer
	m.AddTranslator(volunteer)

	male := base
	male.ID, male.Gender = 3, domain.GenderMale
	m.AddTranslator(male)

	excluded := base
	excluded.ID = 4
	m.AddTranslator(excluded)

	otherLanguage := base
	otherLanguage.ID, otherLanguage.LanguageIDs = 5, []int64{11}
	m.AddTranslator(otherLanguage)

	job := &domain.Job{JobType: domain.JobTypePaid, FromLanguageID: 10, Gender: domain.GenderFemale, Certified: domain.CertificationYes}
	q := eligibility.New(2).PoolQuery(job, 4)

	roster, err := m.Roster(ctx, q)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, int64(1), roster[0].ID)

	byEmail, err := m.GetTranslatorByEmail(ctx, "MATCH@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byEmail.ID)

	_, err = m.GetTranslator(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrTranslatorNotFound)
}

func TestMemory_Blacklist(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.BlockTranslator(1, 7)

	bl, err := m.Blacklist(ctx, 1)
	require.NoError(t, err)
	assert.True(t, bl.Contains(7))

	bl, err = m.Blacklist(ctx, 2)
	require.NoError(t, err)
	assert.False(t, bl.Contains(7))
}
