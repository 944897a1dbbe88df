package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
)

// TranslatorRef addresses a translator by id or, when Email is set, by email
type TranslatorRef struct {
	ID    int64
	Email string
}

// IsZero reports whether no translator was named
func (r TranslatorRef) IsZero() bool {
	return r.ID == 0 && strings.TrimSpace(r.Email) == ""
}

// ReassignResult reports what Reassign did
type ReassignResult struct {
	Changed         bool
	OldTranslatorID int64
	NewTranslatorID int64
}

// Assignments owns the single-active-assignment rule. Every method works on
// the Store it is given so callers control the transaction.
type Assignments struct {
	clock clock.Clock
}

// NewAssignments creates an Assignments
func NewAssignments(clk clock.Clock) *Assignments {
	return &Assignments{clock: clk}
}

// Active returns the job's active assignment or nil
func (a *Assignments) Active(ctx context.Context, s Store, jobID int64) (*domain.Assignment, error) {
	asg, err := s.ActiveAssignment(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active assignment: %w", err)
	}
	return asg, nil
}

// Reassign points the job at the referenced translator. The current holder
// is cancelled and a fresh row created. Naming nobody, or the current
// holder, is a no-op.
func (a *Assignments) Reassign(ctx context.Context, s Store, jobID int64, ref TranslatorRef) (ReassignResult, error) {
	if ref.IsZero() {
		return ReassignResult{}, nil
	}

	translatorID, err := a.resolve(ctx, s, ref)
	if err != nil {
		return ReassignResult{}, err
	}

	active, err := a.Active(ctx, s, jobID)
	if err != nil {
		return ReassignResult{}, err
	}

	result := ReassignResult{NewTranslatorID: translatorID}
	now := a.clock.Now()

	if active != nil {
		if active.TranslatorID == translatorID {
			return ReassignResult{}, nil
		}
		result.OldTranslatorID = active.TranslatorID
		if _, err := s.CancelAssignment(ctx, active.ID, now); err != nil {
			return ReassignResult{}, fmt.Errorf("failed to cancel current assignment: %w", err)
		}
	}

	if err := s.CreateAssignment(ctx, &domain.Assignment{
		JobID:        jobID,
		TranslatorID: translatorID,
		CreatedAt:    now,
	}); err != nil {
		return ReassignResult{}, fmt.Errorf("failed to create assignment: %w", err)
	}

	result.Changed = true
	return result, nil
}

func (a *Assignments) resolve(ctx context.Context, s Store, ref TranslatorRef) (int64, error) {
	if email := strings.TrimSpace(ref.Email); email != "" {
		t, err := s.GetTranslatorByEmail(ctx, email)
		if err != nil {
			return 0, err
		}
		return t.ID, nil
	}

	t, err := s.GetTranslator(ctx, ref.ID)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// Accept flips a pending job to assigned and records the translator in the
// same unit of work. The loser of a concurrent accept gets ErrBookingTaken.
func (a *Assignments) Accept(ctx context.Context, s Store, job *domain.Job, translatorID int64) (*domain.Assignment, error) {
	busy, err := s.TranslatorBusyAt(ctx, translatorID, job.Due, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check translator schedule: %w", err)
	}
	if busy {
		return nil, domain.NewConflictError("you already have a booking at that time")
	}

	ok, err := s.UpdateJobStatusIf(ctx, job.ID, domain.StatusPending, domain.StatusAssigned)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if !ok {
		return nil, domain.ErrBookingTaken
	}

	asg := &domain.Assignment{
		JobID:        job.ID,
		TranslatorID: translatorID,
		CreatedAt:    a.clock.Now(),
	}
	if err := s.CreateAssignment(ctx, asg); err != nil {
		if errors.Is(err, domain.ErrActiveAssignmentExists) {
			return nil, domain.ErrBookingTaken
		}
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	return asg, nil
}

// Cancel stamps cancel_at. Already stamped assignments are left alone.
func (a *Assignments) Cancel(ctx context.Context, s Store, asg *domain.Assignment) error {
	if asg == nil || !asg.Active() {
		return nil
	}
	now := a.clock.Now()
	changed, err := s.CancelAssignment(ctx, asg.ID, now)
	if err != nil {
		return fmt.Errorf("failed to cancel assignment: %w", err)
	}
	if changed {
		asg.CancelAt = &now
	}
	return nil
}

// Complete stamps completed_at and completed_by. Idempotent like Cancel.
func (a *Assignments) Complete(ctx context.Context, s Store, asg *domain.Assignment, by int64) error {
	if asg == nil || !asg.Active() {
		return nil
	}
	now := a.clock.Now()
	changed, err := s.CompleteAssignment(ctx, asg.ID, by, now)
	if err != nil {
		return fmt.Errorf("failed to complete assignment: %w", err)
	}
	if changed {
		asg.CompletedAt = &now
		asg.CompletedBy = &by
	}
	return nil
}
