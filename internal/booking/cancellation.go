package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
)

// ClassifyWithdrawal picks the withdrawal status for a customer cancellation
// made at now
func ClassifyWithdrawal(due, now time.Time, window time.Duration) domain.JobStatus {
	if due.Sub(now) >= window {
		return domain.StatusWithdrawBefore24
	}
	return domain.StatusWithdrawAfter24
}

// Cancel routes a cancellation to the customer or translator flow by the
// caller's role. Admins cancel on the customer's behalf.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	if actor.Role == domain.RoleTranslator {
		return s.CancelByTranslator(ctx, actor, jobID)
	}
	return s.CancelByCustomer(ctx, actor, jobID)
}

// CancelByCustomer withdraws the booking. The active assignment, if any, is
// released and its translator told; no replacement is looked for.
func (s *Service) CancelByCustomer(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	var res TransitionResult
	var from, target domain.JobStatus

	err := s.store.WithinTx(ctx, func(tx Store) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && job.UserID != actor.ID {
			return domain.ErrJobNotFound
		}
		from = job.Status

		target = ClassifyWithdrawal(job.Due, s.clock.Now(), s.window)
		res = s.machine.Apply(job, TransitionRequest{Target: target})
		if !res.Applied {
			return domain.NewConflictError(fmt.Sprintf("booking cannot be cancelled: %s", res.Reason))
		}

		active, err := s.assignments.Active(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if active != nil {
			if err := s.assignments.Cancel(ctx, tx, active); err != nil {
				return err
			}
			res.Changes = append(res.Changes, domain.ChangeDescriptor{
				Kind:         domain.ChangeJobCancelled,
				TranslatorID: active.TranslatorID,
			})
		}

		if err := tx.UpdateJob(ctx, res.Job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return s.audit(ctx, tx, actor, job.ID, res.Changes)
	})
	if err != nil {
		if res.Reason != "" {
			s.recorder.TransitionRejected(target)
		}
		return nil, err
	}

	s.recorder.TransitionApplied(from, res.Job.Status)
	s.logger.Info("Booking cancelled by customer",
		slog.Int64("job_id", jobID),
		slog.String("status", string(res.Job.Status)),
	)

	s.notify(ctx, actor, res.Job, res.Changes)
	return res.Job, nil
}

// CancelByTranslator hands the booking back to the pool. It is refused
// inside the cancellation window, leaving everything untouched.
func (s *Service) CancelByTranslator(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	var job *domain.Job
	var changes []domain.ChangeDescriptor

	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		job, err = tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		active, err := s.assignments.Active(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if active == nil || active.TranslatorID != actor.ID || job.Status != domain.StatusAssigned {
			return domain.ErrNoActiveAssignment
		}

		now := s.clock.Now()
		if job.Due.Sub(now) <= s.window {
			return domain.NewConflictError(domain.TranslatorCancelRefusal)
		}

		if err := s.assignments.Cancel(ctx, tx, active); err != nil {
			return err
		}

		job.Status = domain.StatusPending
		s.machine.reopenInPlace(job, now)
		if err := tx.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		reopened := domain.StatusChanged(domain.StatusAssigned, domain.StatusPending)
		reopened.ExcludeTranslatorID = actor.ID
		changes = []domain.ChangeDescriptor{
			{Kind: domain.ChangeTranslatorCancelled, TranslatorID: actor.ID},
			reopened,
		}
		return s.audit(ctx, tx, actor, job.ID, changes)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.TransitionApplied(domain.StatusAssigned, domain.StatusPending)
	s.logger.Info("Booking cancelled by translator",
		slog.Int64("job_id", job.ID),
		slog.Int64("translator_id", actor.ID),
		slog.Time("will_expire_at", job.WillExpireAt),
	)

	s.notify(ctx, actor, job, changes)
	return job, nil
}
