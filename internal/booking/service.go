package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
)

// Config holds the collaborators of a Service
type Config struct {
	Store    Store
	Clock    clock.Clock
	Expiry   schedule.ExpiryPolicy
	Filter   *eligibility.Filter
	Notifier Notifier
	Recorder Recorder
	Logger   *slog.Logger

	// ImmediateLeadTime is how far ahead an immediate booking is due
	ImmediateLeadTime time.Duration
	// CancellationWindow separates early from late cancellations
	CancellationWindow time.Duration
}

// Service runs booking operations. State changes commit in one transaction
// and the resulting changes are handed to the Notifier afterwards.
type Service struct {
	store       Store
	clock       clock.Clock
	expiry      schedule.ExpiryPolicy
	filter      *eligibility.Filter
	notifier    Notifier
	recorder    Recorder
	logger      *slog.Logger
	machine     *StateMachine
	assignments *Assignments

	immediateLead time.Duration
	window        time.Duration
}

// NewService creates a Service
func NewService(cfg Config) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	expiry := cfg.Expiry
	if expiry == nil {
		expiry = schedule.DefaultExpiry()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lead := cfg.ImmediateLeadTime
	if lead == 0 {
		lead = 5 * time.Minute
	}
	window := cfg.CancellationWindow
	if window == 0 {
		window = 24 * time.Hour
	}

	return &Service{
		store:         cfg.Store,
		clock:         clk,
		expiry:        expiry,
		filter:        cfg.Filter,
		notifier:      cfg.Notifier,
		recorder:      recorder,
		logger:        logger,
		machine:       NewStateMachine(clk, expiry),
		assignments:   NewAssignments(clk),
		immediateLead: lead,
		window:        window,
	}
}

// notify hands committed changes to the notifier. Failures are logged only.
func (s *Service) notify(ctx context.Context, actor domain.Actor, job *domain.Job, changes []domain.ChangeDescriptor) {
	if s.notifier == nil || len(changes) == 0 {
		return
	}

	event := domain.NewEvent(actor.ID, job, changes, s.clock.Now())
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Error("Failed to hand off notification event",
			slog.Int64("job_id", job.ID),
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Service) audit(ctx context.Context, tx Store, actor domain.Actor, jobID int64, changes []domain.ChangeDescriptor) error {
	if changes == nil {
		changes = []domain.ChangeDescriptor{}
	}
	entry := &domain.AuditEntry{
		ActorID:   actor.ID,
		JobID:     jobID,
		Changes:   changes,
		CreatedAt: s.clock.Now(),
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// CreateJobInput is a customer's booking request
type CreateJobInput struct {
	Immediate            bool
	Due                  *time.Time
	FromLanguageID       int64
	Duration             int
	Gender               domain.Gender
	Certified            domain.Certification
	CustomerPhoneType    bool
	CustomerPhysicalType bool
	Town                 string
	Reference            string
	UserEmail            string
}

// CreateJob validates and stores a new pending booking and announces it
func (s *Service) CreateJob(ctx context.Context, actor domain.Actor, in CreateJobInput) (*domain.Job, error) {
	if !in.Immediate && in.Due == nil {
		return nil, domain.NewValidationError("due_date", "due date is required for scheduled bookings")
	}
	if in.FromLanguageID <= 0 {
		return nil, domain.NewValidationError("from_language_id", "language is required")
	}
	if in.Duration <= 0 {
		return nil, domain.NewValidationError("duration", "duration is required")
	}

	now := s.clock.Now()
	due := now.Add(s.immediateLead)
	if !in.Immediate {
		due = *in.Due
	}

	job := &domain.Job{
		UserID:               actor.ID,
		Status:               domain.StatusPending,
		Due:                  due,
		Immediate:            in.Immediate,
		FromLanguageID:       in.FromLanguageID,
		Duration:             in.Duration,
		Gender:               in.Gender,
		Certified:            in.Certified,
		CustomerPhoneType:    in.CustomerPhoneType,
		CustomerPhysicalType: in.CustomerPhysicalType,
		Town:                 strings.TrimSpace(in.Town),
		Reference:            in.Reference,
		UserEmail:            strings.TrimSpace(in.UserEmail),
		CreatedAt:            now,
		WillExpireAt:         s.expiry.WillExpireAt(due, now),
	}
	changes := []domain.ChangeDescriptor{{Kind: domain.ChangeNewJobCreated}}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		customer, err := tx.GetCustomer(ctx, actor.ID)
		if err != nil {
			return err
		}
		job.JobType = customer.ConsumerType.JobType()
		if job.Town == "" {
			job.Town = customer.Town
		}

		if err := tx.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return s.audit(ctx, tx, actor, job.ID, changes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking created",
		slog.Int64("job_id", job.ID),
		slog.Int64("customer_id", actor.ID),
		slog.Bool("immediate", job.Immediate),
		slog.String("job_type", string(job.JobType)),
	)

	s.notify(ctx, actor, job, changes)
	return job, nil
}

// Accept assigns a pending job to the calling translator
func (s *Service) Accept(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	var job *domain.Job
	var changes []domain.ChangeDescriptor

	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		job, err = tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if _, err := tx.GetTranslator(ctx, actor.ID); err != nil {
			return err
		}
		if job.Status != domain.StatusPending {
			return domain.ErrBookingTaken
		}

		if _, err := s.assignments.Accept(ctx, tx, job, actor.ID); err != nil {
			return err
		}

		job.Status = domain.StatusAssigned
		changes = []domain.ChangeDescriptor{{
			Kind:            domain.ChangeJobAccepted,
			OldStatus:       domain.StatusPending,
			NewStatus:       domain.StatusAssigned,
			NewTranslatorID: actor.ID,
		}}
		return s.audit(ctx, tx, actor, job.ID, changes)
	})
	if err != nil {
		if errors.Is(err, domain.ErrBookingTaken) {
			s.recorder.AcceptConflict()
			s.logger.Info("Accept lost to another translator",
				slog.Int64("job_id", jobID),
				slog.Int64("translator_id", actor.ID),
			)
		}
		return nil, err
	}

	s.recorder.TransitionApplied(domain.StatusPending, domain.StatusAssigned)
	s.logger.Info("Booking accepted",
		slog.Int64("job_id", job.ID),
		slog.Int64("translator_id", actor.ID),
	)

	s.notify(ctx, actor, job, changes)
	return job, nil
}

// UpdateJobInput carries an administrative field update. Nil pointers leave
// the field as it is.
type UpdateJobInput struct {
	Due            *time.Time
	FromLanguageID *int64
	AdminComments  *string
	Reference      *string
	Translator     TranslatorRef
	Status         *domain.JobStatus
	SessionTime    *time.Duration
}

// UpdateResult reports the outcome of UpdateJob
type UpdateResult struct {
	Job     *domain.Job               `json:"job"`
	Changes []domain.ChangeDescriptor `json:"changes"`
	// StatusApplied is false when a requested status change was refused;
	// the other field updates still committed
	StatusApplied bool   `json:"status_applied"`
	StatusReason  string `json:"status_reason,omitempty"`
	Notified      bool   `json:"notified"`
}

// UpdateJob applies translator, due, language and status deltas in one
// transaction with one audit entry. Naming a translator on an open booking
// assigns it. Field changes are not announced once the due time passed,
// status transitions always are.
func (s *Service) UpdateJob(ctx context.Context, actor domain.Actor, jobID int64, in UpdateJobInput) (*UpdateResult, error) {
	result := &UpdateResult{}
	var transitions []domain.ChangeDescriptor

	err := s.store.WithinTx(ctx, func(tx Store) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		next := job.Clone()
		transitions = nil
		var changes []domain.ChangeDescriptor

		if in.Due != nil && !in.Due.Equal(job.Due) {
			if job.Status == domain.StatusStarted {
				return domain.NewValidationError("due", "due cannot change once the session has started")
			}
			next.Due = *in.Due
			changes = append(changes, domain.DateChanged(job.Due, *in.Due))
		}

		reassigned, err := s.assignments.Reassign(ctx, tx, job.ID, in.Translator)
		if err != nil {
			return err
		}
		if reassigned.Changed {
			changes = append(changes, domain.TranslatorChanged(reassigned.OldTranslatorID, reassigned.NewTranslatorID))
		}

		if in.FromLanguageID != nil && *in.FromLanguageID != job.FromLanguageID {
			if *in.FromLanguageID <= 0 {
				return domain.NewValidationError("from_language_id", "language is required")
			}
			next.FromLanguageID = *in.FromLanguageID
			changes = append(changes, domain.LanguageChanged(job.FromLanguageID, *in.FromLanguageID))
		}
		if in.AdminComments != nil {
			next.AdminComments = *in.AdminComments
		}
		if in.Reference != nil {
			next.Reference = *in.Reference
		}

		target := in.Status
		if target == nil && reassigned.Changed && (job.Status == domain.StatusPending || job.Status == domain.StatusTimedOut) {
			// a holder on an open booking means it is assigned
			assigned := domain.StatusAssigned
			target = &assigned
		}

		if target != nil && *target != job.Status {
			req := TransitionRequest{
				Target:            *target,
				TranslatorChanged: reassigned.Changed,
				SessionTime:       in.SessionTime,
			}
			if in.AdminComments != nil {
				req.AdminComment = *in.AdminComments
			}

			res := s.machine.Apply(next, req)
			if res.Applied {
				next = res.Job
				result.StatusApplied = true
				released, err := s.release(ctx, tx, actor, next)
				if err != nil {
					return err
				}
				transitions = append(append(transitions, res.Changes...), released...)
				changes = append(changes, transitions...)
				s.recorder.TransitionApplied(job.Status, next.Status)
			} else {
				result.StatusReason = res.Reason
				s.recorder.TransitionRejected(*target)
			}
		}

		if err := tx.UpdateJob(ctx, next); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		if err := s.audit(ctx, tx, actor, job.ID, changes); err != nil {
			return err
		}

		result.Job = next
		result.Changes = changes
		return nil
	})
	if err != nil {
		return nil, err
	}

	notice := transitions
	if result.Job.Due.After(s.clock.Now()) {
		notice = result.Changes
	}
	if len(notice) > 0 {
		s.notify(ctx, actor, result.Job, notice)
		result.Notified = true
	}

	s.logger.Info("Booking updated",
		slog.Int64("job_id", jobID),
		slog.Int("changes", len(result.Changes)),
		slog.Bool("notified", result.Notified),
	)
	return result, nil
}

// release settles the active assignment after a transition. Completion
// stamps the actor as completer, every other closing status cancels it. A
// withdrawal tells the released translator and a completion reports the
// session.
func (s *Service) release(ctx context.Context, tx Store, actor domain.Actor, job *domain.Job) ([]domain.ChangeDescriptor, error) {
	switch job.Status {
	case domain.StatusPending,
		domain.StatusWithdrawBefore24,
		domain.StatusWithdrawAfter24,
		domain.StatusTimedOut,
		domain.StatusCompleted,
		domain.StatusNotCarriedOutCustomer:
	default:
		return nil, nil
	}

	active, err := s.assignments.Active(ctx, tx, job.ID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}

	switch job.Status {
	case domain.StatusCompleted:
		if err := s.assignments.Complete(ctx, tx, active, actor.ID); err != nil {
			return nil, err
		}
		return []domain.ChangeDescriptor{{
			Kind:         domain.ChangeSessionEnded,
			SessionTime:  job.SessionTime,
			TranslatorID: active.TranslatorID,
		}}, nil
	case domain.StatusNotCarriedOutCustomer:
		return nil, s.assignments.Complete(ctx, tx, active, actor.ID)
	}

	if err := s.assignments.Cancel(ctx, tx, active); err != nil {
		return nil, err
	}
	if job.Status == domain.StatusWithdrawBefore24 || job.Status == domain.StatusWithdrawAfter24 {
		return []domain.ChangeDescriptor{{Kind: domain.ChangeJobCancelled, TranslatorID: active.TranslatorID}}, nil
	}
	return nil, nil
}

// ChangeStatus applies a bare status transition. A refused transition
// leaves the job row untouched and returns Applied=false.
func (s *Service) ChangeStatus(ctx context.Context, actor domain.Actor, jobID int64, req TransitionRequest) (TransitionResult, error) {
	var res TransitionResult

	err := s.store.WithinTx(ctx, func(tx Store) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		res = s.machine.Apply(job, req)
		if !res.Applied {
			return nil
		}

		released, err := s.release(ctx, tx, actor, res.Job)
		if err != nil {
			return err
		}
		res.Changes = append(res.Changes, released...)
		if err := tx.UpdateJob(ctx, res.Job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return s.audit(ctx, tx, actor, job.ID, res.Changes)
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if !res.Applied {
		s.recorder.TransitionRejected(req.Target)
		s.logger.Info("Status change refused",
			slog.Int64("job_id", jobID),
			slog.String("target", string(req.Target)),
			slog.String("reason", res.Reason),
		)
		return res, nil
	}

	from := res.Changes[0].OldStatus
	s.recorder.TransitionApplied(from, res.Job.Status)
	s.logger.Info("Status changed",
		slog.Int64("job_id", jobID),
		slog.String("from", string(from)),
		slog.String("to", string(res.Job.Status)),
	)

	s.notify(ctx, actor, res.Job, res.Changes)
	return res, nil
}

// EndSession completes a started booking. The session time is the time
// elapsed since due. Only the owning customer, the holder or an admin may
// end it.
func (s *Service) EndSession(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
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
		if !actor.IsAdmin() && job.UserID != actor.ID && !holds(active, actor) {
			return domain.ErrJobNotFound
		}
		if job.Status != domain.StatusStarted {
			return domain.NewConflictError("only a started booking can be ended")
		}
		if active == nil {
			return domain.ErrNoActiveAssignment
		}

		now := s.clock.Now()
		session := now.Sub(job.Due)
		if session < 0 {
			session = 0
		}
		session = session.Truncate(time.Second)

		job.Status = domain.StatusCompleted
		job.EndAt = &now
		job.SessionTime = session

		if err := s.assignments.Complete(ctx, tx, active, actor.ID); err != nil {
			return err
		}
		if err := tx.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		changes = []domain.ChangeDescriptor{
			domain.StatusChanged(domain.StatusStarted, domain.StatusCompleted),
			{Kind: domain.ChangeSessionEnded, SessionTime: session, TranslatorID: active.TranslatorID},
		}
		return s.audit(ctx, tx, actor, job.ID, changes)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.TransitionApplied(domain.StatusStarted, domain.StatusCompleted)
	s.logger.Info("Session ended",
		slog.Int64("job_id", job.ID),
		slog.Duration("session_time", job.SessionTime),
	)

	s.notify(ctx, actor, job, changes)
	return job, nil
}

func holds(asg *domain.Assignment, actor domain.Actor) bool {
	return asg != nil && asg.TranslatorID == actor.ID && actor.Role == domain.RoleTranslator
}

// CustomerNotCall records that the customer never showed up. The assignment
// is completed on behalf of its translator. Only the holder or an admin may
// mark it.
func (s *Service) CustomerNotCall(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	var job *domain.Job
	var from domain.JobStatus
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
		if !actor.IsAdmin() && !holds(active, actor) {
			return domain.ErrJobNotFound
		}

		from = job.Status
		if from != domain.StatusAssigned && from != domain.StatusStarted {
			return domain.NewConflictError("booking has no session to mark as not carried out")
		}
		if active == nil {
			return domain.ErrNoActiveAssignment
		}

		now := s.clock.Now()
		job.Status = domain.StatusNotCarriedOutCustomer
		job.EndAt = &now

		if err := s.assignments.Complete(ctx, tx, active, active.TranslatorID); err != nil {
			return err
		}
		if err := tx.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		changes = []domain.ChangeDescriptor{domain.StatusChanged(from, domain.StatusNotCarriedOutCustomer)}
		return s.audit(ctx, tx, actor, job.ID, changes)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.TransitionApplied(from, domain.StatusNotCarriedOutCustomer)
	s.notify(ctx, actor, job, changes)
	return job, nil
}

// ReopenComment is the admin comment stamped on a clone of a timed out booking
func ReopenComment(sourceID int64) string {
	return fmt.Sprintf("This booking is a reopening of booking #%d", sourceID)
}

// Reopen puts a booking back on offer. A timed out booking is cloned into a
// new pending booking, any other one is reset in place. Active assignments
// are cancelled and a reopen marker is written.
func (s *Service) Reopen(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	var target *domain.Job
	var changes []domain.ChangeDescriptor

	err := s.store.WithinTx(ctx, func(tx Store) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status == domain.StatusPending {
			return domain.NewConflictError("booking is already open")
		}

		active, err := s.assignments.Active(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if err := s.assignments.Cancel(ctx, tx, active); err != nil {
			return err
		}

		now := s.clock.Now()
		target = job.Clone()
		target.Status = domain.StatusPending
		s.machine.reopenInPlace(target, now)

		if job.Status == domain.StatusTimedOut {
			target.ID = 0
			target.AdminComments = ReopenComment(job.ID)
			if err := tx.CreateJob(ctx, target); err != nil {
				return fmt.Errorf("failed to create reopened job: %w", err)
			}
		} else if err := tx.UpdateJob(ctx, target); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		if err := tx.CreateReopenMarker(ctx, &domain.ReopenMarker{
			JobID:             target.ID,
			ReopenedFromJobID: job.ID,
			ReopenedBy:        actor.ID,
			ReopenedAt:        now,
		}); err != nil {
			return fmt.Errorf("failed to record reopen: %w", err)
		}

		changes = []domain.ChangeDescriptor{{
			Kind:      domain.ChangeStatusChangedToPending,
			OldStatus: job.Status,
			NewStatus: domain.StatusPending,
		}}
		return s.audit(ctx, tx, actor, target.ID, changes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking reopened",
		slog.Int64("job_id", target.ID),
		slog.Int64("source_job_id", jobID),
	)

	s.notify(ctx, actor, target, changes)
	return target, nil
}

// ResendNotifications announces the booking to its eligible pool again
func (s *Service) ResendNotifications(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	return s.resend(ctx, actor, jobID, domain.ChangeDescriptor{Kind: domain.ChangeNewJobCreated})
}

// ResendSMS texts the booking to its eligible pool
func (s *Service) ResendSMS(ctx context.Context, actor domain.Actor, jobID int64) (*domain.Job, error) {
	return s.resend(ctx, actor, jobID, domain.ChangeDescriptor{Kind: domain.ChangeSMSRequested})
}

func (s *Service) resend(ctx context.Context, actor domain.Actor, jobID int64, change domain.ChangeDescriptor) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusPending {
		return nil, domain.NewConflictError("only pending bookings can be announced")
	}

	s.notify(ctx, actor, job, []domain.ChangeDescriptor{change})
	return job, nil
}

// NotifyExpired flags pending bookings whose offer window passed and emits
// one job_expired change per booking. It returns how many were flagged.
func (s *Service) NotifyExpired(ctx context.Context) (int, error) {
	var expired []domain.Job
	changes := []domain.ChangeDescriptor{{Kind: domain.ChangeJobExpired}}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		expired, err = tx.ListExpiredPending(ctx, s.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to list expired jobs: %w", err)
		}

		for i := range expired {
			expired[i].ExpiryNotified = true
			if err := tx.UpdateJob(ctx, &expired[i]); err != nil {
				return fmt.Errorf("failed to flag expired job %d: %w", expired[i].ID, err)
			}
			if err := s.audit(ctx, tx, domain.SystemActor, expired[i].ID, changes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range expired {
		s.notify(ctx, domain.SystemActor, &expired[i], changes)
	}
	if len(expired) > 0 {
		s.logger.Info("Expired bookings flagged", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}

// PotentialJobs lists the pending bookings the translator could accept
func (s *Service) PotentialJobs(ctx context.Context, translatorID int64) ([]domain.Job, error) {
	translator, err := s.store.GetTranslator(ctx, translatorID)
	if err != nil {
		return nil, err
	}
	if s.filter != nil && (translator.RoleID != s.filter.TranslatorRoleID || !translator.Active) {
		return []domain.Job{}, nil
	}

	pending, err := s.store.ListPendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	blacklists := make(map[int64]eligibility.Blacklist)
	for _, job := range pending {
		if _, ok := blacklists[job.UserID]; ok {
			continue
		}
		bl, err := s.store.Blacklist(ctx, job.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load blacklist: %w", err)
		}
		blacklists[job.UserID] = bl
	}

	return eligibility.PotentialJobs(translator, pending, blacklists), nil
}
