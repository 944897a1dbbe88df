package booking

import (
	"context"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
)

// Store is the transactional persistence the booking core runs against.
// Methods called on the Store handed to WithinTx's callback take part in
// that transaction.
type Store interface {
	// WithinTx runs fn in one transaction. Any error from fn rolls back.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	GetJob(ctx context.Context, id int64) (*domain.Job, error)
	// GetJobForUpdate locks the job row until the transaction ends
	GetJobForUpdate(ctx context.Context, id int64) (*domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, job *domain.Job) error
	// UpdateJobStatusIf moves the job to `to` only if it is currently in
	// `from`. It reports whether the row matched.
	UpdateJobStatusIf(ctx context.Context, id int64, from, to domain.JobStatus) (bool, error)
	ListPendingJobs(ctx context.Context) ([]domain.Job, error)
	// ListExpiredPending returns pending jobs whose will_expire_at passed
	// and whose expiry notification has not gone out
	ListExpiredPending(ctx context.Context, now time.Time) ([]domain.Job, error)

	// ActiveAssignment returns nil, nil when the job has no active assignment
	ActiveAssignment(ctx context.Context, jobID int64) (*domain.Assignment, error)
	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	// CancelAssignment and CompleteAssignment only touch active rows and
	// report whether a row changed
	CancelAssignment(ctx context.Context, id int64, at time.Time) (bool, error)
	CompleteAssignment(ctx context.Context, id int64, by int64, at time.Time) (bool, error)
	// TranslatorBusyAt reports whether the translator holds an active
	// assignment on another job with the same due time
	TranslatorBusyAt(ctx context.Context, translatorID int64, due time.Time, excludeJobID int64) (bool, error)
	CreateReopenMarker(ctx context.Context, m *domain.ReopenMarker) error

	AppendAudit(ctx context.Context, e *domain.AuditEntry) error

	GetTranslator(ctx context.Context, id int64) (*domain.Translator, error)
	GetTranslatorByEmail(ctx context.Context, email string) (*domain.Translator, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	Blacklist(ctx context.Context, customerID int64) (eligibility.Blacklist, error)
	Roster(ctx context.Context, q eligibility.PoolQuery) ([]domain.Translator, error)
}

// Notifier receives committed changes. Delivery failures never undo state.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// Recorder counts lifecycle outcomes
type Recorder interface {
	TransitionApplied(from, to domain.JobStatus)
	TransitionRejected(target domain.JobStatus)
	AcceptConflict()
}

type nopRecorder struct{}

func (nopRecorder) TransitionApplied(from, to domain.JobStatus) {}
func (nopRecorder) TransitionRejected(target domain.JobStatus)  {}
func (nopRecorder) AcceptConflict()                             {}
