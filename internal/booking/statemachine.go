package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
)

// Rejection reasons returned with Applied=false
const (
	ReasonUnchanged          = "status unchanged"
	ReasonTerminal           = "status is terminal"
	ReasonEdgeNotAllowed     = "transition not allowed"
	ReasonTranslatorRequired = "a translator must be assigned in the same request"
	ReasonCommentRequired    = "admin comment is required"
	ReasonSessionRequired    = "session time is required"
	ReasonUnknownStatus      = "unknown status"
)

// TransitionRequest is an externally requested status change plus the
// context flags the edges depend on
type TransitionRequest struct {
	Target            domain.JobStatus
	TranslatorChanged bool
	AdminComment      string
	// SessionTime is nil when the caller did not supply one
	SessionTime *time.Duration
}

// TransitionResult describes the outcome. Job is the updated copy when
// Applied, otherwise the untouched input.
type TransitionResult struct {
	Applied bool                      `json:"applied"`
	Reason  string                    `json:"reason,omitempty"`
	Job     *domain.Job               `json:"job"`
	Changes []domain.ChangeDescriptor `json:"changes,omitempty"`
}

// StateMachine validates status edges. It performs no I/O.
type StateMachine struct {
	clock  clock.Clock
	expiry schedule.ExpiryPolicy
}

// NewStateMachine creates a StateMachine
func NewStateMachine(clk clock.Clock, expiry schedule.ExpiryPolicy) *StateMachine {
	return &StateMachine{clock: clk, expiry: expiry}
}

// Apply evaluates req against job. job itself is never modified.
func (m *StateMachine) Apply(job *domain.Job, req TransitionRequest) TransitionResult {
	from := job.Status
	if req.Target == from {
		return rejected(job, ReasonUnchanged)
	}

	comment := strings.TrimSpace(req.AdminComment)

	var reason string
	switch from {
	case domain.StatusPending:
		reason = fromPending(req)
	case domain.StatusAssigned:
		reason = fromAssigned(req, comment)
	case domain.StatusStarted:
		reason = fromStarted(req, comment)
	case domain.StatusTimedOut:
		reason = fromTimedOut(req)
	case domain.StatusCompleted,
		domain.StatusWithdrawBefore24,
		domain.StatusWithdrawAfter24,
		domain.StatusNotCarriedOutCustomer:
		reason = ReasonTerminal
	default:
		reason = fmt.Sprintf("%s %q", ReasonUnknownStatus, from)
	}
	if reason != "" {
		return rejected(job, reason)
	}

	now := m.clock.Now()
	next := job.Clone()
	next.Status = req.Target
	if comment != "" {
		next.AdminComments = comment
	}

	change := domain.StatusChanged(from, req.Target)

	switch req.Target {
	case domain.StatusCompleted:
		next.EndAt = &now
		next.SessionTime = *req.SessionTime
	case domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24:
		next.WithdrawAt = &now
	case domain.StatusPending:
		m.reopenInPlace(next, now)
		if from == domain.StatusTimedOut {
			change.Kind = domain.ChangeStatusChangedToPending
		}
	}

	return TransitionResult{
		Applied: true,
		Job:     next,
		Changes: []domain.ChangeDescriptor{change},
	}
}

// reopenInPlace gives a job that goes back to pending a fresh offer window
func (m *StateMachine) reopenInPlace(job *domain.Job, now time.Time) {
	job.CreatedAt = now
	job.WillExpireAt = m.expiry.WillExpireAt(job.Due, now)
	job.ExpiryNotified = false
	job.WithdrawAt = nil
	job.EndAt = nil
	job.SessionTime = 0
}

func rejected(job *domain.Job, reason string) TransitionResult {
	return TransitionResult{Applied: false, Reason: reason, Job: job}
}

func fromPending(req TransitionRequest) string {
	switch req.Target {
	case domain.StatusAssigned:
		if !req.TranslatorChanged {
			return ReasonTranslatorRequired
		}
		return ""
	case domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24:
		return ""
	default:
		return ReasonEdgeNotAllowed
	}
}

func fromAssigned(req TransitionRequest, comment string) string {
	switch req.Target {
	case domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24:
		return ""
	case domain.StatusTimedOut:
		if comment == "" {
			return ReasonCommentRequired
		}
		return ""
	default:
		return ReasonEdgeNotAllowed
	}
}

func fromStarted(req TransitionRequest, comment string) string {
	if comment == "" {
		return ReasonCommentRequired
	}
	if req.Target == domain.StatusCompleted && req.SessionTime == nil {
		return ReasonSessionRequired
	}
	switch req.Target {
	case domain.StatusPending,
		domain.StatusAssigned,
		domain.StatusCompleted,
		domain.StatusWithdrawBefore24,
		domain.StatusWithdrawAfter24,
		domain.StatusTimedOut,
		domain.StatusNotCarriedOutCustomer:
		return ""
	default:
		return ReasonUnknownStatus
	}
}

func fromTimedOut(req TransitionRequest) string {
	switch req.Target {
	case domain.StatusPending:
		return ""
	case domain.StatusAssigned:
		if !req.TranslatorChanged {
			return ReasonTranslatorRequired
		}
		return ""
	default:
		return ReasonEdgeNotAllowed
	}
}
