package booking

import (
	"testing"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestMachine() *StateMachine {
	return NewStateMachine(clock.NewFixed(smNow), schedule.DefaultExpiry())
}

func jobIn(status domain.JobStatus) *domain.Job {
	return &domain.Job{
		ID:           1,
		Status:       status,
		Due:          smNow.Add(48 * time.Hour),
		CreatedAt:    smNow.Add(-time.Hour),
		WillExpireAt: smNow.Add(time.Hour),
	}
}

func TestStateMachine_AllPairs(t *testing.T) {
	// edges open when every context flag is supplied
	allowed := map[domain.JobStatus][]domain.JobStatus{
		domain.StatusPending: {
			domain.StatusAssigned, domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24,
		},
		domain.StatusAssigned: {
			domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24, domain.StatusTimedOut,
		},
		domain.StatusStarted: {
			domain.StatusPending, domain.StatusAssigned, domain.StatusCompleted,
			domain.StatusWithdrawBefore24, domain.StatusWithdrawAfter24,
			domain.StatusTimedOut, domain.StatusNotCarriedOutCustomer,
		},
		domain.StatusTimedOut: {
			domain.StatusPending, domain.StatusAssigned,
		},
	}

	session := 30 * time.Minute
	m := newTestMachine()

	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				job := jobIn(from)
				before := *job.Clone()

				res := m.Apply(job, TransitionRequest{
					Target:            to,
					TranslatorChanged: true,
					AdminComment:      "handled by support",
					SessionTime:       &session,
				})

				want := false
				for _, s := range allowed[from] {
					if s == to {
						want = true
					}
				}

				assert.Equal(t, want, res.Applied, "reason: %s", res.Reason)
				assert.Equal(t, before, *job, "input job must not change")
				if !want {
					assert.NotEmpty(t, res.Reason)
					assert.Empty(t, res.Changes)
					assert.Same(t, job, res.Job)
					return
				}

				assert.Equal(t, to, res.Job.Status)
				require.Len(t, res.Changes, 1)
				assert.Equal(t, from, res.Changes[0].OldStatus)
				assert.Equal(t, to, res.Changes[0].NewStatus)
			})
		}
	}
}

func TestStateMachine_Requirements(t *testing.T) {
	session := time.Hour

	tests := []struct {
		name   string
		from   domain.JobStatus
		req    TransitionRequest
		reason string
	}{
		{
			name:   "pending to assigned without translator",
			from:   domain.StatusPending,
			req:    TransitionRequest{Target: domain.StatusAssigned},
			reason: ReasonTranslatorRequired,
		},
		{
			name:   "assigned to timedout without comment",
			from:   domain.StatusAssigned,
			req:    TransitionRequest{Target: domain.StatusTimedOut, AdminComment: "   "},
			reason: ReasonCommentRequired,
		},
		{
			name:   "started to completed without session time",
			from:   domain.StatusStarted,
			req:    TransitionRequest{Target: domain.StatusCompleted, AdminComment: "done"},
			reason: ReasonSessionRequired,
		},
		{
			name:   "started to completed without comment",
			from:   domain.StatusStarted,
			req:    TransitionRequest{Target: domain.StatusCompleted, SessionTime: &session},
			reason: ReasonCommentRequired,
		},
		{
			name:   "timedout to assigned without translator",
			from:   domain.StatusTimedOut,
			req:    TransitionRequest{Target: domain.StatusAssigned},
			reason: ReasonTranslatorRequired,
		},
		{
			name:   "unchanged status",
			from:   domain.StatusStarted,
			req:    TransitionRequest{Target: domain.StatusStarted, AdminComment: "x"},
			reason: ReasonUnchanged,
		},
		{
			name:   "terminal source",
			from:   domain.StatusCompleted,
			req:    TransitionRequest{Target: domain.StatusPending, AdminComment: "x"},
			reason: ReasonTerminal,
		},
		{
			name:   "pending to timedout",
			from:   domain.StatusPending,
			req:    TransitionRequest{Target: domain.StatusTimedOut, AdminComment: "x"},
			reason: ReasonEdgeNotAllowed,
		},
	}

	m := newTestMachine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Apply(jobIn(tt.from), tt.req)
			assert.False(t, res.Applied)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestStateMachine_SideFields(t *testing.T) {
	m := newTestMachine()
	session := 95 * time.Minute

	t.Run("completed stamps end and session", func(t *testing.T) {
		res := m.Apply(jobIn(domain.StatusStarted), TransitionRequest{
			Target:       domain.StatusCompleted,
			AdminComment: " finished late ",
			SessionTime:  &session,
		})
		require.True(t, res.Applied)
		assert.Equal(t, session, res.Job.SessionTime)
		require.NotNil(t, res.Job.EndAt)
		assert.Equal(t, smNow, *res.Job.EndAt)
		assert.Equal(t, "finished late", res.Job.AdminComments)
	})

	t.Run("withdraw stamps withdraw_at", func(t *testing.T) {
		res := m.Apply(jobIn(domain.StatusAssigned), TransitionRequest{Target: domain.StatusWithdrawAfter24})
		require.True(t, res.Applied)
		require.NotNil(t, res.Job.WithdrawAt)
		assert.Equal(t, smNow, *res.Job.WithdrawAt)
	})

	t.Run("timedout to pending reopens the offer window", func(t *testing.T) {
		job := jobIn(domain.StatusTimedOut)
		job.ExpiryNotified = true

		res := m.Apply(job, TransitionRequest{Target: domain.StatusPending})
		require.True(t, res.Applied)
		assert.Equal(t, smNow, res.Job.CreatedAt)
		assert.Equal(t, schedule.DefaultExpiry().WillExpireAt(job.Due, smNow), res.Job.WillExpireAt)
		assert.False(t, res.Job.ExpiryNotified)
		assert.Equal(t, domain.ChangeStatusChangedToPending, res.Changes[0].Kind)
	})

	t.Run("started to pending keeps status_changed kind", func(t *testing.T) {
		res := m.Apply(jobIn(domain.StatusStarted), TransitionRequest{Target: domain.StatusPending, AdminComment: "x"})
		require.True(t, res.Applied)
		assert.Equal(t, domain.ChangeStatusChanged, res.Changes[0].Kind)
	})
}
