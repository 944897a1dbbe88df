package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New()

	m.TransitionApplied(domain.StatusPending, domain.StatusAssigned)
	m.TransitionApplied(domain.StatusPending, domain.StatusAssigned)
	m.TransitionRejected(domain.StatusCompleted)
	m.AcceptConflict()
	m.NotificationSent("push", nil)
	m.NotificationSent("push", errors.New("down"))
	m.EventHandled("ok")
	m.DuplicateEvent()
	m.ExpiredSwept(3)
	m.EventStarted()
	m.EventStarted()
	m.EventDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsApplied.WithLabelValues("pending", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsRejected.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcceptConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("push", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("push", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDuplicate))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ExpiredNotified))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlightEvents))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.AcceptConflict()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "booking_accept_conflicts_total 1")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
