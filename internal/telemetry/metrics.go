package telemetry

import (
	"net/http"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry. It satisfies
// booking.Recorder and notify.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	TransitionsApplied  *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	AcceptConflicts     prometheus.Counter
	Notifications       *prometheus.CounterVec
	EventsProcessed     *prometheus.CounterVec
	EventsDuplicate     prometheus.Counter
	ExpiredNotified     prometheus.Counter
	InFlightEvents      prometheus.Gauge
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TransitionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_applied_total",
			Help: "Status transitions committed",
		}, []string{"from", "to"}),
		TransitionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_rejected_total",
			Help: "Requested status transitions the state machine refused",
		}, []string{"target"}),
		AcceptConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_accept_conflicts_total",
			Help: "Accept attempts that lost the race",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_notifications_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_events_processed_total",
			Help: "Notification events handled by the worker",
		}, []string{"result"}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_events_duplicate_total",
			Help: "Redelivered events skipped by de-duplication",
		}),
		ExpiredNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_expired_notified_total",
			Help: "Pending bookings whose expiry was announced",
		}),
		InFlightEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "booking_events_inflight",
			Help: "Events currently being dispatched",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TransitionsApplied,
		m.TransitionsRejected,
		m.AcceptConflicts,
		m.Notifications,
		m.EventsProcessed,
		m.EventsDuplicate,
		m.ExpiredNotified,
		m.InFlightEvents,
	)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TransitionApplied(from, to domain.JobStatus) {
	m.TransitionsApplied.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) TransitionRejected(target domain.JobStatus) {
	m.TransitionsRejected.WithLabelValues(string(target)).Inc()
}

func (m *Metrics) AcceptConflict() {
	m.AcceptConflicts.Inc()
}

func (m *Metrics) NotificationSent(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}

// EventHandled counts one worker outcome: ok, failed, requeued or invalid
func (m *Metrics) EventHandled(result string) {
	m.EventsProcessed.WithLabelValues(result).Inc()
}

// EventStarted and EventDone bracket one dispatch
func (m *Metrics) EventStarted() {
	m.InFlightEvents.Inc()
}

func (m *Metrics) EventDone() {
	m.InFlightEvents.Dec()
}

func (m *Metrics) DuplicateEvent() {
	m.EventsDuplicate.Inc()
}

func (m *Metrics) ExpiredSwept(n int) {
	m.ExpiredNotified.Add(float64(n))
}
