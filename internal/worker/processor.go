package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
)

// processEvent dispatches one event at most once per dedupe window.
// Transport failures are logged and the event is still acknowledged.
func (w *Worker) processEvent(ctx context.Context, msg *eventMessage) error {
	event := msg.event
	logger := w.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.Int64("job_id", event.Job.ID),
	)

	if w.dedupe != nil {
		claimed, err := w.dedupe.Claim(ctx, event.ID, w.workerID)
		switch {
		case err != nil:
			// duplicate delivery is acceptable, a lost one is not
			logger.Warn("De-duplication unavailable, dispatching anyway", slog.Any("error", err))
		case !claimed:
			logger.Info("Skipping already dispatched event")
			w.metrics.DuplicateEvent()
			w.metrics.EventHandled(ResultDuplicate)
			return nil
		}
	}

	w.metrics.EventStarted()
	defer w.metrics.EventDone()

	eventCtx, cancel := context.WithTimeout(ctx, w.eventTimeout)
	defer cancel()

	start := time.Now()
	err := w.dispatcher.Dispatch(eventCtx, event)

	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		if w.dedupe != nil {
			if relErr := w.dedupe.Release(ctx, event.ID); relErr != nil {
				logger.Warn("Failed to release event claim", slog.Any("error", relErr))
			}
		}
		return err
	}

	if err != nil {
		logger.Warn("Event dispatched with delivery failures",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		w.metrics.EventHandled(ResultFailed)
		return nil
	}

	logger.Info("Event dispatched", slog.Duration("elapsed", time.Since(start)))
	w.metrics.EventHandled(ResultOK)
	return nil
}

// sweepLoop announces expired pending bookings on every tick
func (w *Worker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.sweeper.NotifyExpired(ctx)
	if err != nil {
		w.logger.Error("Expiry sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		w.metrics.ExpiredSwept(n)
		w.logger.Info("Expired bookings announced", slog.Int("count", n))
	}
}
