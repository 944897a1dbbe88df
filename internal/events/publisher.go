package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/shared/rabbitmq"
)

// Bus is the publishing side of the RabbitMQ client
type Bus interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// Publisher hands committed booking events to the worker through the bus
type Publisher struct {
	bus    Bus
	logger *slog.Logger
}

// NewPublisher creates a Publisher
func NewPublisher(bus Bus, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// Notify publishes one event
func (p *Publisher) Notify(ctx context.Context, event domain.Event) error {
	msg, err := Encode(event)
	if err != nil {
		return err
	}

	if err := p.bus.PublishWithRetry(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", msg.ID, err)
	}

	p.logger.Debug("Booking event published",
		slog.String("event_id", msg.ID),
		slog.Int64("job_id", event.Job.ID),
		slog.Int("changes", len(event.Changes)),
	)
	return nil
}
