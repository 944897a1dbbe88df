package events

import (
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/shared/rabbitmq"
	"github.com/google/uuid"
)

// MessageType tags notification events on the bus
const MessageType = "booking.notification"

// Encode turns an event into a bus message keyed by the event id
func Encode(event domain.Event) (rabbitmq.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return rabbitmq.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return rabbitmq.Message{
		ID:          event.ID.String(),
		Type:        MessageType,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// Decode parses a message body. Malformed bodies wrap domain.ErrInvalidEvent.
func Decode(body []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if event.ID == uuid.Nil {
		return domain.Event{}, fmt.Errorf("%w: missing id", domain.ErrInvalidEvent)
	}
	if event.Job.ID <= 0 {
		return domain.Event{}, fmt.Errorf("%w: missing job id", domain.ErrInvalidEvent)
	}
	if len(event.Changes) == 0 {
		return domain.Event{}, fmt.Errorf("%w: no changes", domain.ErrInvalidEvent)
	}
	return event, nil
}
