package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/shared/logger"
	"github.com/cuongbtq/booking-dispatch/shared/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	msgs []rabbitmq.Message
	err  error
}

func (b *fakeBus) PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error {
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, msg)
	return nil
}

func sampleEvent() domain.Event {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	job := &domain.Job{ID: 7, UserID: 1, Status: domain.StatusPending, Due: now.Add(time.Hour)}
	return domain.NewEvent(3, job, []domain.ChangeDescriptor{
		domain.StatusChanged(domain.StatusAssigned, domain.StatusPending),
	}, now)
}

func TestPublisher_Notify(t *testing.T) {
	bus := &fakeBus{}
	pub := NewPublisher(bus, logger.NewDiscard().Logger)
	event := sampleEvent()

	require.NoError(t, pub.Notify(context.Background(), event))
	require.Len(t, bus.msgs, 1)

	msg := bus.msgs[0]
	assert.Equal(t, event.ID.String(), msg.ID)
	assert.Equal(t, MessageType, msg.Type)

	decoded, err := Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, event.Job.ID, decoded.Job.ID)
	assert.Equal(t, event.Changes, decoded.Changes)
	assert.True(t, event.OccurredAt.Equal(decoded.OccurredAt))
}

func TestPublisher_NotifyError(t *testing.T) {
	boom := errors.New("channel closed")
	pub := NewPublisher(&fakeBus{err: boom}, logger.NewDiscard().Logger)

	err := pub.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{"id":`},
		{name: "missing id", body: `{"job":{"id":1},"changes":[{"kind":"job_expired"}]}`},
		{name: "missing job", body: `{"id":"5b0c8f38-3e5e-4a4b-9a55-0d8a2f1c4b11","changes":[{"kind":"job_expired"}]}`},
		{name: "no changes", body: `{"id":"5b0c8f38-3e5e-4a4b-9a55-0d8a2f1c4b11","job":{"id":1},"changes":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.ErrorIs(t, err, domain.ErrInvalidEvent)
		})
	}
}
