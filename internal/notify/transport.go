package notify

import (
	"context"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
)

// Mail is one outgoing email. Template selects the body, Data fills it.
type Mail struct {
	ToEmail  string
	ToName   string
	Subject  string
	Template string
	Data     map[string]any
}

// Mailer delivers email
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// PushGateway delivers one batched push request
type PushGateway interface {
	Push(ctx context.Context, req PushRequest) error
}

// SMSGateway delivers one text message
type SMSGateway interface {
	Send(ctx context.Context, from, to, message string) error
}

// Directory is the read side the dispatcher resolves recipients from
type Directory interface {
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	GetTranslator(ctx context.Context, id int64) (*domain.Translator, error)
	ActiveAssignment(ctx context.Context, jobID int64) (*domain.Assignment, error)
	Blacklist(ctx context.Context, customerID int64) (eligibility.Blacklist, error)
	Roster(ctx context.Context, q eligibility.PoolQuery) ([]domain.Translator, error)
}

// Recorder counts delivery attempts per channel
type Recorder interface {
	NotificationSent(channel string, err error)
}

type nopRecorder struct{}

func (nopRecorder) NotificationSent(channel string, err error) {}

// Delivery channels
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
)
