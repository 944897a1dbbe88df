package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Config wires the dispatcher to its collaborators
type Config struct {
	Directory Directory
	Mailer    Mailer
	Push      PushGateway
	SMS       SMSGateway
	Filter    *eligibility.Filter
	Night     *schedule.NightPolicy
	Clock     clock.Clock
	Texts     Texts
	Recorder  Recorder
	Logger    *slog.Logger

	PushAppID   string
	PushTitle   string
	SMSFrom     string
	Concurrency int
	SendTimeout time.Duration
}

// Dispatcher turns committed change descriptors into mail, push and SMS
// deliveries
type Dispatcher struct {
	dir         Directory
	mailer      Mailer
	push        PushGateway
	sms         SMSGateway
	filter      *eligibility.Filter
	night       *schedule.NightPolicy
	clock       clock.Clock
	texts       Texts
	recorder    Recorder
	logger      *slog.Logger
	appID       string
	title       string
	smsFrom     string
	concurrency int
	timeout     time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		dir:         cfg.Directory,
		mailer:      cfg.Mailer,
		push:        cfg.Push,
		sms:         cfg.SMS,
		filter:      cfg.Filter,
		night:       cfg.Night,
		clock:       cfg.Clock,
		texts:       cfg.Texts,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		appID:       cfg.PushAppID,
		title:       cfg.PushTitle,
		smsFrom:     cfg.SMSFrom,
		concurrency: cfg.Concurrency,
		timeout:     cfg.SendTimeout,
	}
	if d.clock == nil {
		d.clock = clock.Real{}
	}
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.concurrency <= 0 {
		d.concurrency = 8
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	return d
}

// delivery is one planned send
type delivery struct {
	channel string
	to      string
	fn      func(ctx context.Context) error
}

// plan collects deliveries for one event and caches directory reads
type plan struct {
	event      domain.Event
	job        *domain.Job
	customer   *domain.Customer
	deliveries []delivery
}

func (p *plan) add(channel, to string, fn func(ctx context.Context) error) {
	p.deliveries = append(p.deliveries, delivery{channel: channel, to: to, fn: fn})
}

func (p *plan) has(kind domain.ChangeKind) bool {
	for _, c := range p.event.Changes {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Dispatch delivers the notifications for one committed event. Directory
// failures are returned as RetryableError before anything is sent. Transport
// failures are logged and returned combined once every delivery was tried.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	p := &plan{event: event, job: &event.Job}

	for _, change := range event.Changes {
		if err := d.planChange(ctx, p, change); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to plan %s for job %d: %w", change.Kind, p.job.ID, err))
		}
	}

	d.logger.Debug("Dispatching notifications",
		slog.String("event_id", event.ID.String()),
		slog.Int64("job_id", p.job.ID),
		slog.Int("deliveries", len(p.deliveries)),
	)
	return d.run(ctx, p)
}

func (d *Dispatcher) planChange(ctx context.Context, p *plan, c domain.ChangeDescriptor) error {
	job := p.job

	switch c.Kind {
	case domain.ChangeDateChanged:
		extra := map[string]any{}
		if c.OldDue != nil {
			extra["old_due"] = d.texts.Due(*c.OldDue)
		}
		if err := d.mailCustomer(ctx, p, TemplateChangedDate, extra); err != nil {
			return err
		}
		return d.mailActiveTranslator(ctx, p, TemplateChangedDate, extra)

	case domain.ChangeLanguageChanged:
		extra := map[string]any{"old_language": d.texts.Language(c.OldLanguageID)}
		if err := d.mailCustomer(ctx, p, TemplateChangedLanguage, extra); err != nil {
			return err
		}
		return d.mailActiveTranslator(ctx, p, TemplateChangedLanguage, extra)

	case domain.ChangeTranslatorChanged:
		if err := d.mailCustomer(ctx, p, TemplateChangedTranslatorCust, nil); err != nil {
			return err
		}
		if err := d.mailTranslator(ctx, p, c.OldTranslatorID, TemplateChangedTranslatorOld, nil); err != nil {
			return err
		}
		return d.mailTranslator(ctx, p, c.NewTranslatorID, TemplateChangedTranslatorNew, nil)

	case domain.ChangeStatusChanged:
		switch c.NewStatus {
		case domain.StatusPending:
			return d.announce(ctx, p, c.ExcludeTranslatorID)
		case domain.StatusAssigned:
			return d.pushActiveTranslator(ctx, p, PushSessionStartRemind, d.texts.SessionStartRemind(job))
		}
		if p.event.ActorID == job.UserID || p.has(domain.ChangeSessionEnded) {
			return nil
		}
		return d.mailCustomer(ctx, p, TemplateStatusChanged, map[string]any{"old_status": string(c.OldStatus)})

	case domain.ChangeNewJobCreated:
		if p.event.ActorID == job.UserID {
			if err := d.mailCustomer(ctx, p, TemplateJobCreated, nil); err != nil {
				return err
			}
		}
		return d.announce(ctx, p, c.ExcludeTranslatorID)

	case domain.ChangeStatusChangedToPending:
		return d.announce(ctx, p, 0)

	case domain.ChangeJobCancelled:
		if err := d.pushTranslator(ctx, p, c.TranslatorID, PushJobCancelled, d.texts.JobCancelled(job)); err != nil {
			return err
		}
		return d.mailTranslator(ctx, p, c.TranslatorID, TemplateJobCancelledTranslator, nil)

	case domain.ChangeTranslatorCancelled:
		return d.pushCustomer(ctx, p, PushJobCancelled, d.texts.TranslatorCancelled(job))

	case domain.ChangeJobExpired:
		return d.pushCustomer(ctx, p, PushJobExpired, d.texts.JobExpired(job))

	case domain.ChangeJobAccepted:
		if err := d.mailCustomer(ctx, p, TemplateJobAccepted, nil); err != nil {
			return err
		}
		return d.pushCustomer(ctx, p, PushJobAccepted, d.texts.JobAccepted(job))

	case domain.ChangeSessionEnded:
		extra := map[string]any{"session_time": c.SessionTime.String(), "for_text": "invoice"}
		if err := d.mailCustomer(ctx, p, TemplateSessionEnded, extra); err != nil {
			return err
		}
		return d.mailTranslator(ctx, p, c.TranslatorID, TemplateSessionEnded,
			map[string]any{"session_time": c.SessionTime.String(), "for_text": "salary"})

	case domain.ChangeSMSRequested:
		return d.smsPool(ctx, p)
	}

	d.logger.Warn("No notification rule for change", slog.String("kind", string(c.Kind)))
	return nil
}

// getCustomer treats an unknown customer as nobody to notify
func (d *Dispatcher) getCustomer(ctx context.Context, p *plan) (*domain.Customer, error) {
	if p.customer != nil {
		return p.customer, nil
	}
	c, err := d.dir.GetCustomer(ctx, p.job.UserID)
	if errors.Is(err, domain.ErrCustomerNotFound) {
		d.logger.Warn("Skipping notification to unknown customer", slog.Int64("customer_id", p.job.UserID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.customer = c
	return c, nil
}

// getTranslator treats an unknown translator as nobody to notify
func (d *Dispatcher) getTranslator(ctx context.Context, id int64) (*domain.Translator, error) {
	if id == 0 {
		return nil, nil
	}
	t, err := d.dir.GetTranslator(ctx, id)
	if errors.Is(err, domain.ErrTranslatorNotFound) {
		d.logger.Warn("Skipping notification to unknown translator", slog.Int64("translator_id", id))
		return nil, nil
	}
	return t, err
}

func (d *Dispatcher) mailData(job *domain.Job, extra map[string]any) map[string]any {
	data := map[string]any{
		"job_id":   job.ID,
		"language": d.texts.Language(job.FromLanguageID),
		"duration": job.Duration,
		"due":      d.texts.Due(job.Due),
		"status":   string(job.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (d *Dispatcher) addMail(p *plan, email, name, template string, extra map[string]any) {
	mail := Mail{
		ToEmail:  email,
		ToName:   name,
		Subject:  d.texts.Subject(template, p.job.ID),
		Template: template,
		Data:     d.mailData(p.job, extra),
	}
	p.add(ChannelEmail, email, func(ctx context.Context) error {
		return d.mailer.Send(ctx, mail)
	})
}

// mailCustomer prefers the contact address stored on the booking
func (d *Dispatcher) mailCustomer(ctx context.Context, p *plan, template string, extra map[string]any) error {
	customer, err := d.getCustomer(ctx, p)
	if err != nil || customer == nil {
		return err
	}
	email := customer.Email
	if p.job.UserEmail != "" {
		email = p.job.UserEmail
	}
	if email == "" {
		return nil
	}
	d.addMail(p, email, customer.Name, template, extra)
	return nil
}

func (d *Dispatcher) mailTranslator(ctx context.Context, p *plan, id int64, template string, extra map[string]any) error {
	t, err := d.getTranslator(ctx, id)
	if err != nil || t == nil {
		return err
	}
	d.addMail(p, t.Email, t.Name, template, extra)
	return nil
}

func (d *Dispatcher) mailActiveTranslator(ctx context.Context, p *plan, template string, extra map[string]any) error {
	active, err := d.dir.ActiveAssignment(ctx, p.job.ID)
	if err != nil || active == nil {
		return err
	}
	return d.mailTranslator(ctx, p, active.TranslatorID, template, extra)
}

// addPush queues one batch. A non-zero sendAfter schedules it.
func (d *Dispatcher) addPush(p *plan, recipients []string, notificationType, text string, sendAfter time.Time) {
	if len(recipients) == 0 {
		return
	}
	var after *time.Time
	if !sendAfter.IsZero() {
		after = &sendAfter
	}
	req := NewPushRequest(d.appID, d.title, recipients, d.texts.JobData(p.job, notificationType), text, p.job.Immediate, after)

	to := recipients[0]
	if len(recipients) > 1 {
		to = fmt.Sprintf("%d recipients", len(recipients))
	}
	p.add(ChannelPush, to, func(ctx context.Context) error {
		return d.push.Push(ctx, req)
	})
}

// addUserPush honours the single recipient's opt-outs
func (d *Dispatcher) addUserPush(p *plan, email string, optedOut, nightOptOut bool, notificationType, text string) {
	if optedOut || email == "" {
		return
	}
	var sendAfter time.Time
	now := d.clock.Now()
	if NeedsDelay(nightOptOut, now, d.night) {
		sendAfter = d.night.NextBusinessTime(now)
	}
	d.addPush(p, []string{email}, notificationType, text, sendAfter)
}

func (d *Dispatcher) pushCustomer(ctx context.Context, p *plan, notificationType, text string) error {
	customer, err := d.getCustomer(ctx, p)
	if err != nil || customer == nil {
		return err
	}
	d.addUserPush(p, customer.Email, customer.NotGetNotification, customer.NotGetNighttime, notificationType, text)
	return nil
}

func (d *Dispatcher) pushTranslator(ctx context.Context, p *plan, id int64, notificationType, text string) error {
	t, err := d.getTranslator(ctx, id)
	if err != nil || t == nil {
		return err
	}
	d.addUserPush(p, t.Email, t.NotGetNotification, t.NotGetNighttime, notificationType, text)
	return nil
}

func (d *Dispatcher) pushActiveTranslator(ctx context.Context, p *plan, notificationType, text string) error {
	active, err := d.dir.ActiveAssignment(ctx, p.job.ID)
	if err != nil || active == nil {
		return err
	}
	return d.pushTranslator(ctx, p, active.TranslatorID, notificationType, text)
}

// Pool returns the translators admissible for the job, excluding excludeID
func (d *Dispatcher) Pool(ctx context.Context, job *domain.Job, excludeID int64) ([]domain.Translator, error) {
	roster, err := d.dir.Roster(ctx, d.filter.PoolQuery(job, excludeID))
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	blacklist, err := d.dir.Blacklist(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}
	return d.filter.Candidates(roster, job, blacklist, excludeID), nil
}

// announce pushes the suitable-job offer to the eligible pool, holding back
// night-time opt-outs until business hours
func (d *Dispatcher) announce(ctx context.Context, p *plan, excludeID int64) error {
	pool, err := d.Pool(ctx, p.job, excludeID)
	if err != nil {
		return err
	}

	buckets := Partition(pool, d.clock.Now(), d.night)
	text := d.texts.SuitableJob(p.job)
	d.addPush(p, emails(buckets.Immediate), PushSuitableJob, text, time.Time{})
	d.addPush(p, emails(buckets.Delayed), PushSuitableJob, text, buckets.SendAfter)

	d.logger.Info("Announcing booking to translators",
		slog.Int64("job_id", p.job.ID),
		slog.Int("immediate", len(buckets.Immediate)),
		slog.Int("delayed", len(buckets.Delayed)),
		slog.Int64("excluded_translator_id", excludeID),
	)
	return nil
}

func (d *Dispatcher) smsPool(ctx context.Context, p *plan) error {
	pool, err := d.Pool(ctx, p.job, 0)
	if err != nil {
		return err
	}

	town := p.job.Town
	if town == "" {
		customer, err := d.getCustomer(ctx, p)
		if err != nil {
			return err
		}
		if customer != nil {
			town = customer.Town
		}
	}
	message := d.texts.SMS(p.job, town)

	for _, t := range pool {
		if t.Mobile == "" {
			continue
		}
		mobile := t.Mobile
		p.add(ChannelSMS, mobile, func(ctx context.Context) error {
			return d.sms.Send(ctx, d.smsFrom, mobile, message)
		})
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, p *plan) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(d.concurrency)

	for _, dl := range p.deliveries {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := dl.fn(sendCtx)
			d.recorder.NotificationSent(dl.channel, err)
			if err != nil {
				d.logger.Warn("Notification delivery failed",
					slog.Int64("job_id", p.job.ID),
					slog.String("channel", dl.channel),
					slog.String("to", dl.to),
					slog.Any("error", err),
				)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s to %s: %w", dl.channel, dl.to, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
