package notify_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/internal/notify"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
	"github.com/cuongbtq/booking-dispatch/internal/storage"
	"github.com/cuongbtq/booking-dispatch/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roleID int64 = 2

var (
	daytime   = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	nighttime = time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
)

type fakeMailer struct {
	mu       sync.Mutex
	sent     []notify.Mail
	failures map[string]error
}

func (m *fakeMailer) Send(ctx context.Context, mail notify.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[mail.ToEmail]; err != nil {
		return err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *fakeMailer) byTemplate() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]string{}
	for _, mail := range m.sent {
		out[mail.Template] = append(out[mail.Template], mail.ToEmail)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

type fakePush struct {
	mu   sync.Mutex
	reqs []notify.PushRequest
	err  error
}

func (p *fakePush) Push(ctx context.Context, req notify.PushRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return p.err
}

func (p *fakePush) requests() []notify.PushRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]notify.PushRequest(nil), p.reqs...)
	sort.Slice(out, func(a, b int) bool { return out[a].SendAfter < out[b].SendAfter })
	return out
}

type fakeSMS struct {
	mu  sync.Mutex
	to  []string
	msg []string
}

func (s *fakeSMS) Send(ctx context.Context, from, to, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.msg = append(s.msg, message)
	return nil
}

type channelCounter struct {
	mu     sync.Mutex
	ok     map[string]int
	failed map[string]int
}

func (c *channelCounter) NotificationSent(channel string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed[channel]++
		return
	}
	c.ok[channel]++
}

type failingDirectory struct {
	*storage.Memory
}

func (failingDirectory) Roster(ctx context.Context, q eligibility.PoolQuery) ([]domain.Translator, error) {
	return nil, errors.New("connection reset")
}

type harness struct {
	store    *storage.Memory
	mailer   *fakeMailer
	push     *fakePush
	sms      *fakeSMS
	recorder *channelCounter
	clock    *clock.Fixed
	dir      notify.Directory
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	store := storage.NewMemory()
	store.AddCustomer(domain.Customer{ID: 1, Email: "customer@example.com", Name: "Clara", Town: "Uppsala", ConsumerType: domain.ConsumerPaid})

	translator := func(id int64, email string, mutate func(*domain.Translator)) domain.Translator {
		tr := domain.Translator{
			ID: id, Email: email, Name: email, Mobile: "+4670000000" + string(rune('0'+id%10)),
			RoleID: roleID, Active: true, Type: domain.TranslatorProfessional,
			Level: domain.LevelCertified, LanguageIDs: []int64{10}, Town: "Uppsala",
		}
		if mutate != nil {
			mutate(&tr)
		}
		return tr
	}
	store.AddTranslator(translator(10, "holder@example.com", nil))
	store.AddTranslator(translator(11, "night@example.com", func(tr *domain.Translator) { tr.NotGetNighttime = true }))
	store.AddTranslator(translator(12, "muted@example.com", func(tr *domain.Translator) { tr.NotGetNotification = true }))
	store.AddTranslator(translator(13, "volunteer@example.com", func(tr *domain.Translator) { tr.Type = domain.TranslatorVolunteer }))
	store.AddTranslator(translator(14, "blocked@example.com", nil))
	store.BlockTranslator(1, 14)

	return &harness{
		store:    store,
		mailer:   &fakeMailer{failures: map[string]error{}},
		push:     &fakePush{},
		sms:      &fakeSMS{},
		recorder: &channelCounter{ok: map[string]int{}, failed: map[string]int{}},
		clock:    clock.NewFixed(now),
		dir:      store,
	}
}

func (h *harness) dispatcher(t *testing.T) *notify.Dispatcher {
	t.Helper()
	night, err := schedule.NewNightPolicy(time.UTC, "22:00", "07:00")
	require.NoError(t, err)

	return notify.NewDispatcher(notify.Config{
		Directory:   h.dir,
		Mailer:      h.mailer,
		Push:        h.push,
		SMS:         h.sms,
		Filter:      eligibility.New(roleID),
		Night:       night,
		Clock:       h.clock,
		Texts:       notify.Texts{Languages: map[int64]string{10: "Swedish"}},
		Recorder:    h.recorder,
		Logger:      logger.NewDiscard().Logger,
		PushAppID:   "app-1",
		PushTitle:   "Bookings",
		SMSFrom:     "+4610",
		Concurrency: 2,
		SendTimeout: time.Second,
	})
}

func (h *harness) pendingJob() *domain.Job {
	job := domain.Job{
		UserID:         1,
		Status:         domain.StatusPending,
		Due:            daytime.Add(72 * time.Hour),
		FromLanguageID: 10,
		Duration:       60,
		JobType:        domain.JobTypePaid,
		Certified:      domain.CertificationYes,
	}
	job.ID = h.store.PutJob(job)
	return &job
}

func (h *harness) assign(t *testing.T, jobID, translatorID int64) {
	t.Helper()
	require.NoError(t, h.store.CreateAssignment(context.Background(), &domain.Assignment{
		JobID: jobID, TranslatorID: translatorID, CreatedAt: daytime,
	}))
}

func event(actorID int64, job *domain.Job, changes ...domain.ChangeDescriptor) domain.Event {
	return domain.NewEvent(actorID, job, changes, daytime)
}

func tagValues(req notify.PushRequest) []string {
	out := []string{}
	for _, tag := range req.Tags {
		if tag.Value != "" {
			out = append(out, tag.Value)
		}
	}
	sort.Strings(out)
	return out
}

func TestDispatch_NewJobAnnouncesToEligiblePool(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job, domain.ChangeDescriptor{Kind: domain.ChangeNewJobCreated}))
	require.NoError(t, err)

	reqs := h.push.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"holder@example.com", "night@example.com"}, tagValues(reqs[0]))
	assert.Empty(t, reqs[0].SendAfter)
	assert.Equal(t, "normal_booking", reqs[0].AndroidSound)
	assert.Equal(t, notify.PushSuitableJob, reqs[0].Data["notification_type"])
	assert.Empty(t, h.mailer.byTemplate(), "admin-created jobs send no confirmation mail")
}

func TestDispatch_NightTimeSplitsBatches(t *testing.T) {
	h := newHarness(t, nighttime)
	job := h.pendingJob()
	job.Immediate = true

	err := h.dispatcher(t).Dispatch(context.Background(), event(1, job, domain.ChangeDescriptor{Kind: domain.ChangeNewJobCreated}))
	require.NoError(t, err)

	reqs := h.push.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"holder@example.com"}, tagValues(reqs[0]))
	assert.Empty(t, reqs[0].SendAfter)
	assert.Equal(t, []string{"night@example.com"}, tagValues(reqs[1]))
	assert.Equal(t, "2026-05-05 07:00:00 GMT+0000", reqs[1].SendAfter)
	assert.Equal(t, "emergency_booking.mp3", reqs[1].IOSSound)

	assert.Equal(t, map[string][]string{notify.TemplateJobCreated: {"customer@example.com"}}, h.mailer.byTemplate())
}

func TestDispatch_TranslatorCancellation(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()

	reopened := domain.StatusChanged(domain.StatusAssigned, domain.StatusPending)
	reopened.ExcludeTranslatorID = 10

	err := h.dispatcher(t).Dispatch(context.Background(), event(10, job,
		domain.ChangeDescriptor{Kind: domain.ChangeTranslatorCancelled, TranslatorID: 10},
		reopened,
	))
	require.NoError(t, err)

	var customerPush, poolPush []notify.PushRequest
	for _, req := range h.push.requests() {
		if req.Data["notification_type"] == notify.PushSuitableJob {
			poolPush = append(poolPush, req)
		} else {
			customerPush = append(customerPush, req)
		}
	}
	require.Len(t, customerPush, 1)
	assert.Equal(t, []string{"customer@example.com"}, tagValues(customerPush[0]))
	require.Len(t, poolPush, 1)
	assert.Equal(t, []string{"night@example.com"}, tagValues(poolPush[0]), "cancelling translator is excluded")
}

func TestDispatch_FieldChanges(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	job.Status = domain.StatusAssigned
	job.UserEmail = "contact@example.com"
	h.assign(t, job.ID, 11)

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job,
		domain.TranslatorChanged(10, 11),
		domain.DateChanged(daytime.Add(48*time.Hour), job.Due),
		domain.LanguageChanged(12, 10),
	))
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		notify.TemplateChangedTranslatorCust: {"contact@example.com"},
		notify.TemplateChangedTranslatorOld:  {"holder@example.com"},
		notify.TemplateChangedTranslatorNew:  {"night@example.com"},
		notify.TemplateChangedDate:           {"contact@example.com", "night@example.com"},
		notify.TemplateChangedLanguage:       {"contact@example.com", "night@example.com"},
	}, h.mailer.byTemplate())
	assert.Empty(t, h.push.requests())
}

func TestDispatch_CustomerCancellationTellsTranslator(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	job.Status = domain.StatusWithdrawBefore24

	err := h.dispatcher(t).Dispatch(context.Background(), event(1, job,
		domain.StatusChanged(domain.StatusAssigned, domain.StatusWithdrawBefore24),
		domain.ChangeDescriptor{Kind: domain.ChangeJobCancelled, TranslatorID: 10},
	))
	require.NoError(t, err)

	reqs := h.push.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"holder@example.com"}, tagValues(reqs[0]))
	assert.Equal(t, notify.PushJobCancelled, reqs[0].Data["notification_type"])
	assert.Equal(t, map[string][]string{
		notify.TemplateJobCancelledTranslator: {"holder@example.com"},
	}, h.mailer.byTemplate(), "the cancelling customer gets no status mail")
}

func TestDispatch_ExpiredRespectsCustomerOptOut(t *testing.T) {
	tests := []struct {
		name      string
		customer  domain.Customer
		now       time.Time
		wantPush  bool
		wantAfter string
	}{
		{name: "daytime", customer: domain.Customer{ID: 1, Email: "c@example.com"}, now: daytime, wantPush: true},
		{name: "muted", customer: domain.Customer{ID: 1, Email: "c@example.com", NotGetNotification: true}, now: daytime},
		{
			name:      "night opt-out",
			customer:  domain.Customer{ID: 1, Email: "c@example.com", NotGetNighttime: true},
			now:       nighttime,
			wantPush:  true,
			wantAfter: "2026-05-05 07:00:00 GMT+0000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.now)
			h.store.AddCustomer(tt.customer)
			job := h.pendingJob()

			err := h.dispatcher(t).Dispatch(context.Background(), event(0, job, domain.ChangeDescriptor{Kind: domain.ChangeJobExpired}))
			require.NoError(t, err)

			reqs := h.push.requests()
			if !tt.wantPush {
				assert.Empty(t, reqs)
				return
			}
			require.Len(t, reqs, 1)
			assert.Equal(t, notify.PushJobExpired, reqs[0].Data["notification_type"])
			assert.Equal(t, "default", reqs[0].IOSSound)
			assert.Equal(t, tt.wantAfter, reqs[0].SendAfter)
		})
	}
}

func TestDispatch_SessionEnded(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	job.Status = domain.StatusCompleted

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job,
		domain.StatusChanged(domain.StatusStarted, domain.StatusCompleted),
		domain.ChangeDescriptor{Kind: domain.ChangeSessionEnded, TranslatorID: 10, SessionTime: 75 * time.Minute},
	))
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		notify.TemplateSessionEnded: {"customer@example.com", "holder@example.com"},
	}, h.mailer.byTemplate())
}

func TestDispatch_SMSRequested(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	job.CustomerPhysicalType = true
	job.Town = "Uppsala"

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job, domain.ChangeDescriptor{Kind: domain.ChangeSMSRequested}))
	require.NoError(t, err)

	sort.Strings(h.sms.to)
	assert.Equal(t, []string{"+46700000000", "+46700000001"}, h.sms.to)
	for _, msg := range h.sms.msg {
		assert.Contains(t, msg, "on-site Swedish interpretation in Uppsala")
	}
}

func TestDispatch_TransportFailuresAreCombined(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	h.push.err = errors.New("gateway down")
	h.mailer.failures["customer@example.com"] = errors.New("mailbox full")

	err := h.dispatcher(t).Dispatch(context.Background(), event(1, job, domain.ChangeDescriptor{Kind: domain.ChangeNewJobCreated}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
	assert.Contains(t, err.Error(), "mailbox full")

	var retryable *domain.RetryableError
	assert.False(t, errors.As(err, &retryable))
	assert.Equal(t, 1, h.recorder.failed[notify.ChannelPush])
	assert.Equal(t, 1, h.recorder.failed[notify.ChannelEmail])
}

func TestDispatch_DirectoryFailureIsRetryable(t *testing.T) {
	h := newHarness(t, daytime)
	h.dir = failingDirectory{Memory: h.store}
	job := h.pendingJob()

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job, domain.ChangeDescriptor{Kind: domain.ChangeNewJobCreated}))

	var retryable *domain.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Empty(t, h.push.requests(), "nothing is sent when planning fails")
}

func TestDispatch_UnknownRecipientsAreSkipped(t *testing.T) {
	h := newHarness(t, daytime)
	job := h.pendingJob()
	job.UserID = 404

	err := h.dispatcher(t).Dispatch(context.Background(), event(99, job,
		domain.ChangeDescriptor{Kind: domain.ChangeJobExpired},
		domain.ChangeDescriptor{Kind: domain.ChangeJobCancelled, TranslatorID: 777},
	))
	require.NoError(t, err)
	assert.Empty(t, h.push.requests())
	assert.Empty(t, h.mailer.byTemplate())
}
