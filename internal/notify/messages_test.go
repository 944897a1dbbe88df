package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stockholm = time.FixedZone("CEST", 2*60*60)

func testTexts() Texts {
	return Texts{Languages: map[int64]string{10: "Swedish"}, Location: stockholm}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{minutes: 45, want: "45min"},
		{minutes: 60, want: "1h"},
		{minutes: 90, want: "01h 30min"},
		{minutes: 120, want: "02h 00min"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMinutes(tt.minutes))
		})
	}
}

func TestTexts_SMS(t *testing.T) {
	job := &domain.Job{
		ID:             42,
		FromLanguageID: 10,
		Duration:       90,
		Due:            time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC),
	}

	t.Run("on-site job names the town", func(t *testing.T) {
		j := *job
		j.CustomerPhysicalType = true
		msg := testTexts().SMS(&j, "Uppsala")
		assert.Contains(t, msg, "on-site Swedish interpretation in Uppsala")
		assert.Contains(t, msg, "04.05.2026 at 14:30")
		assert.Contains(t, msg, "01h 30min")
		assert.Contains(t, msg, "#42")
	})

	t.Run("phone fallback uses the phone text", func(t *testing.T) {
		j := *job
		j.CustomerPhysicalType = true
		j.CustomerPhoneType = true
		msg := testTexts().SMS(&j, "Uppsala")
		assert.Contains(t, msg, "phone Swedish interpretation")
		assert.NotContains(t, msg, "Uppsala")
	})
}

func TestTexts_SuitableJob(t *testing.T) {
	job := &domain.Job{FromLanguageID: 10, Duration: 60, Due: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	assert.Equal(t, "New booking for Swedish interpreter, 60min, 2026-05-04 14:00", testTexts().SuitableJob(job))

	job.Immediate = true
	assert.Equal(t, "New emergency booking for Swedish interpreter, 60min", testTexts().SuitableJob(job))

	job.FromLanguageID = 77
	assert.Contains(t, testTexts().SuitableJob(job), "language #77")
}

func TestJobFor(t *testing.T) {
	tests := []struct {
		name string
		job  domain.Job
		want []string
	}{
		{name: "no requirements", job: domain.Job{}, want: []string{}},
		{name: "female certified", job: domain.Job{Gender: domain.GenderFemale, Certified: domain.CertificationYes}, want: []string{"Female", "certified"}},
		{name: "both tiers", job: domain.Job{Certified: domain.CertificationBoth}, want: []string{"normal", "certified"}},
		{name: "law", job: domain.Job{Gender: domain.GenderMale, Certified: domain.CertificationLaw}, want: []string{"Male", "law"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JobFor(&tt.job))
		})
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string

	mailer := NewSMTPMailer("smtp.example.com", 587, "", "", "noreply@example.com", "Bookings").
		WithSendFunc(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
			return nil
		})

	err := mailer.Send(context.Background(), Mail{
		ToEmail:  "anna@example.com",
		ToName:   "Anna",
		Subject:  "Booking #7 received",
		Template: TemplateJobAccepted,
		Data:     map[string]any{"job_id": 7, "language": "Swedish", "duration": 60, "due": "2026-05-04 14:00"},
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"anna@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Booking #7 received\r\n")
	assert.Contains(t, gotMsg, "Dear Anna,")
	assert.Contains(t, gotMsg, "booking #7 (Swedish, 60min, 2026-05-04 14:00)")
}

func TestSMTPMailer_Errors(t *testing.T) {
	mailer := NewSMTPMailer("localhost", 25, "", "", "noreply@example.com", "Bookings").
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error { return nil })

	t.Run("unknown template", func(t *testing.T) {
		err := mailer.Send(context.Background(), Mail{ToEmail: "a@example.com", Template: "nope"})
		assert.ErrorContains(t, err, "nope")
	})

	t.Run("missing recipient", func(t *testing.T) {
		err := mailer.Send(context.Background(), Mail{Template: TemplateJobCreated})
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := mailer.Send(ctx, Mail{ToEmail: "a@example.com", Template: TemplateJobCreated})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSMSClient_Send(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"from":    r.PostForm.Get("from"),
			"to":      r.PostForm.Get("to"),
			"message": r.PostForm.Get("message"),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewSMSClient(srv.URL, "key", time.Second)
	require.NoError(t, client.Send(context.Background(), "+4610", "+4670", "hello"))
	assert.Equal(t, map[string]string{"from": "+4610", "to": "+4670", "message": "hello"}, form)

	assert.Error(t, client.Send(context.Background(), "+4610", " ", "hello"))
}
