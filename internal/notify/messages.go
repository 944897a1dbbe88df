package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
)

const (
	dueLayout     = "2006-01-02 15:04"
	smsDateLayout = "02.01.2006"
	smsTimeLayout = "15:04"
)

// Mail templates
const (
	TemplateJobCreated             = "job-created"
	TemplateJobAccepted            = "job-accepted"
	TemplateChangedDate            = "job-changed-date"
	TemplateChangedLanguage        = "job-changed-lang"
	TemplateChangedTranslatorCust  = "job-changed-translator-customer"
	TemplateChangedTranslatorOld   = "job-changed-translator-old-translator"
	TemplateChangedTranslatorNew   = "job-changed-translator-new-translator"
	TemplateStatusChanged          = "job-status-changed"
	TemplateJobCancelledTranslator = "job-cancelled-translator"
	TemplateSessionEnded           = "session-ended"
)

// Texts renders the human readable parts of notifications
type Texts struct {
	Languages map[int64]string
	Location  *time.Location
}

// Language resolves a language id to its display name
func (t Texts) Language(id int64) string {
	if name, ok := t.Languages[id]; ok {
		return name
	}
	return "language #" + strconv.FormatInt(id, 10)
}

// Due renders a due time in the booking time zone
func (t Texts) Due(due time.Time) string {
	return due.In(t.loc()).Format(dueLayout)
}

func (t Texts) loc() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// SuitableJob announces a new booking to a translator
func (t Texts) SuitableJob(job *domain.Job) string {
	if job.Immediate {
		return fmt.Sprintf("New emergency booking for %s interpreter, %dmin", t.Language(job.FromLanguageID), job.Duration)
	}
	return fmt.Sprintf("New booking for %s interpreter, %dmin, %s",
		t.Language(job.FromLanguageID), job.Duration, t.Due(job.Due))
}

// JobExpired tells the customer nobody accepted the booking
func (t Texts) JobExpired(job *domain.Job) string {
	return fmt.Sprintf("Unfortunately no interpreter accepted your booking (%s, %dmin, %s). Please try booking again.",
		t.Language(job.FromLanguageID), job.Duration, t.Due(job.Due))
}

// JobAccepted tells the customer an interpreter took the booking
func (t Texts) JobAccepted(job *domain.Job) string {
	return fmt.Sprintf("Your booking for a %s interpreter, %dmin, %s has been accepted. Open the app to see the interpreter details.",
		t.Language(job.FromLanguageID), job.Duration, t.Due(job.Due))
}

// JobCancelled tells the translator the customer withdrew the booking
func (t Texts) JobCancelled(job *domain.Job) string {
	return fmt.Sprintf("The customer cancelled the booking for a %s interpreter, %dmin, %s.",
		t.Language(job.FromLanguageID), job.Duration, t.Due(job.Due))
}

// TranslatorCancelled tells the customer their interpreter withdrew
func (t Texts) TranslatorCancelled(job *domain.Job) string {
	return fmt.Sprintf("Your %s interpreter for %s cancelled. We are looking for a new interpreter.",
		t.Language(job.FromLanguageID), t.Due(job.Due))
}

// SessionStartRemind tells a translator they now hold the booking
func (t Texts) SessionStartRemind(job *domain.Job) string {
	kind := "phone"
	if job.CustomerPhysicalType {
		kind = "on-site"
	}
	return fmt.Sprintf("You now have the %s %s interpretation, %dmin, on %s. Please make sure you are prepared. Thank you!",
		kind, t.Language(job.FromLanguageID), job.Duration, t.Due(job.Due))
}

// SMS renders the text sent to translators for a booking. town is the
// location shown for on-site jobs.
func (t Texts) SMS(job *domain.Job, town string) string {
	due := job.Due.In(t.loc())
	date := due.Format(smsDateLayout)
	clock := due.Format(smsTimeLayout)
	duration := FormatMinutes(job.Duration)

	if job.InPersonOnly() {
		return fmt.Sprintf("New booking: on-site %s interpretation in %s on %s at %s, %s. Booking #%d. Accept it in the app.",
			t.Language(job.FromLanguageID), town, date, clock, duration, job.ID)
	}
	return fmt.Sprintf("New booking: phone %s interpretation on %s at %s, %s. Booking #%d. Accept it in the app.",
		t.Language(job.FromLanguageID), date, clock, duration, job.ID)
}

// Subject renders the email subject for a template
func (t Texts) Subject(template string, jobID int64) string {
	switch template {
	case TemplateJobCreated:
		return fmt.Sprintf("Booking #%d received", jobID)
	case TemplateJobAccepted:
		return fmt.Sprintf("Confirmation: an interpreter accepted your booking (booking #%d)", jobID)
	case TemplateChangedTranslatorCust, TemplateChangedTranslatorOld, TemplateChangedTranslatorNew:
		return fmt.Sprintf("Interpreter assignment notice for booking #%d", jobID)
	case TemplateSessionEnded:
		return fmt.Sprintf("Information about completed interpretation for booking #%d", jobID)
	case TemplateJobCancelledTranslator:
		return fmt.Sprintf("Booking #%d was cancelled", jobID)
	default:
		return fmt.Sprintf("Changes to booking #%d", jobID)
	}
}

// FormatMinutes renders a duration in minutes as "45min", "1h" or "01h 30min"
func FormatMinutes(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dmin", minutes)
	case minutes == 60:
		return "1h"
	}
	return fmt.Sprintf("%02dh %02dmin", minutes/60, minutes%60)
}

// JobData is the payload attached to push notifications about a booking
func (t Texts) JobData(job *domain.Job, notificationType string) map[string]any {
	due := job.Due.In(t.loc())
	return map[string]any{
		"notification_type":      notificationType,
		"job_id":                 job.ID,
		"from_language_id":       job.FromLanguageID,
		"language":               t.Language(job.FromLanguageID),
		"immediate":              job.Immediate,
		"duration":               job.Duration,
		"status":                 string(job.Status),
		"gender":                 string(job.Gender),
		"certified":              string(job.Certified),
		"due":                    due.Format(dueLayout),
		"due_date":               due.Format("2006-01-02"),
		"due_time":               due.Format("15:04:05"),
		"job_type":               string(job.JobType),
		"customer_phone_type":    job.CustomerPhoneType,
		"customer_physical_type": job.CustomerPhysicalType,
		"customer_town":          job.Town,
		"job_for":                JobFor(job),
	}
}

// JobFor lists the requirement labels shown to translators
func JobFor(job *domain.Job) []string {
	labels := []string{}
	switch job.Gender {
	case domain.GenderMale:
		labels = append(labels, "Male")
	case domain.GenderFemale:
		labels = append(labels, "Female")
	}
	switch job.Certified {
	case domain.CertificationAny:
	case domain.CertificationBoth:
		labels = append(labels, "normal", "certified")
	case domain.CertificationYes:
		labels = append(labels, "certified")
	default:
		labels = append(labels, string(job.Certified))
	}
	return labels
}
