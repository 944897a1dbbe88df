package domain

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a booking
type JobStatus string

// Job status constants
const (
	StatusPending               JobStatus = "pending"
	StatusAssigned              JobStatus = "assigned"
	StatusStarted               JobStatus = "started"
	StatusCompleted             JobStatus = "completed"
	StatusWithdrawBefore24      JobStatus = "withdrawbefore24"
	StatusWithdrawAfter24       JobStatus = "withdrawafter24"
	StatusTimedOut              JobStatus = "timedout"
	StatusNotCarriedOutCustomer JobStatus = "not_carried_out_customer"
)

// AllStatuses lists every known status in lifecycle order
var AllStatuses = []JobStatus{
	StatusPending,
	StatusAssigned,
	StatusStarted,
	StatusCompleted,
	StatusWithdrawBefore24,
	StatusWithdrawAfter24,
	StatusTimedOut,
	StatusNotCarriedOutCustomer,
}

// ParseJobStatus validates a raw status string
func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
}

// Terminal reports whether no further transition can leave this status
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusWithdrawBefore24, StatusWithdrawAfter24, StatusNotCarriedOutCustomer:
		return true
	}
	return false
}

// JobType is the funding tier of a booking
type JobType string

const (
	JobTypePaid   JobType = "paid"
	JobTypeRWS    JobType = "rws"
	JobTypeUnpaid JobType = "unpaid"
)

// Gender is an optional translator gender requirement
type Gender string

const (
	GenderAny    Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Certification is the certification requirement a customer put on a booking
type Certification string

const (
	CertificationAny          Certification = ""
	CertificationYes          Certification = "yes"
	CertificationBoth         Certification = "both"
	CertificationLaw          Certification = "law"
	CertificationLawNeeded    Certification = "n_law"
	CertificationHealth       Certification = "health"
	CertificationHealthNeeded Certification = "n_health"
	CertificationNormal       Certification = "normal"
)

// Job is a request for interpretation at a given time
type Job struct {
	ID                   int64         `json:"id"`
	UserID               int64         `json:"user_id"`
	Status               JobStatus     `json:"status"`
	Due                  time.Time     `json:"due"`
	Immediate            bool          `json:"immediate"`
	FromLanguageID       int64         `json:"from_language_id"`
	Duration             int           `json:"duration"`
	Gender               Gender        `json:"gender,omitempty"`
	Certified            Certification `json:"certified,omitempty"`
	JobType              JobType       `json:"job_type"`
	CustomerPhoneType    bool          `json:"customer_phone_type"`
	CustomerPhysicalType bool          `json:"customer_physical_type"`
	Town                 string        `json:"town,omitempty"`
	SessionTime          time.Duration `json:"session_time,omitempty"`
	AdminComments        string        `json:"admin_comments,omitempty"`
	Reference            string        `json:"reference,omitempty"`
	UserEmail            string        `json:"user_email,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	WillExpireAt         time.Time     `json:"will_expire_at"`
	WithdrawAt           *time.Time    `json:"withdraw_at,omitempty"`
	EndAt                *time.Time    `json:"end_at,omitempty"`
	ExpiryNotified       bool          `json:"expiry_notified"`
}

// InPersonOnly reports whether the booking needs the translator on site with
// no phone fallback
func (j *Job) InPersonOnly() bool {
	return j.CustomerPhysicalType && !j.CustomerPhoneType
}

// Clone returns a copy that shares no pointers with j
func (j *Job) Clone() *Job {
	c := *j
	if j.WithdrawAt != nil {
		t := *j.WithdrawAt
		c.WithdrawAt = &t
	}
	if j.EndAt != nil {
		t := *j.EndAt
		c.EndAt = &t
	}
	return &c
}

// Assignment links one translator to one job for one participation interval
type Assignment struct {
	ID           int64      `json:"id"`
	JobID        int64      `json:"job_id"`
	TranslatorID int64      `json:"translator_id"`
	CreatedAt    time.Time  `json:"created_at"`
	CancelAt     *time.Time `json:"cancel_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CompletedBy  *int64     `json:"completed_by,omitempty"`
}

// Active reports whether the assignment is neither cancelled nor completed
func (a *Assignment) Active() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}

// ReopenMarker records that an admin reopened a booking. It is history only
// and never counts as an assignment.
type ReopenMarker struct {
	JobID             int64     `json:"job_id"`
	ReopenedFromJobID int64     `json:"reopened_from_job_id"`
	ReopenedBy        int64     `json:"reopened_by"`
	ReopenedAt        time.Time `json:"reopened_at"`
}

// AuditEntry is an append-only record of one mutation
type AuditEntry struct {
	ID        int64              `json:"id"`
	ActorID   int64              `json:"actor_id"`
	JobID     int64              `json:"job_id"`
	Changes   []ChangeDescriptor `json:"changes"`
	CreatedAt time.Time          `json:"created_at"`
}
