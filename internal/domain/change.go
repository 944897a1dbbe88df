package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind names one observable delta produced by a mutation
type ChangeKind string

const (
	ChangeDateChanged            ChangeKind = "date_changed"
	ChangeTranslatorChanged      ChangeKind = "translator_changed"
	ChangeLanguageChanged        ChangeKind = "language_changed"
	ChangeStatusChanged          ChangeKind = "status_changed"
	ChangeNewJobCreated          ChangeKind = "new_job_created"
	ChangeJobCancelled           ChangeKind = "job_cancelled"
	ChangeTranslatorCancelled    ChangeKind = "translator_cancelled"
	ChangeJobExpired             ChangeKind = "job_expired"
	ChangeStatusChangedToPending ChangeKind = "status_changed_to_pending"
	ChangeJobAccepted            ChangeKind = "job_accepted"
	ChangeSessionEnded           ChangeKind = "session_ended"
	ChangeSMSRequested           ChangeKind = "sms_requested"
)

// ChangeDescriptor carries the old and new values relevant to its kind.
// Unused fields stay zero.
type ChangeDescriptor struct {
	Kind                ChangeKind    `json:"kind"`
	OldDue              *time.Time    `json:"old_due,omitempty"`
	NewDue              *time.Time    `json:"new_due,omitempty"`
	OldTranslatorID     int64         `json:"old_translator_id,omitempty"`
	NewTranslatorID     int64         `json:"new_translator_id,omitempty"`
	OldLanguageID       int64         `json:"old_language_id,omitempty"`
	NewLanguageID       int64         `json:"new_language_id,omitempty"`
	OldStatus           JobStatus     `json:"old_status,omitempty"`
	NewStatus           JobStatus     `json:"new_status,omitempty"`
	ExcludeTranslatorID int64         `json:"exclude_translator_id,omitempty"`
	TranslatorID        int64         `json:"translator_id,omitempty"`
	SessionTime         time.Duration `json:"session_time,omitempty"`
}

// DateChanged describes a due move
func DateChanged(oldDue, newDue time.Time) ChangeDescriptor {
	return ChangeDescriptor{Kind: ChangeDateChanged, OldDue: &oldDue, NewDue: &newDue}
}

// TranslatorChanged describes a reassignment; zero ids mean "nobody"
func TranslatorChanged(oldID, newID int64) ChangeDescriptor {
	return ChangeDescriptor{Kind: ChangeTranslatorChanged, OldTranslatorID: oldID, NewTranslatorID: newID}
}

// LanguageChanged describes a source language change
func LanguageChanged(oldID, newID int64) ChangeDescriptor {
	return ChangeDescriptor{Kind: ChangeLanguageChanged, OldLanguageID: oldID, NewLanguageID: newID}
}

// StatusChanged describes a status move
func StatusChanged(from, to JobStatus) ChangeDescriptor {
	return ChangeDescriptor{Kind: ChangeStatusChanged, OldStatus: from, NewStatus: to}
}

// Event is the envelope handed to the dispatcher once a mutation committed
type Event struct {
	ID         uuid.UUID          `json:"id"`
	ActorID    int64              `json:"actor_id"`
	Job        Job                `json:"job"`
	Changes    []ChangeDescriptor `json:"changes"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewEvent stamps a fresh event id
func NewEvent(actorID int64, job *Job, changes []ChangeDescriptor, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		ActorID:    actorID,
		Job:        *job.Clone(),
		Changes:    changes,
		OccurredAt: at,
	}
}
