// Package eligibility decides which translators may be offered a booking.
// Everything here is a pure function of the snapshots passed in.
package eligibility

import (
	"github.com/cuongbtq/booking-dispatch/internal/domain"
)

// Reasons a translator is left out of a pool
const (
	ReasonNone          = ""
	ReasonNotTranslator = "not an active translator"
	ReasonExcluded      = "excluded"
	ReasonOptedOut      = "opted out of notifications"
	ReasonNoEmergency   = "opted out of emergency bookings"
	ReasonJobType       = "job type mismatch"
	ReasonLanguage      = "language mismatch"
	ReasonGender        = "gender mismatch"
	ReasonLevel         = "translator level not accepted"
	ReasonTown          = "different town for in-person booking"
	ReasonBlacklisted   = "blacklisted by customer"
)

// Blacklist is the set of translators a customer blocked
type Blacklist map[int64]struct{}

// NewBlacklist builds a set from ids
func NewBlacklist(ids ...int64) Blacklist {
	bl := make(Blacklist, len(ids))
	for _, id := range ids {
		bl[id] = struct{}{}
	}
	return bl
}

// Contains reports whether id is blocked
func (b Blacklist) Contains(id int64) bool {
	_, ok := b[id]
	return ok
}

var (
	certifiedLevels = []domain.TranslatorLevel{
		domain.LevelCertified,
		domain.LevelCertifiedLaw,
		domain.LevelCertifiedHealth,
	}
	lawLevels    = []domain.TranslatorLevel{domain.LevelCertifiedLaw}
	healthLevels = []domain.TranslatorLevel{domain.LevelCertifiedHealth}
	laymanLevels = []domain.TranslatorLevel{domain.LevelLayman, domain.LevelReadCourses}
	allLevels    = append(append([]domain.TranslatorLevel{}, certifiedLevels...), laymanLevels...)
)

// LevelsFor maps a certification requirement to the accepted translator levels
func LevelsFor(c domain.Certification) []domain.TranslatorLevel {
	switch c {
	case domain.CertificationAny:
		return allLevels
	case domain.CertificationYes, domain.CertificationBoth:
		return certifiedLevels
	case domain.CertificationLaw, domain.CertificationLawNeeded:
		return lawLevels
	case domain.CertificationHealth, domain.CertificationHealthNeeded:
		return healthLevels
	default:
		return laymanLevels
	}
}

// TranslatorTypeFor is the inverse of TranslatorType.JobType
func TranslatorTypeFor(jt domain.JobType) domain.TranslatorType {
	switch jt {
	case domain.JobTypeRWS:
		return domain.TranslatorRWS
	case domain.JobTypeUnpaid:
		return domain.TranslatorVolunteer
	default:
		return domain.TranslatorProfessional
	}
}

// Filter evaluates admissibility rules. TranslatorRoleID identifies
// translator accounts among all users.
type Filter struct {
	TranslatorRoleID int64
}

// New creates a Filter
func New(translatorRoleID int64) *Filter {
	return &Filter{TranslatorRoleID: translatorRoleID}
}

// IsEligible reports whether t may be offered job
func (f *Filter) IsEligible(t *domain.Translator, job *domain.Job, blacklist Blacklist, excludeID int64) bool {
	return f.Explain(t, job, blacklist, excludeID) == ReasonNone
}

// Explain returns the first rule t fails for job, or ReasonNone
func (f *Filter) Explain(t *domain.Translator, job *domain.Job, blacklist Blacklist, excludeID int64) string {
	if t.RoleID != f.TranslatorRoleID || !t.Active {
		return ReasonNotTranslator
	}
	if excludeID != 0 && t.ID == excludeID {
		return ReasonExcluded
	}

	if t.NotGetNotification {
		return ReasonOptedOut
	}
	if job.Immediate && t.NotGetEmergency {
		return ReasonNoEmergency
	}

	if reason := Matches(t, job); reason != ReasonNone {
		return reason
	}

	if blacklist.Contains(t.ID) {
		return ReasonBlacklisted
	}
	return ReasonNone
}

// Matches checks pool membership and the town constraint only. It is the
// part of the rules that does not depend on notification preferences.
func Matches(t *domain.Translator, job *domain.Job) string {
	if t.Type.JobType() != job.JobType {
		return ReasonJobType
	}
	if !t.Speaks(job.FromLanguageID) {
		return ReasonLanguage
	}
	if job.Gender != domain.GenderAny && t.Gender != job.Gender {
		return ReasonGender
	}
	if !levelAccepted(t.Level, LevelsFor(job.Certified)) {
		return ReasonLevel
	}
	if job.InPersonOnly() && t.Town != job.Town {
		return ReasonTown
	}
	return ReasonNone
}

func levelAccepted(level domain.TranslatorLevel, accepted []domain.TranslatorLevel) bool {
	for _, l := range accepted {
		if l == level {
			return true
		}
	}
	return false
}

// Candidates returns the admissible translators of roster as a new slice.
// roster is left untouched.
func (f *Filter) Candidates(roster []domain.Translator, job *domain.Job, blacklist Blacklist, excludeID int64) []domain.Translator {
	out := make([]domain.Translator, 0, len(roster))
	for i := range roster {
		if f.IsEligible(&roster[i], job, blacklist, excludeID) {
			out = append(out, roster[i])
		}
	}
	return out
}

// PotentialJobs returns the pending jobs t could accept. blacklists is keyed
// by customer id; a missing entry means an empty blacklist.
func PotentialJobs(t *domain.Translator, jobs []domain.Job, blacklists map[int64]Blacklist) []domain.Job {
	out := make([]domain.Job, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.Status != domain.StatusPending {
			continue
		}
		if Matches(t, job) != ReasonNone {
			continue
		}
		if blacklists[job.UserID].Contains(t.ID) {
			continue
		}
		out = append(out, *job)
	}
	return out
}
