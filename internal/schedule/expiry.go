package schedule

import "time"

// ExpiryPolicy decides when an unanswered pending booking times out
type ExpiryPolicy interface {
	WillExpireAt(due, reference time.Time) time.Time
}

// Expiry is the horizon-based expiry policy. The closer the booking is to
// its due time, the shorter it is offered to translators.
type Expiry struct {
	ShortHorizon  time.Duration
	ShortGrace    time.Duration
	MediumHorizon time.Duration
	MediumGrace   time.Duration
	LongLead      time.Duration
}

// DefaultExpiry returns the production windows
func DefaultExpiry() Expiry {
	return Expiry{
		ShortHorizon:  24 * time.Hour,
		ShortGrace:    90 * time.Minute,
		MediumHorizon: 72 * time.Hour,
		MediumGrace:   16 * time.Hour,
		LongLead:      48 * time.Hour,
	}
}

// WillExpireAt computes the expiry for a booking (re)opened at reference.
// The result never lies after due.
func (e Expiry) WillExpireAt(due, reference time.Time) time.Time {
	gap := due.Sub(reference)

	var at time.Time
	switch {
	case gap <= e.ShortHorizon:
		at = reference.Add(e.ShortGrace)
	case gap <= e.MediumHorizon:
		at = reference.Add(e.MediumGrace)
	default:
		at = due.Add(-e.LongLead)
	}

	if at.After(due) {
		return due
	}
	return at
}
