package notify

import (
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
)

// Target is one translator chosen for an announcement
type Target struct {
	TranslatorID int64
	Email        string
	Delayed      bool
}

// Buckets splits announcement targets by delivery time
type Buckets struct {
	Immediate []Target
	Delayed   []Target
	SendAfter time.Time
}

// NeedsDelay reports whether a recipient who opted out of night-time
// notifications must wait for business hours
func NeedsDelay(optedOut bool, now time.Time, night *schedule.NightPolicy) bool {
	return optedOut && night != nil && night.IsNightTime(now)
}

// Partition places every admissible translator in exactly one bucket
func Partition(translators []domain.Translator, now time.Time, night *schedule.NightPolicy) Buckets {
	var b Buckets
	for _, t := range translators {
		target := Target{TranslatorID: t.ID, Email: t.Email}
		if NeedsDelay(t.NotGetNighttime, now, night) {
			target.Delayed = true
			b.Delayed = append(b.Delayed, target)
			continue
		}
		b.Immediate = append(b.Immediate, target)
	}
	if len(b.Delayed) > 0 {
		b.SendAfter = night.NextBusinessTime(now)
	}
	return b
}

func emails(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Email)
	}
	return out
}
