package schedule

import (
	"fmt"
	"time"
)

// SendAfterLayout is the timestamp layout the push gateway accepts for
// scheduled delivery
const SendAfterLayout = "2006-01-02 15:04:05 GMT-0700"

// NightPolicy knows when translators who opted out of night-time
// notifications must not be disturbed
type NightPolicy struct {
	loc           *time.Location
	nightStart    int // minutes after midnight
	businessStart int
}

// NewNightPolicy parses "HH:MM" boundaries interpreted in loc
func NewNightPolicy(loc *time.Location, nightStart, businessStart string) (*NightPolicy, error) {
	if loc == nil {
		loc = time.UTC
	}

	ns, err := parseClock(nightStart)
	if err != nil {
		return nil, fmt.Errorf("invalid night_start: %w", err)
	}
	bs, err := parseClock(businessStart)
	if err != nil {
		return nil, fmt.Errorf("invalid business_start: %w", err)
	}
	if ns == bs {
		return nil, fmt.Errorf("night_start and business_start must differ")
	}

	return &NightPolicy{loc: loc, nightStart: ns, businessStart: bs}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsNightTime reports whether t falls inside the night window
func (p *NightPolicy) IsNightTime(t time.Time) bool {
	local := t.In(p.loc)
	m := local.Hour()*60 + local.Minute()

	if p.nightStart > p.businessStart {
		// window wraps midnight
		return m >= p.nightStart || m < p.businessStart
	}
	return m >= p.nightStart && m < p.businessStart
}

// NextBusinessTime returns the first business-hours start strictly after t
func (p *NightPolicy) NextBusinessTime(t time.Time) time.Time {
	local := t.In(p.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		p.businessStart/60, p.businessStart%60, 0, 0, p.loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1,
			p.businessStart/60, p.businessStart%60, 0, 0, p.loc)
	}
	return candidate
}

// FormatSendAfter renders t for the push gateway's send_after field
func FormatSendAfter(t time.Time) string {
	return t.Format(SendAfterLayout)
}
