// Package calendar answers trading-day questions for expiry bookkeeping.
package calendar

import (
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// maxLookback bounds the search for a trading day before an expiry.
const maxLookback = 20

// Calendar is an exchange calendar: weekends plus a holiday list are closed.
// It is immutable and safe for concurrent use.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// New creates a calendar in loc. A nil loc means UTC.
func New(loc *time.Location, holidays []time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	h := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		h[d.Format(models.DateLayout)] = true
	}
	return &Calendar{loc: loc, holidays: h}
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the calendar day of t (in the calendar zone) is a session.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	d := t.In(c.loc)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[d.Format(models.DateLayout)]
}

// LastTradingDay returns midnight of the last session on or before day.
// If no session is found within the lookback window, day itself is returned.
func (c *Calendar) LastTradingDay(day time.Time) time.Time {
	d := day.In(c.loc)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i <= maxLookback; i++ {
		candidate := d.AddDate(0, 0, -i)
		if c.IsTradingDay(candidate) {
			return candidate
		}
	}
	return d
}

// CloseCutoff returns the timestamp on the last session on or before expiry
// by which a position must be closed.
func (c *Calendar) CloseCutoff(expiry time.Time, cutoff config.ClockTime) time.Time {
	return cutoff.On(c.LastTradingDay(expiry), c.loc)
}
