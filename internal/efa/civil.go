package efa

import (
	"fmt"
	"time"
)

// DefaultZone is the market's civil time zone.
const DefaultZone = "Europe/London"

// DateLayout is the calendar-date format used by the data API and the CLI.
const DateLayout = "2006-01-02"

// Clock converts between UTC instants and civil time.
//
// A civil timestamp is a time.Time in time.UTC whose wall-clock fields are the
// market's local wall clock. Adding durations to civil timestamps never crosses a
// daylight-saving discontinuity, so every EFA computation works on civil values and
// only Clock touches real zone rules.
//
// Nonexistent local times (spring-forward gap) resolve shift-forward to the first
// valid instant after the gap. Ambiguous local times (fall-back) resolve to the
// earlier instant.
type Clock struct {
	loc *time.Location
}

// NewClock loads the named zone. An empty name means DefaultZone.
func NewClock(zone string) (*Clock, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Clock{loc: loc}, nil
}

// MustClock is NewClock for package-level defaults and tests.
func MustClock(zone string) *Clock {
	c, err := NewClock(zone)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the underlying zone.
func (c *Clock) Location() *time.Location { return c.loc }

// ToCivil converts an instant to civil wall-clock time.
func (c *Clock) ToCivil(instant time.Time) time.Time {
	l := instant.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// ToInstant converts a civil timestamp back to a UTC instant.
func (c *Clock) ToInstant(civil time.Time) time.Time {
	wall := asCivil(civil)

	// Every valid reading of wall uses one of the offsets in force half a day
	// either side of it.
	_, before := wall.Add(-12 * time.Hour).In(c.loc).Zone()
	_, after := wall.Add(12 * time.Hour).In(c.loc).Zone()

	var found []time.Time
	for _, off := range []int{before, after} {
		cand := wall.Add(-time.Duration(off) * time.Second)
		if c.ToCivil(cand).Equal(wall) {
			found = append(found, cand)
		}
	}
	if len(found) > 0 {
		best := found[0]
		for _, f := range found[1:] {
			if f.Before(best) {
				best = f
			}
		}
		return best.UTC()
	}

	// Gap: the transition instant lies between the two candidate readings.
	lo := wall.Add(-time.Duration(after) * time.Second)
	hi := wall.Add(-time.Duration(before) * time.Second)
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(c.loc).Zone(); off == before {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Second).UTC()
}

// Today returns the civil midnight of the day containing now.
func (c *Clock) Today(now time.Time) time.Time {
	return Midnight(c.ToCivil(now))
}

// ParseDate parses a YYYY-MM-DD calendar date into a civil midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// Midnight truncates a civil timestamp to the start of its day.
func Midnight(t time.Time) time.Time {
	t = asCivil(t)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// asCivil reinterprets the wall-clock fields of t as a civil timestamp.
func asCivil(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
