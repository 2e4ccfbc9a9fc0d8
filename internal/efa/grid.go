package efa

import (
	"errors"
	"fmt"
	"time"
)

const (
	// BlockDuration is the length of one EFA block.
	BlockDuration = 4 * time.Hour
	// SettlementPeriod is the length of one half-hourly settlement period.
	SettlementPeriod = 30 * time.Minute
	// BlocksPerDay is the number of EFA blocks in a trading day.
	BlocksPerDay = 6
	// PeriodsPerBlock is the number of settlement periods in one EFA block.
	PeriodsPerBlock = int(BlockDuration / SettlementPeriod)

	// EFA-1 opens at 23:00 on the calendar day before the trading date.
	blockOneOffset = -1 * time.Hour
	// EFA-6 opens at 19:00 on the trading date.
	blockSixOffset = 19 * time.Hour
	// The last settlement period of EFA-6 starts at 22:30.
	lastPeriodOffset = 22*time.Hour + 30*time.Minute
)

// ErrInvalidRange is returned when a date range ends before it starts.
var ErrInvalidRange = errors.New("invalid date range: start after end")

// DateRange is an inclusive range of trading dates, held as civil midnights.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a validated range from two civil dates.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Midnight(start), End: Midnight(end)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

// SingleDay is the range covering one trading date.
func SingleDay(d time.Time) DateRange {
	d = Midnight(d)
	return DateRange{Start: d, End: d}
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// Days is the number of trading dates in the range.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

// Extend widens the range by the given number of days on each side.
func (r DateRange) Extend(before, after int) DateRange {
	return DateRange{Start: r.Start.AddDate(0, 0, -before), End: r.End.AddDate(0, 0, after)}
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// QueryWindow returns the calendar-date bounds to send to the data API.
//
// The API filter is inclusive of the start and exclusive of the end day, so the
// window is widened one day each side to cover EFA-1 (23:00 the evening before the
// first date) through EFA-6 of the last date.
func QueryWindow(r DateRange) (start, end string) {
	return r.Start.AddDate(0, 0, -1).Format(DateLayout), r.End.AddDate(0, 0, 1).Format(DateLayout)
}

// Index returns the EFA block opening boundaries for the range: from 23:00 on the
// day before Start through 19:00 on End, every four hours.
func Index(r DateRange) []time.Time {
	first := r.Start.Add(blockOneOffset)
	last := r.End.Add(blockSixOffset)
	out := make([]time.Time, 0, r.Days()*BlocksPerDay)
	for t := first; !t.After(last); t = t.Add(BlockDuration) {
		out = append(out, t)
	}
	return out
}

// IndexBounds returns the first and last EFA boundary of the range.
func IndexBounds(r DateRange) (start, end time.Time) {
	return r.Start.Add(blockOneOffset), r.End.Add(blockSixOffset)
}

// SettlementBounds returns the first and last settlement-period start covered by
// the trading window: 23:00 on the day before Start and 22:30 on End.
func SettlementBounds(r DateRange) (start, end time.Time) {
	return r.Start.Add(blockOneOffset), r.End.Add(lastPeriodOffset)
}

// SettlementPeriods lists every settlement-period start inside SettlementBounds.
func SettlementPeriods(r DateRange) []time.Time {
	start, end := SettlementBounds(r)
	out := make([]time.Time, 0, r.Days()*BlocksPerDay*PeriodsPerBlock)
	for t := start; !t.After(end); t = t.Add(SettlementPeriod) {
		out = append(out, t)
	}
	return out
}

// BlockOf returns the trading date and the EFA block number (1..6) that contain
// the civil timestamp t.
func BlockOf(t time.Time) (tradingDate time.Time, block int) {
	shifted := asCivil(t).Add(-blockOneOffset)
	day := Midnight(shifted)
	block = int(shifted.Sub(day)/BlockDuration) + 1
	return day, block
}

// BlockStart returns the opening boundary of the given block on a trading date.
func BlockStart(tradingDate time.Time, block int) (time.Time, error) {
	if block < 1 || block > BlocksPerDay {
		return time.Time{}, fmt.Errorf("efa block %d out of range 1..%d", block, BlocksPerDay)
	}
	return Midnight(tradingDate).Add(blockOneOffset + time.Duration(block-1)*BlockDuration), nil
}
