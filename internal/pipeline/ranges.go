package pipeline

import (
	"time"

	"dcl-forecast/internal/efa"
)

const (
	// DefaultLookbackDays is the training history length.
	DefaultLookbackDays = 365
	// DefaultTarget is the column the model learns.
	DefaultTarget = "dcl_price"
)

// DefaultFloor is the first date with EAC frequency response results on the
// NESO portal.
var DefaultFloor = time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

// TrainingRange is the year of trading dates ending at end (today when nil),
// clipped so it never starts before floor.
func TrainingRange(end *time.Time, today time.Time, lookbackDays int, floor time.Time) (efa.DateRange, error) {
	last := efa.Midnight(today)
	if end != nil {
		last = efa.Midnight(*end)
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	first := last.AddDate(0, 0, -lookbackDays)
	if !floor.IsZero() && !first.After(floor) {
		first = efa.Midnight(floor)
	}
	return efa.NewDateRange(first, last)
}

// PredictionRange is the single trading date to forecast: date, or the day
// after today when nil.
func PredictionRange(date *time.Time, today time.Time) efa.DateRange {
	if date != nil {
		return efa.SingleDay(*date)
	}
	return efa.SingleDay(efa.Midnight(today).AddDate(0, 0, 1))
}
