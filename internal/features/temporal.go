package features

import (
	"errors"
	"fmt"
	"time"

	"dcl-forecast/internal/model"
)

// ErrUnknownTemporalFeature is returned for a calendar feature name not listed below.
var ErrUnknownTemporalFeature = errors.New("unknown temporal feature")

// Calendar features computed from each EFA boundary's civil timestamp. EFA-1
// opens on the previous evening, so it carries the previous day's calendar.
var temporalFeatures = map[string]func(time.Time) float64{
	"hour":    func(t time.Time) float64 { return float64(t.Hour()) },
	"day":     func(t time.Time) float64 { return float64(t.Day()) },
	"month":   func(t time.Time) float64 { return float64(t.Month()) },
	"weekday": func(t time.Time) float64 { return float64(mondayFirst(t.Weekday())) },
	// 0 Monday to Friday, 1 at the weekend.
	"working_day": func(t time.Time) float64 {
		if mondayFirst(t.Weekday()) < 5 {
			return 0
		}
		return 1
	},
}

// DefaultTemporalFeatures is the calendar set used for DCL models.
var DefaultTemporalFeatures = []string{"month", "working_day"}

// TemporalFeatures builds calendar columns over index, in the order requested.
func TemporalFeatures(index []time.Time, names []string) (*model.Frame, error) {
	out := model.NewFrame(index)
	for _, n := range names {
		fn, ok := temporalFeatures[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTemporalFeature, n)
		}
		values := make([]float64, len(index))
		for i, t := range index {
			values[i] = fn(t)
		}
		if err := out.AddColumn(n, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mondayFirst maps Monday=0 .. Sunday=6.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}
