package features

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

// ErrInvalidLag is returned for a negative lag.
var ErrInvalidLag = errors.New("invalid lag")

// minLookbackDays is the history fetched ahead of the first trading date even
// for small lags.
const minLookbackDays = 2

// LagSpec maps a parameter (a column of the source frame) to lag multiples,
// each unit being one EFA block.
type LagSpec map[string][]int

// DefaultLagSpec is the day-ago and two-days-ago price of the two response
// products most correlated with DCL.
func DefaultLagSpec() LagSpec {
	return LagSpec{"dcl_price": {6, 12}, "drl_price": {6, 12}}
}

func (s LagSpec) Validate() error {
	for p, lags := range s {
		for _, l := range lags {
			if l < 0 {
				return fmt.Errorf("%w: %s lag %d", ErrInvalidLag, p, l)
			}
		}
	}
	return nil
}

// Parameters returns the parameter names in output order.
func (s LagSpec) Parameters() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Columns returns the lag column names in output order.
func (s LagSpec) Columns() []string {
	var out []string
	for _, p := range s.Parameters() {
		for _, l := range s[p] {
			out = append(out, efa.LagColumn(p, l))
		}
	}
	return out
}

// MaxLag is the largest lag in blocks.
func (s LagSpec) MaxLag() int {
	max := 0
	for _, lags := range s {
		for _, l := range lags {
			if l > max {
				max = l
			}
		}
	}
	return max
}

// LookbackDays is how many extra days of history the lag source must cover
// before the first trading date.
func (s LagSpec) LookbackDays() int {
	span := time.Duration(s.MaxLag()) * efa.BlockDuration
	days := int((span + 24*time.Hour - 1) / (24 * time.Hour))
	if days < minLookbackDays {
		return minLookbackDays
	}
	return days
}

// BuildLags shifts each parameter's history forward by lag*4h and samples it on
// index. Timestamps without history stay missing; a parameter absent from
// source yields all-missing columns.
func BuildLags(index []time.Time, source *model.Frame, spec LagSpec) (*model.Frame, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	out := model.NewFrame(index, spec.Columns()...)
	for _, p := range spec.Parameters() {
		for _, l := range spec[p] {
			name := efa.LagColumn(p, l)
			shift := time.Duration(l) * efa.BlockDuration
			for i, t := range index {
				if v, ok := source.At(p, t.Add(-shift)); ok {
					out.Set(name, i, v)
				}
			}
		}
	}
	return out, nil
}
