package features

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

// Stat is an aggregation applied per EFA bin.
type Stat string

const (
	StatMin   Stat = "min"
	StatMax   Stat = "max"
	StatMean  Stat = "mean"
	StatFFill Stat = "ffill"
)

// DefaultStats is the min/max/mean set used for half-hourly sources.
var DefaultStats = []Stat{StatMin, StatMax, StatMean}

// ParseStat validates a statistic name from configuration.
func ParseStat(s string) (Stat, error) {
	switch st := Stat(strings.ToLower(strings.TrimSpace(s))); st {
	case StatMin, StatMax, StatMean, StatFFill:
		return st, nil
	default:
		return "", fmt.Errorf("unsupported statistic %q", s)
	}
}

// ParseStats parses a list of statistic names.
func ParseStats(names []string) ([]Stat, error) {
	out := make([]Stat, 0, len(names))
	for _, n := range names {
		st, err := ParseStat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// AggregateOptions controls binning. Zero values mean a 4-hour frequency anchored
// at the first input timestamp.
type AggregateOptions struct {
	Freq   time.Duration
	Origin time.Time
}

// StatColumns returns the output columns Aggregate produces for the given source
// columns: every source column crossed with every statistic.
func StatColumns(columns []string, stats []Stat) []string {
	out := make([]string, 0, len(columns)*len(stats))
	for _, c := range columns {
		for _, st := range stats {
			out = append(out, efa.StatColumn(c, string(st)))
		}
	}
	return out
}

// Aggregate resamples f into fixed bins and applies each statistic to each
// column. Bins are labelled by their left edge; bins with no observations inside
// the covered span are kept as missing rows. An empty input yields a zero-row
// frame with the expected columns.
func Aggregate(f *model.Frame, stats []Stat, opts AggregateOptions) *model.Frame {
	columns := StatColumns(f.Columns(), stats)
	if f.IsEmpty() || len(stats) == 0 {
		return model.Empty(columns...)
	}

	freq := opts.Freq
	if freq <= 0 {
		freq = efa.BlockDuration
	}
	index := f.Index()
	origin := opts.Origin
	if origin.IsZero() {
		origin = index[0]
	}

	binOf := func(t time.Time) int64 { return floorDiv(int64(t.Sub(origin)), int64(freq)) }
	firstBin, lastBin := binOf(index[0]), binOf(index[len(index)-1])
	labels := make([]time.Time, 0, lastBin-firstBin+1)
	for b := firstBin; b <= lastBin; b++ {
		labels = append(labels, origin.Add(time.Duration(b)*freq))
	}

	out := model.NewFrame(labels, columns...)
	for _, c := range f.Columns() {
		values, _ := f.Column(c)
		bins := make([]binStats, len(labels))
		for i, t := range index {
			if model.IsMissing(values[i]) {
				continue
			}
			bins[binOf(t)-firstBin].add(values[i])
		}

		for _, st := range stats {
			name := efa.StatColumn(c, string(st))
			if st == StatFFill {
				fillForward(out, name, labels, index, values)
				continue
			}
			for b := range bins {
				out.Set(name, b, bins[b].value(st))
			}
		}
	}
	return out
}

// ForwardFill samples f onto the grid start, start+freq, ... <= end, carrying the
// last observation at or before each grid point forward. A leading gap is filled
// backwards from the first observation, so the first row is never missing when
// the source produced any value. Column names are kept as they are.
func ForwardFill(f *model.Frame, freq time.Duration, start, end time.Time) *model.Frame {
	if f.IsEmpty() {
		return model.Empty(f.Columns()...)
	}
	if freq <= 0 {
		freq = efa.BlockDuration
	}
	var labels []time.Time
	for t := start; !t.After(end); t = t.Add(freq) {
		labels = append(labels, t)
	}

	index := f.Index()
	out := model.NewFrame(labels, f.Columns()...)
	for _, c := range f.Columns() {
		values, _ := f.Column(c)
		fillForward(out, c, labels, index, values)

		first := math.NaN()
		for _, v := range values {
			if !model.IsMissing(v) {
				first = v
				break
			}
		}
		for i := range labels {
			if !model.IsMissing(out.Value(c, i)) {
				break
			}
			out.Set(c, i, first)
		}
	}
	return out
}

// fillForward writes, for each label, the last non-missing observation at or
// before it. index must be ascending.
func fillForward(out *model.Frame, column string, labels, index []time.Time, values []float64) {
	j := 0
	last := math.NaN()
	for i, label := range labels {
		for j < len(index) && !index[j].After(label) {
			if !model.IsMissing(values[j]) {
				last = values[j]
			}
			j++
		}
		out.Set(column, i, last)
	}
}

type binStats struct {
	n             int
	sum, min, max float64
}

func (b *binStats) add(v float64) {
	if b.n == 0 || v < b.min {
		b.min = v
	}
	if b.n == 0 || v > b.max {
		b.max = v
	}
	b.sum += v
	b.n++
}

func (b binStats) value(st Stat) float64 {
	if b.n == 0 {
		return math.NaN()
	}
	switch st {
	case StatMin:
		return b.min
	case StatMax:
		return b.max
	case StatMean:
		return b.sum / float64(b.n)
	}
	return math.NaN()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
