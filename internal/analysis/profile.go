package analysis

import (
	"math"
	"sort"

	"dcl-forecast/internal/pipeline"
)

// ColumnProfile summarises one feature column of a dataset. Statistics cover
// present values only.
type ColumnProfile struct {
	Column string

	Count   int
	Missing int

	Min  float64
	Max  float64
	Mean float64
	P05  float64
	P95  float64

	// Correlation is the Pearson correlation with the target over rows where
	// both are present; NaN when undefined.
	Correlation float64
}

// Coverage is the fraction of rows with a value.
func (p ColumnProfile) Coverage() float64 {
	total := p.Count + p.Missing
	if total == 0 {
		return 0
	}
	return float64(p.Count) / float64(total)
}

// ProfileColumn computes the summary of values against target (may be nil).
func ProfileColumn(name string, values, target []float64) ColumnProfile {
	p := ColumnProfile{Column: name, Correlation: math.NaN()}
	vals := make([]float64, 0, len(values))
	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			p.Missing++
			continue
		}
		vals = append(vals, v)
		sum += v
	}
	p.Count = len(vals)
	if p.Count == 0 {
		p.Min, p.Max, p.Mean, p.P05, p.P95 = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return p
	}
	sort.Float64s(vals)
	p.Min = vals[0]
	p.Max = vals[len(vals)-1]
	p.Mean = sum / float64(len(vals))
	p.P05 = percentileSorted(vals, 0.05)
	p.P95 = percentileSorted(vals, 0.95)
	if len(target) == len(values) {
		p.Correlation = pearson(values, target)
	}
	return p
}

// Profile summarises every feature column of ds, in column order.
func Profile(ds *pipeline.Dataset) []ColumnProfile {
	var target []float64
	if ds.HasTarget() {
		target = ds.Target
	}
	columns := ds.Features.Columns()
	out := make([]ColumnProfile, 0, len(columns))
	for _, c := range columns {
		values, _ := ds.Features.Column(c)
		out = append(out, ProfileColumn(c, values, target))
	}
	return out
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// pearson skips pairs with a missing side. Needs two pairs and non-zero
// variance on both sides.
func pearson(x, y []float64) float64 {
	var n, sx, sy float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		n++
		sx += x[i]
		sy += y[i]
	}
	if n < 2 {
		return math.NaN()
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}
