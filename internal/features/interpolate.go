package features

import (
	"time"

	"dcl-forecast/internal/model"
)

// UpsampleQuadratic puts every column of f on a regular grid of the given step
// and fills interior gaps by quadratic interpolation.
//
// The grid runs from the first to the last timestamp floored to step. Only
// observations falling exactly on a grid point are kept as knots. Each gap is
// filled from the parabola through the two bracketing knots plus the nearer of
// their outer neighbours; with only two knots the fill is linear. Points before
// the first or after the last knot stay missing.
//
// This is a piecewise local fit, not a global quadratic spline through all
// knots, so interior values can differ slightly from a spline fill.
func UpsampleQuadratic(f *model.Frame, step time.Duration) *model.Frame {
	if f.IsEmpty() {
		return model.Empty(f.Columns()...)
	}
	index := f.Index()
	first := index[0].Truncate(step)
	last := index[len(index)-1].Truncate(step)

	var grid []time.Time
	for t := first; !t.After(last); t = t.Add(step) {
		grid = append(grid, t)
	}
	out := f.Reindex(grid)

	for _, c := range out.Columns() {
		values, _ := out.Column(c)
		var knots []int
		for i, v := range values {
			if !model.IsMissing(v) {
				knots = append(knots, i)
			}
		}
		if len(knots) < 2 {
			continue
		}
		for k := 0; k+1 < len(knots); k++ {
			a, b := knots[k], knots[k+1]
			if b-a < 2 {
				continue
			}
			xs := []int{a, b}
			switch {
			case k > 0 && k+2 < len(knots):
				if a-knots[k-1] <= knots[k+2]-b {
					xs = append(xs, knots[k-1])
				} else {
					xs = append(xs, knots[k+2])
				}
			case k > 0:
				xs = append(xs, knots[k-1])
			case k+2 < len(knots):
				xs = append(xs, knots[k+2])
			}
			for i := a + 1; i < b; i++ {
				out.Set(c, i, lagrange(xs, values, i))
			}
		}
	}
	return out
}

// lagrange evaluates the polynomial through (x, ys[x]) for x in xs at position at.
func lagrange(xs []int, ys []float64, at int) float64 {
	sum := 0.0
	for i, xi := range xs {
		term := ys[xi]
		for j, xj := range xs {
			if i == j {
				continue
			}
			term *= float64(at-xj) / float64(xi-xj)
		}
		sum += term
	}
	return sum
}
