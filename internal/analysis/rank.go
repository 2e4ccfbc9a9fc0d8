package analysis

import (
	"math"
	"sort"

	"dcl-forecast/internal/pipeline"
)

// RankByCorrelation profiles ds and sorts columns by absolute correlation with
// the target, strongest first. Columns without a defined correlation go last.
func RankByCorrelation(ds *pipeline.Dataset) []ColumnProfile {
	out := Profile(ds)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := math.Abs(out[i].Correlation), math.Abs(out[j].Correlation)
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if math.IsNaN(a) {
			return false
		}
		return a > b
	})
	return out
}
