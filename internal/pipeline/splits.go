package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidSplit is returned when the requested folds do not fit the sample count.
var ErrInvalidSplit = errors.New("invalid time series split")

// Split is one expanding-window fold over row positions. Ranges are half-open.
type Split struct {
	TrainStart, TrainEnd int
	TestStart, TestEnd   int
}

// Train returns the training row positions.
func (s Split) Train() []int { return span(s.TrainStart, s.TrainEnd) }

// Test returns the validation row positions.
func (s Split) Test() []int { return span(s.TestStart, s.TestEnd) }

// TimeSeriesSplits partitions n ordered samples into nSplits folds. Each fold
// validates on the testSize rows following its training window, and training
// always starts at row 0, so the last fold ends at n. A testSize <= 0 means
// n / (nSplits + 1).
func TimeSeriesSplits(n, nSplits, testSize int) ([]Split, error) {
	if nSplits < 2 {
		return nil, fmt.Errorf("%w: need at least 2 splits, got %d", ErrInvalidSplit, nSplits)
	}
	if nSplits+1 > n {
		return nil, fmt.Errorf("%w: %d folds for %d samples", ErrInvalidSplit, nSplits+1, n)
	}
	if testSize <= 0 {
		testSize = n / (nSplits + 1)
	}
	firstTest := n - nSplits*testSize
	if firstTest <= 0 {
		return nil, fmt.Errorf("%w: %d splits of %d rows leave no training data in %d samples",
			ErrInvalidSplit, nSplits, testSize, n)
	}

	out := make([]Split, 0, nSplits)
	for start := firstTest; start < n; start += testSize {
		out = append(out, Split{TrainStart: 0, TrainEnd: start, TestStart: start, TestEnd: start + testSize})
	}
	return out, nil
}

func span(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
