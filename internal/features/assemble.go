package features

import (
	"errors"
	"fmt"
	"time"

	"dcl-forecast/internal/model"
)

var (
	// ErrUnalignedIndex is returned when a part has a row that is not on the EFA index.
	ErrUnalignedIndex = errors.New("feature frame not aligned to efa index")
	// ErrDuplicateColumn is returned when two parts produce the same feature name.
	ErrDuplicateColumn = errors.New("duplicate feature column")
)

// MissingSourceError names a source that had no usable data.
type MissingSourceError struct {
	Source string
	Status model.Status
	Err    error
}

func (e *MissingSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature source %q unavailable (%s): %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("feature source %q unavailable (%s)", e.Source, e.Status)
}

func (e *MissingSourceError) Unwrap() error { return e.Err }

// AssembleOptions controls how unavailable sources are treated.
type AssembleOptions struct {
	// AllowMissing imputes missing values for unavailable sources instead of
	// failing.
	AllowMissing bool
}

// Assemble joins parts column-wise on index. Rows of the result are exactly
// index; parts may cover a subset of it. Column order follows part order.
func Assemble(index []time.Time, parts []model.SourceResult, opts AssembleOptions) (*model.Frame, error) {
	positions := make(map[int64]struct{}, len(index))
	for _, t := range index {
		positions[t.UnixNano()] = struct{}{}
	}

	out := model.NewFrame(index)
	for _, part := range parts {
		columns := part.Frame.Columns()
		if !part.OK() {
			if !opts.AllowMissing {
				return nil, &MissingSourceError{Source: part.Source, Status: part.Status, Err: part.Err}
			}
			for _, c := range columns {
				if err := out.AddColumn(c, missingColumn(len(index))); err != nil {
					return nil, fmt.Errorf("%w: %q from %s", ErrDuplicateColumn, c, part.Source)
				}
			}
			continue
		}

		for _, t := range part.Frame.Index() {
			if _, ok := positions[t.UnixNano()]; !ok {
				return nil, fmt.Errorf("%w: %s has row %s", ErrUnalignedIndex, part.Source, t.Format(time.RFC3339))
			}
		}
		aligned := part.Frame.Reindex(index)
		for _, c := range columns {
			values, _ := aligned.Column(c)
			if err := out.AddColumn(c, values); err != nil {
				return nil, fmt.Errorf("%w: %q from %s", ErrDuplicateColumn, c, part.Source)
			}
		}
	}
	return out, nil
}

func missingColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = model.Missing()
	}
	return col
}
