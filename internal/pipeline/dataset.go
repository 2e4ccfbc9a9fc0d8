package pipeline

import (
	"fmt"
	"time"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

// Dataset is a feature matrix with an optional target series on the same index.
// Prediction datasets carry no target.
type Dataset struct {
	Range      efa.DateRange
	Features   *model.Frame
	TargetName string
	Target     []float64
}

// Len is the number of rows.
func (d *Dataset) Len() int { return d.Features.Len() }

// HasTarget reports whether the dataset can be used for training.
func (d *Dataset) HasTarget() bool { return d.TargetName != "" && d.Target != nil }

// Index returns the EFA boundaries of the rows.
func (d *Dataset) Index() []time.Time { return d.Features.Index() }

// Rows returns the dataset restricted to the half-open row range [from, to).
func (d *Dataset) Rows(from, to int) (*Dataset, error) {
	if from < 0 || to > d.Len() || from > to {
		return nil, fmt.Errorf("row range [%d, %d) outside dataset of %d rows", from, to, d.Len())
	}
	out := &Dataset{
		Range:      d.Range,
		Features:   d.Features.Reindex(d.Index()[from:to]),
		TargetName: d.TargetName,
	}
	if d.Target != nil {
		out.Target = append([]float64(nil), d.Target[from:to]...)
	}
	return out, nil
}

// Split returns the training and validation parts of one fold.
func (d *Dataset) Split(s Split) (train, test *Dataset, err error) {
	if train, err = d.Rows(s.TrainStart, s.TrainEnd); err != nil {
		return nil, nil, err
	}
	if test, err = d.Rows(s.TestStart, s.TestEnd); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
