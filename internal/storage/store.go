package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/export"
	"dcl-forecast/internal/pipeline"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("feature run not found")

// Run kinds.
const (
	KindFeatures   = "features"
	KindTraining   = "training"
	KindPrediction = "prediction"
)

// RunInfo describes a stored feature run without its values.
type RunInfo struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Target    string    `json:"target,omitempty"`
	Columns   []string  `json:"columns"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is a stored dataset in long format, in the order export.LongRecords
// produced it.
type Run struct {
	RunInfo
	Records []export.FeatureRecord `json:"records"`
}

// Store persists feature runs.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
}

// NewRun snapshots ds under a fresh id.
func NewRun(kind string, ds *pipeline.Dataset, clock *efa.Clock, now time.Time) *Run {
	return &Run{
		RunInfo: RunInfo{
			ID:        uuid.New(),
			Kind:      kind,
			Start:     ds.Range.Start,
			End:       ds.Range.End,
			Target:    ds.TargetName,
			Columns:   ds.Features.Columns(),
			RowCount:  ds.Len(),
			CreatedAt: now.UTC(),
		},
		Records: export.LongRecords(ds, clock),
	}
}

func (r *Run) clone() *Run {
	out := *r
	out.Columns = append([]string(nil), r.Columns...)
	out.Records = append([]export.FeatureRecord(nil), r.Records...)
	return &out
}
