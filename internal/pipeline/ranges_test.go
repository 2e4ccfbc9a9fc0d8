package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

func date(s string) time.Time {
	d, err := efa.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTrainingRange(t *testing.T) {
	today := date("2025-09-01")

	r, err := TrainingRange(nil, today, 365, DefaultFloor)
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01..2025-09-01", r.String())

	end := date("2024-12-31")
	r, err = TrainingRange(&end, today, 365, DefaultFloor)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-13..2024-12-31", r.String(), "clipped to the floor")

	early := date("2024-01-01")
	_, err = TrainingRange(&early, today, 365, DefaultFloor)
	assert.ErrorIs(t, err, efa.ErrInvalidRange)
}

func TestPredictionRange(t *testing.T) {
	assert.Equal(t, "2025-09-02..2025-09-02", PredictionRange(nil, date("2025-09-01")).String())
	d := date("2025-10-26")
	assert.Equal(t, "2025-10-26..2025-10-26", PredictionRange(&d, date("2025-09-01")).String())
}

func TestTimeSeriesSplits(t *testing.T) {
	splits, err := TimeSeriesSplits(10, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []Split{
		{TrainStart: 0, TrainEnd: 4, TestStart: 4, TestEnd: 6},
		{TrainStart: 0, TrainEnd: 6, TestStart: 6, TestEnd: 8},
		{TrainStart: 0, TrainEnd: 8, TestStart: 8, TestEnd: 10},
	}, splits)
	assert.Equal(t, []int{8, 9}, splits[2].Test())
	assert.Len(t, splits[0].Train(), 4)

	splits, err = TimeSeriesSplits(12, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, Split{TrainStart: 0, TrainEnd: 3, TestStart: 3, TestEnd: 6}, splits[0])

	_, err = TimeSeriesSplits(10, 4, 3)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	_, err = TimeSeriesSplits(3, 3, 0)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	_, err = TimeSeriesSplits(10, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidSplit)
}

func TestDataset_Split(t *testing.T) {
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-12")
	index := efa.Index(r)
	f := model.NewFrame(index)
	require.NoError(t, f.AddColumn("x", []float64{0, 1, 2, 3, 4, 5}))
	ds := &Dataset{Range: r, Features: f, TargetName: "dcl_price", Target: []float64{10, 11, 12, 13, 14, 15}}

	splits, err := TimeSeriesSplits(ds.Len(), 2, 2)
	require.NoError(t, err)
	train, test, err := ds.Split(splits[1])
	require.NoError(t, err)
	assert.Equal(t, 4, train.Len())
	assert.Equal(t, []float64{14, 15}, test.Target)
	x, _ := test.Features.Column("x")
	assert.Equal(t, []float64{4, 5}, x)

	_, err = ds.Rows(4, 9)
	assert.Error(t, err)
}
