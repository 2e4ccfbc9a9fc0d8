package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/model"
)

// fakeFetcher produces deterministic frames on the EFA grid of each request.
type fakeFetcher struct {
	mu        sync.Mutex
	requested map[string]efa.DateRange
	fail      map[string]model.Status
	// targetGap leaves dcl_price missing at this boundary.
	targetGap time.Time
}

func (f *fakeFetcher) record(source string, r efa.DateRange) (model.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requested == nil {
		f.requested = map[string]efa.DateRange{}
	}
	f.requested[source] = r
	st, failed := f.fail[source]
	return st, failed
}

func constant(r efa.DateRange, value float64, columns ...string) *model.Frame {
	index := efa.Index(r)
	out := model.NewFrame(index, columns...)
	for _, c := range columns {
		for i := range index {
			out.Set(c, i, value)
		}
	}
	return out
}

func (f *fakeFetcher) Margins(_ context.Context, r efa.DateRange) model.SourceResult {
	if st, failed := f.record("margins", r); failed {
		return model.Failed("margins", st, errors.New("down"), "negative_reserve")
	}
	return model.Succeeded("margins", constant(r, 1, "negative_reserve"))
}

func (f *fakeFetcher) Demand(_ context.Context, r efa.DateRange) model.SourceResult {
	if st, failed := f.record("demand", r); failed {
		return model.Failed("demand", st, nil, "forecastdemand_mean")
	}
	return model.Succeeded("demand", constant(r, 2, "forecastdemand_mean"))
}

func (f *fakeFetcher) BalancingReserve(_ context.Context, r efa.DateRange) model.SourceResult {
	if st, failed := f.record("balancing_reserve", r); failed {
		return model.Failed("balancing_reserve", st, nil, "pbr_price_mean")
	}
	return model.Succeeded("balancing_reserve", constant(r, 3, "pbr_price_mean"))
}

// FrequencyResponse returns dcl_price equal to hours since 2025-01-01 and a
// flat drl_price.
func (f *fakeFetcher) FrequencyResponse(_ context.Context, r efa.DateRange) model.SourceResult {
	if st, failed := f.record("frequency_response", r); failed {
		return model.Failed("frequency_response", st, errors.New("timeout"), "dcl_price", "drl_price")
	}
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := constant(r, 5, "dcl_price", "drl_price")
	for i, t := range out.Index() {
		v := t.Sub(epoch).Hours()
		if t.Equal(f.targetGap) {
			v = model.Missing()
		}
		out.Set("dcl_price", i, v)
	}
	return model.Succeeded("frequency_response", out)
}

var fixedNow = time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)

func newBuilder(t *testing.T, f Fetcher, opts Options) *Builder {
	t.Helper()
	b, err := NewBuilder(f, efa.MustClock(efa.DefaultZone), opts, nil)
	require.NoError(t, err)
	return b.WithNow(func() time.Time { return fixedNow })
}

func TestBuildFeatures_Columns(t *testing.T) {
	f := &fakeFetcher{}
	b := newBuilder(t, f, DefaultOptions())
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-13")

	matrix, err := b.BuildFeatures(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, efa.Index(r), matrix.Index())
	assert.Equal(t, []string{
		"negative_reserve", "forecastdemand_mean", "pbr_price_mean",
		"dcl_price_lag_6", "dcl_price_lag_12", "drl_price_lag_6", "drl_price_lag_12",
		"month", "working_day",
	}, matrix.Columns())

	// History is fetched two days before the first date and one day after.
	assert.Equal(t, r.Extend(2, 1), f.requested["frequency_response"])
	assert.Equal(t, r, f.requested["margins"])

	first := efa.Index(r)[0]
	lag6, _ := matrix.At("dcl_price_lag_6", first)
	assert.Equal(t, first.Add(-24*time.Hour).Sub(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).Hours(), lag6)
	for _, c := range matrix.Columns() {
		assert.Zero(t, matrix.CountMissing(c), c)
	}
}

func TestBuildFeatures_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Sequential = true
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-12")

	a, err := newBuilder(t, &fakeFetcher{}, opts).BuildFeatures(context.Background(), r)
	require.NoError(t, err)
	b, err := newBuilder(t, &fakeFetcher{}, DefaultOptions()).BuildFeatures(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestBuildFeatures_MissingSource(t *testing.T) {
	f := &fakeFetcher{fail: map[string]model.Status{"demand": model.StatusNoData}}
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-12")

	_, err := newBuilder(t, f, DefaultOptions()).BuildFeatures(context.Background(), r)
	var missing *features.MissingSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "demand", missing.Source)

	opts := DefaultOptions()
	opts.AllowMissing = true
	matrix, err := newBuilder(t, f, opts).BuildFeatures(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 6, matrix.CountMissing("forecastdemand_mean"))
}

func TestBuildFeatures_HistoryFailureSurfacesAsLagSource(t *testing.T) {
	f := &fakeFetcher{fail: map[string]model.Status{"frequency_response": model.StatusTransportFailure}}
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-12")

	_, err := newBuilder(t, f, DefaultOptions()).BuildFeatures(context.Background(), r)
	var missing *features.MissingSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "frequency_response", missing.Source)
	assert.Equal(t, model.StatusTransportFailure, missing.Status)
}

func TestBuildFeatures_InvalidRange(t *testing.T) {
	r := efa.DateRange{Start: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)}
	_, err := newBuilder(t, &fakeFetcher{}, DefaultOptions()).BuildFeatures(context.Background(), r)
	assert.ErrorIs(t, err, efa.ErrInvalidRange)
}

func TestTrainingSet_DropsMissingTarget(t *testing.T) {
	gap := time.Date(2025, 6, 12, 7, 0, 0, 0, time.UTC)
	f := &fakeFetcher{targetGap: gap}
	b := newBuilder(t, f, DefaultOptions())
	r, _ := efa.ParseDateRange("2025-06-12", "2025-06-12")

	ds, err := b.TrainingSetFor(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, ds.HasTarget())
	assert.Equal(t, "dcl_price", ds.TargetName)
	assert.Equal(t, 5, ds.Len())
	assert.Len(t, ds.Target, 5)
	assert.NotContains(t, ds.Index(), gap)
}

func TestTrainingSet_DefaultWindow(t *testing.T) {
	f := &fakeFetcher{}
	b := newBuilder(t, f, DefaultOptions())

	ds, err := b.TrainingSet(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-11..2025-06-11", ds.Range.String())
	assert.Equal(t, ds.Range.Days()*efa.BlocksPerDay, ds.Len())
}

func TestPredictionSet_DefaultsToTomorrow(t *testing.T) {
	b := newBuilder(t, &fakeFetcher{}, DefaultOptions())
	ds, err := b.PredictionSet(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ds.HasTarget())
	assert.Equal(t, "2025-06-12..2025-06-12", ds.Range.String())
	assert.Equal(t, 6, ds.Len())
}

func TestNewBuilder_RejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Lags = features.LagSpec{"dcl_price": {-6}}
	_, err := NewBuilder(&fakeFetcher{}, efa.MustClock("UTC"), opts, nil)
	assert.ErrorIs(t, err, features.ErrInvalidLag)

	opts = DefaultOptions()
	opts.Temporal = []string{"season"}
	_, err = NewBuilder(&fakeFetcher{}, efa.MustClock("UTC"), opts, nil)
	assert.ErrorIs(t, err, features.ErrUnknownTemporalFeature)
}
