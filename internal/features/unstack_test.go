package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

func auction(start time.Time, product string, price, volume float64) model.AuctionRecord {
	return model.AuctionRecord{
		DeliveryStart: start,
		DeliveryEnd:   start.Add(efa.BlockDuration),
		ServiceType:   "Response",
		Product:       product,
		ClearingPrice: price,
		ClearedVolume: volume,
	}
}

func TestUnstack_PivotsSortedProducts(t *testing.T) {
	clock := efa.MustClock("UTC")
	t0 := time.Date(2025, 1, 14, 23, 0, 0, 0, time.UTC)
	records := []model.AuctionRecord{
		auction(t0, "DRL", 2.1, 100),
		auction(t0, "DCL", 3.5, 500),
		auction(t0.Add(4*time.Hour), "DCL", 4.0, 520),
	}

	out, err := Unstack(records, KindPrice, clock)
	require.NoError(t, err)
	assert.Equal(t, []string{"dcl_price", "drl_price"}, out.Columns())
	assert.Equal(t, []time.Time{t0, t0.Add(4 * time.Hour)}, out.Index())

	v, ok := out.At("drl_price", t0)
	assert.True(t, ok)
	assert.Equal(t, 2.1, v)
	_, ok = out.At("drl_price", t0.Add(4*time.Hour))
	assert.False(t, ok, "product absent in a block is missing")

	vol, err := Unstack(records, KindVolume, clock)
	require.NoError(t, err)
	assert.Equal(t, []string{"dcl_volume", "drl_volume"}, vol.Columns())
	v, _ = vol.At("dcl_volume", t0.Add(4*time.Hour))
	assert.Equal(t, 520.0, v)
}

func TestUnstack_DuplicateKeepsFirst(t *testing.T) {
	clock := efa.MustClock("UTC")
	t0 := time.Date(2025, 1, 14, 23, 0, 0, 0, time.UTC)
	records := []model.AuctionRecord{
		auction(t0, "DCL", 3.5, 0),
		auction(t0, "DCL", 9.9, 0),
	}

	out, err := Unstack(records, KindPrice, clock)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	v, _ := out.At("dcl_price", t0)
	assert.Equal(t, 3.5, v)
}

func TestUnstack_ConvertsToCivilTime(t *testing.T) {
	clock := efa.MustClock(efa.DefaultZone)
	// 22:00Z in June is 23:00 BST, the opening of EFA-1.
	instant := time.Date(2025, 6, 11, 22, 0, 0, 0, time.UTC)

	out, err := Unstack([]model.AuctionRecord{auction(instant, "DCH", 1, 0)}, KindPrice, clock)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2025, 6, 11, 23, 0, 0, 0, time.UTC)}, out.Index())
}

func TestUnstack_FallBackKeepsFirstOccurrence(t *testing.T) {
	clock := efa.MustClock(efa.DefaultZone)
	// 22:00Z on 2025-10-25 is 23:00 BST; clocks go back at 01:00Z, so 01:00Z and
	// 01:30Z repeat the civil 01:00 and 01:30 already seen at 00:00Z and 00:30Z.
	from := time.Date(2025, 10, 25, 22, 0, 0, 0, time.UTC)
	records := make([]model.AuctionRecord, 60)
	for i := range records {
		records[i] = auction(from.Add(time.Duration(i)*30*time.Minute), "PBR", float64(i), 0)
	}

	out, err := Unstack(records, KindPrice, clock)
	require.NoError(t, err)
	require.Equal(t, 58, out.Len())

	v, _ := out.At("pbr_price", time.Date(2025, 10, 26, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, 4.0, v)
	v, _ = out.At("pbr_price", time.Date(2025, 10, 26, 1, 30, 0, 0, time.UTC))
	assert.Equal(t, 5.0, v)

	agg := Aggregate(out, DefaultStats, AggregateOptions{})
	opening := time.Date(2025, 10, 25, 23, 0, 0, 0, time.UTC)
	for col, want := range map[string]float64{"pbr_price_min": 0, "pbr_price_max": 9, "pbr_price_mean": 4} {
		got, ok := agg.At(col, opening)
		require.True(t, ok, col)
		assert.Equal(t, want, got, col)
	}
}

func TestUnstack_UnsupportedKind(t *testing.T) {
	out, err := Unstack([]model.AuctionRecord{auction(efa1, "DCL", 1, 1)}, ValueKind("margin"), efa.MustClock("UTC"))
	require.ErrorIs(t, err, ErrUnsupportedValueKind)
	require.NotNil(t, out)
	assert.True(t, out.IsEmpty())
}

func TestUnstack_NoRecords(t *testing.T) {
	out, err := Unstack(nil, KindPrice, efa.MustClock("UTC"))
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestAuctionColumns(t *testing.T) {
	assert.Equal(t, []string{"pbr_price", "nbr_price"}, AuctionColumns([]string{"PBR", "NBR"}, KindPrice))
}
