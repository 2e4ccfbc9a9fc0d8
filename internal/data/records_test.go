package data

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/model"
)

func TestParseNumber(t *testing.T) {
	r := model.Record{
		"num":   json.Number("12.25"),
		"text":  " 7 ",
		"empty": "",
		"null":  nil,
		"bad":   "n/a",
	}
	v, err := ParseNumber(r, "num")
	require.NoError(t, err)
	assert.Equal(t, 12.25, v)

	v, err = ParseNumber(r, "text")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = ParseNumber(r, "empty")
	require.NoError(t, err)
	assert.True(t, model.IsMissing(v))

	v, err = ParseNumber(r, "null")
	require.NoError(t, err)
	assert.True(t, model.IsMissing(v))

	_, err = ParseNumber(r, "bad")
	assert.Error(t, err)
	_, err = ParseNumber(r, "absent")
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 4, 9, 22, 0, 0, 0, time.UTC)
	for _, s := range []string{"2025-04-09T22:00:00", "2025-04-09 22:00:00", "2025-04-09T22:00:00Z", "2025-04-09T23:00:00+01:00"} {
		got, err := ParseTime(model.Record{"t": s}, "t")
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseTime(model.Record{"t": "yesterday"}, "t")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock(model.Record{"cp": json.Number("1630")}, "cp")
	require.NoError(t, err)
	assert.Equal(t, 16*time.Hour+30*time.Minute, d)

	d, err = ParseClock(model.Record{"cp": "0"}, "cp")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	_, err = ParseClock(model.Record{"cp": json.Number("1675")}, "cp")
	assert.Error(t, err)
}

func TestParseAuctionRecords(t *testing.T) {
	raw := []model.Record{{
		"deliveryStart":  "2025-04-09T22:00:00",
		"deliveryEnd":    "2025-04-10T02:00:00",
		"serviceType":    "Response",
		"auctionProduct": "DCL",
		"clearingPrice":  json.Number("3.41"),
		"clearedVolume":  json.Number("612"),
	}}
	got, err := ParseAuctionRecords(NormaliseFields(raw, efa.SnakeCase))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DCL", got[0].Product)
	assert.Equal(t, 3.41, got[0].ClearingPrice)
	assert.Equal(t, 612.0, got[0].ClearedVolume)
	assert.Equal(t, 4*time.Hour, got[0].Duration())

	delete(raw[0], "clearingPrice")
	_, err = ParseAuctionRecords(NormaliseFields(raw, efa.SnakeCase))
	assert.Error(t, err)
}
