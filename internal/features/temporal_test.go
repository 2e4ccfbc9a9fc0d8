package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcl-forecast/internal/efa"
)

func TestTemporalFeatures(t *testing.T) {
	// Friday 2025-06-13: EFA-1 opens Thursday 23:00.
	r, err := efa.ParseDateRange("2025-06-13", "2025-06-14")
	require.NoError(t, err)
	index := efa.Index(r)

	out, err := TemporalFeatures(index, []string{"month", "working_day", "weekday", "hour"})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "working_day", "weekday", "hour"}, out.Columns())

	month, _ := out.Column("month")
	for _, v := range month {
		assert.Equal(t, 6.0, v)
	}

	working, _ := out.Column("working_day")
	// Thu 23:00 .. Fri 19:00 working, Fri 23:00 working, Sat 03:00 .. 19:00 weekend.
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, working)

	weekday, _ := out.Column("weekday")
	assert.Equal(t, 3.0, weekday[0])
	assert.Equal(t, 5.0, weekday[11])

	hour, _ := out.Column("hour")
	assert.Equal(t, []float64{23, 3, 7, 11, 15, 19}, hour[:6])
}

func TestTemporalFeatures_WorkingDayMarksWeekend(t *testing.T) {
	monday := time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC)
	saturday := time.Date(2025, 6, 14, 3, 0, 0, 0, time.UTC)
	out, err := TemporalFeatures([]time.Time{saturday, monday}, []string{"working_day"})
	require.NoError(t, err)

	working, _ := out.Column("working_day")
	assert.Equal(t, []float64{1, 0}, working)
}

func TestTemporalFeatures_Unknown(t *testing.T) {
	_, err := TemporalFeatures([]time.Time{efa1}, []string{"season"})
	assert.ErrorIs(t, err, ErrUnknownTemporalFeature)
}
