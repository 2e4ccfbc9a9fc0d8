package efa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_ToCivil(t *testing.T) {
	c := MustClock(DefaultZone)

	// Summer: BST is UTC+1.
	got := c.ToCivil(time.Date(2025, 4, 9, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, civil("2025-04-09T23:00"), got)
	assert.Equal(t, time.UTC, got.Location())

	// Winter: GMT.
	got = c.ToCivil(time.Date(2025, 1, 9, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, civil("2025-01-09T22:00"), got)
}

func TestClock_ToInstant_ShiftForward(t *testing.T) {
	c := MustClock(DefaultZone)

	// 01:30 on 2025-03-30 does not exist in London; the clocks jump 01:00 -> 02:00.
	got := c.ToInstant(civil("2025-03-30T01:30"))
	assert.Equal(t, time.Date(2025, 3, 30, 1, 0, 0, 0, time.UTC), got)
	assert.Equal(t, civil("2025-03-30T02:00"), c.ToCivil(got))
}

func TestClock_ToInstant_AmbiguousPicksEarlier(t *testing.T) {
	c := MustClock(DefaultZone)

	// 01:30 on 2025-10-26 happens twice; the BST reading comes first.
	got := c.ToInstant(civil("2025-10-26T01:30"))
	assert.Equal(t, time.Date(2025, 10, 26, 0, 30, 0, 0, time.UTC), got)
}

func TestClock_RoundTrip(t *testing.T) {
	c := MustClock(DefaultZone)
	start := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48*4; i++ {
		instant := start.Add(time.Duration(i) * 30 * time.Minute)
		assert.Equal(t, instant, c.ToInstant(c.ToCivil(instant)), instant.String())
	}
}

func TestClock_Today(t *testing.T) {
	c := MustClock(DefaultZone)
	// 23:30 UTC on 30 June is already 1 July in London.
	got := c.Today(time.Date(2025, 6, 30, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, civil("2025-07-01T00:00"), got)
}

func TestNewClock_UnknownZone(t *testing.T) {
	_, err := NewClock("Mars/Olympus")
	require.Error(t, err)
}
