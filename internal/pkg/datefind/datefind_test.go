package datefind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)
}

func TestFind_AbsoluteDates(t *testing.T) {
	f := NewWithClock(time.UTC, fixedClock)

	tests := []struct {
		line  string
		year  int
		month time.Month
		day   int
	}{
		{"Final exam Dec 15 2025", 2025, time.December, 15},
		{"Midterm exam: 2025-10-20", 2025, time.October, 20},
		{"Project due (December 1, 2025)", 2025, time.December, 1},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := f.Find(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.year, got.Year())
			assert.Equal(t, tt.month, got.Month())
			assert.Equal(t, tt.day, got.Day())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFind_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	got, ok := NewWithClock(loc, fixedClock).Find("Final exam Dec 15 2025")
	require.True(t, ok)
	_, offset := got.Zone()
	assert.Equal(t, -5*3600, offset)
}

func TestFind_RelativePhrase(t *testing.T) {
	f := NewWithClock(time.UTC, fixedClock)
	got, ok := f.Find("Quiz due tomorrow")
	require.True(t, ok)
	assert.Equal(t, 2, got.Day())
	assert.Equal(t, time.September, got.Month())
}

func TestFind_NoDate(t *testing.T) {
	f := NewWithClock(time.UTC, fixedClock)
	for _, line := range []string{"", "   ", "Exam policy applies to CS 101", "Due to weather"} {
		_, ok := f.Find(line)
		assert.False(t, ok, line)
	}
}
