package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMonth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "canonical form", input: "2026-03", expected: "2026-03"},
		{name: "compact form", input: "202603", expected: "2026-03"},
		{name: "slash separator", input: "2026/03", expected: "2026-03"},
		{name: "full month name", input: "March 2026", expected: "2026-03"},
		{name: "abbreviated month name", input: "Mar 2026", expected: "2026-03"},
		{name: "lowercase month name", input: "march 2026", expected: "2026-03"},
		{name: "surrounding whitespace", input: "  2026-03  ", expected: "2026-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMonth(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeMonthRejectsGarbage(t *testing.T) {
	for _, input := range []string{"banana", "2026-13", "2026-00", "20261"} {
		_, err := NormalizeMonth(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestNormalizeMonthEmptyPassesThrough(t *testing.T) {
	// Callers treat an empty month as "no month requested".
	got, err := NormalizeMonth("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = NormalizeMonth("   ")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNormalizeMonthRoundTripsThroughDisplay(t *testing.T) {
	// DisplayMonth output is itself a valid month spelling.
	display := DisplayMonth("2026-03")
	assert.Equal(t, "March 2026", display)

	back, err := NormalizeMonth(display)
	require.NoError(t, err)
	assert.Equal(t, "2026-03", back)
}

func TestParseExpiry(t *testing.T) {
	full, ok := ParseExpiry("20260320")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), full)

	// A month-only expiry lands on the last day of that month.
	monthOnly, ok := ParseExpiry("202602")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), monthOnly)

	_, ok = ParseExpiry("not-a-date")
	assert.False(t, ok)
}

func TestMonthFromExpiry(t *testing.T) {
	assert.Equal(t, "2026-03", MonthFromExpiry("20260320"))
	assert.Equal(t, "2026-02", MonthFromExpiry("202602"))
	assert.Equal(t, "", MonthFromExpiry("garbage"))
}

func TestCompactMonth(t *testing.T) {
	assert.Equal(t, "202603", CompactMonth("2026-03"))
}
