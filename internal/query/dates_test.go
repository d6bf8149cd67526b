package query

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateAcceptsCommonForms(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2024-01-15":                    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"2024-01-15T10:30:00Z":          time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"2024-01-15T10:30:00.123Z":      time.Date(2024, 1, 15, 10, 30, 0, 123000000, time.UTC),
		"2024-01-15T10:30:00+02:00":     time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
		"2024-01-15T10:30":              time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"2024-01":                       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024":                          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"Jan 15, 2024":                  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"January 15, 2024":              time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"01/15/2024":                    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"Mon, 15 Jan 2024 10:30:00 GMT": time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"  2024-01-15  ":                time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	for input, want := range cases {
		got, ok := ParseDate(input)
		require.Truef(t, ok, "expected %q to parse", input)
		assert.Truef(t, want.Equal(got), "%q: expected %v, got %v", input, want, got)
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "yesterday", "2024-13-45", "not-a-date"} {
		_, ok := ParseDate(input)
		assert.Falsef(t, ok, "expected %q to be rejected", input)
	}
}

func TestCoerceDate(t *testing.T) {
	t.Parallel()

	got := CoerceDate("2024-03-01")
	require.IsType(t, time.Time{}, got)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(got.(time.Time)))

	millis := float64(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli())
	got = CoerceDate(millis)
	require.IsType(t, time.Time{}, got)
	assert.Equal(t, 12, got.(time.Time).Hour())

	assert.Nil(t, CoerceDate("garbage"))
	assert.Nil(t, CoerceDate(true))
	assert.Nil(t, CoerceDate(nil))
	assert.Nil(t, CoerceDate(map[string]any{}))
}

func TestCoerceDateRejectsOutOfRangeMillis(t *testing.T) {
	assert.Nil(t, CoerceDate(1e20))
	assert.Nil(t, CoerceDate(-1e20))
	assert.Nil(t, CoerceDate(math.Inf(1)))
	assert.Nil(t, CoerceDate(int64(9e15)))

	limit := CoerceDate(8.64e15)
	require.IsType(t, time.Time{}, limit)
	assert.Equal(t, 275760, limit.(time.Time).Year())
	assert.Equal(t, time.UnixMilli(-8.64e15).UTC(), CoerceDate(-8.64e15))
}
