package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		issued time.Time
		want   time.Time
	}{
		{"same month", "Sat 06", day(2023, time.May, 5), day(2023, time.May, 6)},
		{"month rollover", "Mon 01", day(2023, time.April, 29), day(2023, time.May, 1)},
		{"end of year same month", "Sat 31", day(2022, time.December, 1), day(2022, time.December, 31)},
		{"year rollover", "Sun 01", day(2022, time.December, 31), day(2023, time.January, 1)},
		{"issue day itself", "Fri 05", day(2023, time.May, 5), day(2023, time.May, 5)},
		{"long weekday name", "Friday 05", day(2023, time.May, 1), day(2023, time.May, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.in, tt.issued)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestResolve_KeepsIssuedLocation(t *testing.T) {
	issued := time.Date(2023, time.May, 5, 9, 0, 0, 0, Vanuatu)

	got, err := Resolve("Sat 06", issued)
	require.NoError(t, err)
	assert.Equal(t, Vanuatu, got.Location())
	assert.Equal(t, time.Date(2023, time.May, 6, 0, 0, 0, 0, Vanuatu), got)
}

func TestResolve_Errors(t *testing.T) {
	issued := day(2023, time.January, 31)

	tests := map[string]string{
		"missing day":       "Saturday",
		"not a number":      "Sat xx",
		"out of range":      "Sat 32",
		"no such day after": "Thu 30",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(in, issued)
			assert.Error(t, err)
		})
	}
}

func TestVerifySequential(t *testing.T) {
	t.Run("already sequential", func(t *testing.T) {
		in := []time.Time{day(2023, 1, 30), day(2023, 1, 31), day(2023, 2, 1), day(2023, 2, 2)}
		got, err := VerifySequential(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("repairs first element", func(t *testing.T) {
		in := []time.Time{day(2023, 2, 1), day(2023, 1, 2), day(2023, 1, 3), day(2023, 1, 4), day(2023, 1, 5)}
		want := []time.Time{day(2023, 1, 1), day(2023, 1, 2), day(2023, 1, 3), day(2023, 1, 4), day(2023, 1, 5)}

		got, err := VerifySequential(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, day(2023, 2, 1), in[0], "input must not be modified")
	})

	t.Run("repairs a middle element", func(t *testing.T) {
		in := []time.Time{day(2023, 3, 28), day(2023, 4, 29), day(2023, 3, 30)}
		got, err := VerifySequential(in)
		require.NoError(t, err)
		assert.Equal(t, day(2023, 3, 29), got[1])
	})

	t.Run("two wrong elements fail", func(t *testing.T) {
		in := []time.Time{day(2023, 2, 1), day(2023, 2, 2), day(2023, 1, 3), day(2023, 1, 4), day(2023, 1, 5)}
		_, err := VerifySequential(in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotSequential))
	})

	t.Run("last element is never shifted", func(t *testing.T) {
		in := []time.Time{day(2023, 1, 1), day(2023, 1, 2), day(2023, 2, 3)}
		_, err := VerifySequential(in)
		assert.ErrorIs(t, err, ErrNotSequential)
	})

	t.Run("empty and single", func(t *testing.T) {
		got, err := VerifySequential(nil)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = VerifySequential([]time.Time{day(2023, 1, 1)})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestResolveThenVerify_EarlyMonthSeries(t *testing.T) {
	// Issued on the 2nd with a series that starts the day before.
	issued := day(2023, time.January, 2)
	resolved, err := ResolveAll([]string{"Sun 01", "Mon 02", "Tue 03", "Wed 04"}, issued)
	require.NoError(t, err)
	assert.Equal(t, day(2023, time.February, 1), resolved[0])

	fixed, err := VerifySequential(resolved)
	require.NoError(t, err)
	assert.Equal(t, day(2023, time.January, 1), fixed[0])
}

func TestParseWarningDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Friday 24th March, 2023", time.Date(2023, time.March, 23, 13, 0, 0, 0, time.UTC)},
		{"Monday 1st May, 2023", time.Date(2023, time.April, 30, 13, 0, 0, 0, time.UTC)},
		{"  tuesday 2nd  may 2023 ", time.Date(2023, time.May, 1, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseWarningDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := ParseWarningDate("sometime next week")
	assert.Error(t, err)
}

func TestParseIssuedAt(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		marker string
		want   time.Time
	}{
		{
			name:   "forecast map header",
			text:   "Forecast Issue Date: Friday 05 May, 2023 at 09:00",
			marker: "Forecast Issue Date:",
			want:   time.Date(2023, time.May, 4, 22, 0, 0, 0, time.UTC),
		},
		{
			name:   "seven day header",
			text:   "Port Vila at 4:00 pm, Friday May 05 2023",
			marker: "Port Vila at",
			want:   time.Date(2023, time.May, 5, 5, 0, 0, 0, time.UTC),
		},
		{
			name:   "media header with nbsp",
			text:   "Issued at 10:25 AM, Tuesday April 04 2023",
			marker: " at ",
			want:   time.Date(2023, time.April, 3, 23, 25, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIssuedAt(tt.text, tt.marker)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseIssuedAt("Forecast Issue Date: soon", "Forecast Issue Date:")
	assert.Error(t, err)

	_, err = ParseIssuedAt("Friday 05 May, 2023", "Port Vila at")
	assert.Error(t, err)
}
