package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 5m")
	require.NoError(t, err)
	assert.Equal(t, "@every 5m0s", s.String())

	from := time.Date(2025, 8, 18, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Minute), s.Next(from))

	daily, err := ParseSchedule("@daily")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 19, 0, 0, 0, 0, time.UTC), daily.Next(from))

	for _, bad := range []string{"@every", "@every -1s", "@every soon", "* * *", "61 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseSchedule(bad)
		assert.ErrorIs(t, err, ErrInvalidSchedule, bad)
	}
}

func TestCronExpression_Next(t *testing.T) {
	// 2025-08-18 is a Monday.
	mon := time.Date(2025, 8, 18, 10, 7, 30, 0, time.UTC)

	cases := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"*/15 * * * *", mon, time.Date(2025, 8, 18, 10, 15, 0, 0, time.UTC)},
		{"0 * * * *", mon, time.Date(2025, 8, 18, 11, 0, 0, 0, time.UTC)},
		{"0 0 * * 0", mon, time.Date(2025, 8, 24, 0, 0, 0, 0, time.UTC)},
		{"30 9 1 * *", mon, time.Date(2025, 9, 1, 9, 30, 0, 0, time.UTC)},
		{"0 12 * * 1-5", time.Date(2025, 8, 22, 13, 0, 0, 0, time.UTC), time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)},
		{"0 6,18 * * *", mon, time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)},
		{"0 0 1 1 *", mon, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"7 10 * * *", time.Date(2025, 8, 18, 10, 7, 0, 0, time.UTC), time.Date(2025, 8, 19, 10, 7, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got := MustParseCronExpression(tc.expr).Next(tc.from)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCronExpression_NextInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	from := time.Date(2025, 8, 18, 23, 50, 0, 0, loc)

	got := MustParseCronExpression("0 * * * *").Next(from)
	assert.Equal(t, time.Date(2025, 8, 19, 0, 0, 0, 0, loc), got)
}

func TestCronExpression_NeverMatches(t *testing.T) {
	got := MustParseCronExpression("0 0 30 2 *").Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, got.IsZero())
}
