package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDue(t *testing.T) {
	t.Parallel()

	eval := NewCronEvaluator()
	loc := time.FixedZone("EAT", 3*60*60)

	cases := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"*/5 * * * *", time.Date(2025, 3, 10, 9, 15, 0, 0, loc), true},
		{"*/5 * * * *", time.Date(2025, 3, 10, 9, 16, 0, 0, loc), false},
		{"*/5 * * * *", time.Date(2025, 3, 10, 9, 15, 42, 0, loc), true},
		{"0 9 * * *", time.Date(2025, 3, 10, 9, 0, 0, 0, loc), true},
		{"0 9 * * *", time.Date(2025, 3, 10, 10, 0, 0, 0, loc), false},
		{"0 */2 * * *", time.Date(2025, 3, 10, 14, 0, 0, 0, loc), true},
		{"0 */2 * * *", time.Date(2025, 3, 10, 15, 0, 0, 0, loc), false},
		{"* * * * *", time.Date(2025, 3, 10, 23, 59, 0, 0, loc), true},
	}

	for _, tc := range cases {
		got, err := eval.IsDue(tc.expr, tc.at)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, "%s at %s", tc.expr, tc.at)
	}
}

func TestIsDueRejectsMalformedExpressions(t *testing.T) {
	t.Parallel()

	eval := NewCronEvaluator()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for _, expr := range []string{"", "every five minutes", "* * * *", "61 * * * *", "@every 5m"} {
		due, err := eval.IsDue(expr, at)
		assert.Error(t, err, expr)
		assert.False(t, due, expr)
	}
}

func TestIsDueAcceptsSevenAsSunday(t *testing.T) {
	t.Parallel()

	eval := NewCronEvaluator()
	sunday := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)
	saturday := sunday.AddDate(0, 0, -1)
	monday := sunday.AddDate(0, 0, 1)

	cases := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"0 9 * * 7", sunday, true},
		{"0 9 * * 7", monday, false},
		{"0 9 * * 5-7", saturday, true},
		{"0 9 * * 5-7", sunday, true},
		{"0 9 * * 5-7", monday, false},
		{"0 9 * * 1,7", monday, true},
		{"0 9 * * 1,7", sunday, true},
	}
	for _, tc := range cases {
		got, err := eval.IsDue(tc.expr, tc.at)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, "%s on %s", tc.expr, tc.at.Weekday())
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	eval := NewCronEvaluator()
	from := time.Date(2025, 3, 10, 9, 1, 0, 0, time.UTC)

	next, err := eval.Next("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC), next)
}
