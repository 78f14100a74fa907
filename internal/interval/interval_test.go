package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mes-execution-backend/internal/apperr"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time {
	return time.Date(2026, 3, 2, h, m, s, 0, time.UTC)
}

func TestDuration(t *testing.T) {
	testCases := []struct {
		name      string
		start     time.Time
		end       time.Time
		expected  int
		expectErr bool
	}{
		{name: "floors partial minutes", start: at(9, 0, 0), end: at(9, 47, 30), expected: 47},
		{name: "exact minutes", start: at(9, 0, 0), end: at(9, 30, 0), expected: 30},
		{name: "under a minute", start: at(9, 0, 0), end: at(9, 0, 59), expected: 0},
		{name: "equal timestamps", start: at(9, 0, 0), end: at(9, 0, 0), expectErr: true},
		{name: "reversed", start: at(10, 0, 0), end: at(9, 0, 0), expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Duration(tc.start, tc.end)
			if tc.expectErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindInvalidInterval))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestValidateNamesFields(t *testing.T) {
	err := Validate(at(9, 0, 0), at(8, 0, 0), "workStart", "workEnd")
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"workStart", "workEnd"}, appErr.Fields)
}

func TestOverlaps(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     Interval
		expected bool
	}{
		{name: "disjoint", a: Interval{at(9, 0, 0), at(10, 0, 0)}, b: Interval{at(11, 0, 0), at(12, 0, 0)}, expected: false},
		{name: "touching is not overlapping", a: Interval{at(9, 0, 0), at(10, 0, 0)}, b: Interval{at(10, 0, 0), at(11, 0, 0)}, expected: false},
		{name: "partial", a: Interval{at(9, 0, 0), at(10, 30, 0)}, b: Interval{at(10, 0, 0), at(11, 0, 0)}, expected: true},
		{name: "contained", a: Interval{at(9, 0, 0), at(12, 0, 0)}, b: Interval{at(10, 0, 0), at(11, 0, 0)}, expected: true},
		{name: "open after closed", a: Interval{at(9, 0, 0), at(10, 0, 0)}, b: Interval{Start: at(10, 0, 0)}, expected: false},
		{name: "open inside closed", a: Interval{at(9, 0, 0), at(10, 0, 0)}, b: Interval{Start: at(9, 30, 0)}, expected: true},
		{name: "both open", a: Interval{Start: at(9, 0, 0)}, b: Interval{Start: at(15, 0, 0)}, expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Overlaps(tc.a, tc.b))
			assert.Equal(t, tc.expected, Overlaps(tc.b, tc.a), "overlap must be symmetric")
		})
	}
}

func TestOverlap(t *testing.T) {
	order := Interval{Start: at(8, 0, 0), End: at(12, 0, 0)}

	assert.Equal(t, 30*time.Minute, Overlap(order, Interval{at(11, 30, 0), at(13, 0, 0)}, base))
	assert.Equal(t, time.Duration(0), Overlap(order, Interval{at(12, 0, 0), at(13, 0, 0)}, base))
	// open downtime is measured up to now
	assert.Equal(t, 45*time.Minute, Overlap(order, Interval{Start: at(10, 0, 0)}, at(10, 45, 0)))
}
