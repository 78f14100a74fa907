// Package interval holds duration and overlap helpers for start/end timestamps.
package interval

import (
	"time"

	"mes-execution-backend/internal/apperr"
)

// Interval is a half-open time range [Start, End). A zero End means the interval
// is still open.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the interval has no end.
func (i Interval) Open() bool {
	return i.End.IsZero()
}

func (i Interval) endOr(now time.Time) time.Time {
	if i.Open() {
		return now
	}
	return i.End
}

// Duration returns the whole minutes between start and end, rounded down.
func Duration(start, end time.Time) (int, error) {
	if err := Validate(start, end, "startTime", "endTime"); err != nil {
		return 0, err
	}
	return int(end.Sub(start) / time.Minute), nil
}

// Validate fails with an InvalidInterval error naming both fields when
// end <= start.
func Validate(start, end time.Time, startField, endField string) error {
	if !end.After(start) {
		return apperr.InvalidInterval(startField, endField,
			"%s (%s) must be after %s (%s)", endField, end.Format(time.RFC3339), startField, start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether a and b share any instant. Open intervals extend to
// infinity.
func Overlaps(a, b Interval) bool {
	if !a.Open() && !b.Start.Before(a.End) {
		return false
	}
	if !b.Open() && !a.Start.Before(b.End) {
		return false
	}
	return true
}

// Overlap returns the length shared by a and b. Open intervals are cut at now.
func Overlap(a, b Interval, now time.Time) time.Duration {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.endOr(now)
	if bEnd := b.endOr(now); bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
