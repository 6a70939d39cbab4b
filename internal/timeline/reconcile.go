package timeline

import (
	"math"
	"time"
)

const (
	// DefaultPadding is added to every probed spoken clip to absorb the
	// gaps the concat demuxer leaves at clip boundaries.
	DefaultPadding = 50 * time.Millisecond
	// DefaultDriftTolerance is the largest computed/measured disagreement
	// left uncorrected.
	DefaultDriftTolerance = 500 * time.Millisecond
)

// Accumulate lays durations end to end from zero, filling Start and End of
// each interval in place. It returns the computed total.
func Accumulate(intervals []Interval, durations []time.Duration) time.Duration {
	var cursor time.Duration
	for i := range intervals {
		intervals[i].Start = cursor
		cursor += durations[i]
		intervals[i].End = cursor
	}
	return cursor
}

// Reconcile compares the computed total (the last interval's end) with the
// measured duration of the concatenated file. When they differ by more than
// tolerance, every boundary is scaled by measured/computed and the last end
// is pinned to measured. It reports whether scaling happened.
func Reconcile(intervals []Interval, measured, tolerance time.Duration) bool {
	if len(intervals) == 0 || measured <= 0 {
		return false
	}
	computed := intervals[len(intervals)-1].End
	if computed <= 0 {
		return false
	}

	drift := measured - computed
	if drift < 0 {
		drift = -drift
	}
	if drift <= tolerance {
		return false
	}

	ratio := float64(measured) / float64(computed)
	scale := func(d time.Duration) time.Duration {
		return time.Duration(math.Round(float64(d) * ratio))
	}

	// Adjacent intervals share a boundary, so each boundary is scaled once.
	var prevEnd time.Duration
	for i := range intervals {
		intervals[i].Start = prevEnd
		intervals[i].End = scale(intervals[i].End)
		prevEnd = intervals[i].End
	}
	intervals[len(intervals)-1].End = measured
	return true
}
