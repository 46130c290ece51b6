package timeutil

import (
	"time"

	"github.com/jinzhu/now"
)

// Bucket is the granularity a time series is grouped by.
type Bucket uint8

const (
	Hour Bucket = 1 + iota
	Day
	Week
	Month
)

// WeekStart is the first day of a week bucket.
const WeekStart = time.Monday

func ParseBucket(s string) (Bucket, bool) {
	switch s {
	case "hour":
		return Hour, true
	case "day":
		return Day, true
	case "week":
		return Week, true
	case "month":
		return Month, true
	default:
		return 0, false
	}
}

func (b Bucket) String() string {
	switch b {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "unknown"
	}
}

// Layout is used to label buckets.
func (b Bucket) Layout() string {
	if b == Hour {
		return time.DateTime
	}
	return time.DateOnly
}

func calendar(loc *time.Location) *now.Config {
	return &now.Config{WeekStartDay: WeekStart, TimeLocation: loc}
}

// Truncate returns the start of the bucket containing ts, computed on the wall
// clock of loc. Hours are cut on the instant so the repeated hour of a
// daylight saving fall back keeps its own bucket.
func (b Bucket) Truncate(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	if b == Hour {
		return local.Add(-time.Duration(local.Minute())*time.Minute -
			time.Duration(local.Second())*time.Second -
			time.Duration(local.Nanosecond()))
	}
	n := calendar(loc).With(local)
	switch b {
	case Day:
		return n.BeginningOfDay()
	case Week:
		return n.BeginningOfWeek()
	case Month:
		return n.BeginningOfMonth()
	default:
		return ts
	}
}

// Next returns the start of the bucket following the one starting at start.
func (b Bucket) Next(start time.Time) time.Time {
	switch b {
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Count returns the number of buckets overlapping [from, to) without
// materializing them. Iteration stops once limit is exceeded.
func (b Bucket) Count(from, to time.Time, loc *time.Location, limit int) int {
	var n int
	for ts := b.Truncate(from, loc); ts.Before(to); ts = b.Next(ts) {
		n++
		if n > limit {
			return n
		}
	}
	return n
}

// Buckets returns the start of every bucket overlapping [from, to) in ascending
// order.
func (b Bucket) Buckets(from, to time.Time, loc *time.Location) []time.Time {
	var o []time.Time
	for ts := b.Truncate(from, loc); ts.Before(to); ts = b.Next(ts) {
		o = append(o, ts)
	}
	return o
}
