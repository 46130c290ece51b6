package timeutil

import "time"

// Now is replaced in tests.
var Now = func() time.Time {
	return time.Now().UTC()
}

func BeginDay(ts time.Time) time.Time {
	yy, mm, dd := ts.Date()
	return time.Date(yy, mm, dd, 0, 0, 0, 0, ts.Location())
}

func BeginHour(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, ts.Hour(), 0, 0, 0, ts.Location())
}

// WholeHourOffsets reports whether loc only uses offsets that are a multiple
// of an hour between from and to. Zones like Asia/Kolkata do not.
func WholeHourOffsets(loc *time.Location, from, to time.Time) bool {
	check := func(ts time.Time) bool {
		_, off := ts.In(loc).Zone()
		return off%3600 == 0
	}
	if !check(from) || !check(to) {
		return false
	}
	// offsets only change on transitions, sample daily to catch them.
	for ts := from; ts.Before(to); ts = ts.Add(24 * time.Hour) {
		if !check(ts) {
			return false
		}
	}
	return true
}
