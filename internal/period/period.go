// Package period resolves a requested period and timezone into a concrete
// UTC range and bucket granularity.
package period

import (
	"fmt"
	"math"
	"slices"
	"time"
	_ "time/tzdata"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

type Period string

const (
	Today     Period = "today"
	Yesterday Period = "yesterday"
	Day       Period = "1d"
	Week      Period = "7d"
	Month     Period = "4w"
	Quarter   Period = "3M"
	Year      Period = "12M"
	TwoYears  Period = "24M"
	Custom    Period = "custom"
	All       Period = "all"
)

const (
	// MaxBuckets caps the length of any series.
	MaxBuckets = 1000

	// MaxCustomDays caps custom ranges.
	MaxCustomDays = 732

	DefaultPeriod = Week
)

func ParsePeriod(s string) (Period, bool) {
	switch p := Period(s); p {
	case Today, Yesterday, Day, Week, Month, Quarter, Year, TwoYears, Custom, All:
		return p, true
	case "":
		return DefaultPeriod, true
	default:
		return "", false
	}
}

// Params are the raw period inputs of a request.
type Params struct {
	Period string
	From   string
	To     string
	Bucket string
	TZ     string
}

// Range is a resolved period. From and To are wall clock boundaries in
// Location used for bucket math, FromUTC and ToUTC select rows. Both pairs
// denote the same instants, To is exclusive.
type Range struct {
	From, To       time.Time
	FromUTC, ToUTC time.Time
	Bucket         timeutil.Bucket
	Location       *time.Location

	// Allowed lists the legal buckets for the range, finest first.
	Allowed []timeutil.Bucket

	// Diff is the data span for the all period.
	Diff time.Duration
}

// Buckets returns the start of every bucket of r in ascending order.
func (r Range) Buckets() []time.Time {
	return r.Bucket.Buckets(r.From, r.To, r.Location)
}

// Location loads the named zone. Empty and unknown names resolve to UTC with
// ok set to false.
func Location(name string) (loc *time.Location, ok bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// AllowedBuckets returns legal buckets for [from, to), finest first. A one
// hour tolerance absorbs DST days.
func AllowedBuckets(from, to time.Time) []timeutil.Bucket {
	days := math.Ceil((to.Sub(from) - time.Hour).Hours() / 24)
	switch {
	case days <= 1:
		return []timeutil.Bucket{timeutil.Hour}
	case days <= 7:
		return []timeutil.Bucket{timeutil.Hour, timeutil.Day}
	case days <= 28:
		return []timeutil.Bucket{timeutil.Day, timeutil.Week}
	case days <= 366:
		return []timeutil.Bucket{timeutil.Day, timeutil.Week, timeutil.Month}
	default:
		return []timeutil.Bucket{timeutil.Month}
	}
}

// Resolve computes the range of every period except All, which needs the
// data span and goes through ResolveRange.
func Resolve(p Params, loc *time.Location, now time.Time) (Range, error) {
	period, ok := ParsePeriod(p.Period)
	if !ok {
		return Range{}, errs.Invalid(fmt.Sprintf("unknown period %q", p.Period))
	}
	if period == All {
		return Range{}, errs.Invalid("period all requires the data span")
	}
	bucket, err := parseBucket(p.Bucket)
	if err != nil {
		return Range{}, err
	}
	from, to, err := bounds(period, p, loc, now)
	if err != nil {
		return Range{}, err
	}
	r := Range{
		From:     from,
		To:       to,
		FromUTC:  from.UTC(),
		ToUTC:    to.UTC(),
		Location: loc,
		Allowed:  AllowedBuckets(from, to),
	}
	switch {
	case bucket == 0:
		r.Bucket = r.Allowed[0]
	case slices.Contains(r.Allowed, bucket):
		r.Bucket = bucket
	default:
		return Range{}, errs.Invalid(fmt.Sprintf("bucket %s is not allowed for period %s", bucket, period))
	}
	return r, checkCount(r)
}

// ResolveRange computes the range of the All period from span. When the
// requested bucket is not legal for the span the finest legal one is used.
// Without data the range is today.
func ResolveRange(span Span, bucket string, loc *time.Location, now time.Time) (Range, error) {
	b, err := parseBucket(bucket)
	if err != nil {
		return Range{}, err
	}
	if !span.Found {
		r, err := Resolve(Params{Period: string(Today)}, loc, now)
		if err != nil {
			return Range{}, err
		}
		return r, nil
	}
	today := timeutil.BeginDay(now.In(loc))
	to := today.AddDate(0, 0, 1)
	from := timeutil.BeginDay(span.Earliest.In(loc))
	if !from.Before(to) {
		from = today
	}
	r := Range{
		From:     from,
		To:       to,
		FromUTC:  from.UTC(),
		ToUTC:    to.UTC(),
		Location: loc,
		Allowed:  AllowedBuckets(from, to),
		Diff:     now.Sub(span.Earliest),
		Bucket:   b,
	}
	if !slices.Contains(r.Allowed, b) {
		r.Bucket = r.Allowed[0]
	}
	return r, checkCount(r)
}

func parseBucket(s string) (timeutil.Bucket, error) {
	if s == "" {
		return 0, nil
	}
	b, ok := timeutil.ParseBucket(s)
	if !ok {
		return 0, errs.Invalid(fmt.Sprintf("unknown time bucket %q", s))
	}
	return b, nil
}

func checkCount(r Range) error {
	if r.Bucket.Count(r.From, r.To, r.Location, MaxBuckets) > MaxBuckets {
		return errs.Invalid(fmt.Sprintf("too many %s buckets in range", r.Bucket))
	}
	return nil
}

func bounds(p Period, params Params, loc *time.Location, now time.Time) (from, to time.Time, err error) {
	now = now.In(loc)
	today := timeutil.BeginDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	switch p {
	case Today:
		return today, tomorrow, nil
	case Yesterday:
		return today.AddDate(0, 0, -1), today, nil
	case Day:
		h := timeutil.BeginHour(now).Add(time.Hour)
		return h.Add(-24 * time.Hour), h, nil
	case Week:
		return today.AddDate(0, 0, -6), tomorrow, nil
	case Month:
		return today.AddDate(0, 0, -27), tomorrow, nil
	case Quarter:
		return tomorrow.AddDate(0, -3, 0), tomorrow, nil
	case Year:
		return tomorrow.AddDate(0, -12, 0), tomorrow, nil
	case TwoYears:
		return tomorrow.AddDate(0, -24, 0), tomorrow, nil
	case Custom:
		return custom(params.From, params.To, loc)
	default:
		return from, to, errs.Invalid(fmt.Sprintf("unknown period %q", p))
	}
}

func custom(a, b string, loc *time.Location) (from, to time.Time, err error) {
	if a == "" || b == "" {
		return from, to, errs.Invalid("custom period requires from and to")
	}
	from, err = time.ParseInLocation(time.DateOnly, a, loc)
	if err != nil {
		return from, to, errs.Invalid(fmt.Sprintf("from must be YYYY-MM-DD, got %q", a))
	}
	last, err := time.ParseInLocation(time.DateOnly, b, loc)
	if err != nil {
		return from, to, errs.Invalid(fmt.Sprintf("to must be YYYY-MM-DD, got %q", b))
	}
	if last.Before(from) {
		return from, to, errs.Invalid("from must not be after to")
	}
	to = last.AddDate(0, 0, 1)
	if from.AddDate(0, 0, MaxCustomDays).Before(to) {
		return from, to, errs.Invalid(fmt.Sprintf("custom period is capped at %d days", MaxCustomDays))
	}
	return from, to, nil
}
