// Package stats answers time bucketed aggregate queries over the event store.
//
// Rows are grouped by the store into fixed UTC slots. Slots are then folded
// into buckets aligned on the wall clock of the requested timezone. A slot is
// an hour, or a quarter of an hour when the zone uses offsets that are not a
// whole number of hours, so a slot never straddles two buckets.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

// Presence reports which sessions of a project are currently active.
type Presence interface {
	ActiveSessions(ctx context.Context, pid string) (map[string]struct{}, error)
	IsActive(ctx context.Context, pid, psid string) (bool, error)
}

type Engine struct {
	db       *store.DB
	presence Presence
	log      *slog.Logger
}

func New(db *store.DB, presence Presence, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, presence: presence, log: log.With("component", "stats")}
}

// Earliest returns the time of the first pageview or custom event of pid.
func (e *Engine) Earliest(ctx context.Context, pid string) (time.Time, bool, error) {
	var o []struct {
		Earliest *int64
	}
	err := e.db.Select(ctx, "earliest", &o,
		`SELECT MIN(created) AS earliest FROM (
			SELECT MIN(created) AS created FROM analytics WHERE pid = ?
			UNION ALL
			SELECT MIN(created) AS created FROM custom_events WHERE pid = ?
		) s`, pid, pid)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(o) == 0 || o[0].Earliest == nil {
		return time.Time{}, false, nil
	}
	return time.Unix(*o[0].Earliest, 0).UTC(), true, nil
}

const (
	hourSlot    = int64(time.Hour / time.Second)
	quarterSlot = int64(15 * time.Minute / time.Second)
)

// Slot returns the store side grouping width in seconds for r.
func Slot(r period.Range) int64 {
	if timeutil.WholeHourOffsets(r.Location, r.FromUTC, r.ToUTC) {
		return hourSlot
	}
	return quarterSlot
}

// buckets maps slots to the position of their bucket in the series of a
// range.
type buckets struct {
	r     period.Range
	x     []string
	index map[int64]int
}

func newBuckets(r period.Range) *buckets {
	ts := r.Buckets()
	b := &buckets{
		r:     r,
		x:     make([]string, len(ts)),
		index: make(map[int64]int, len(ts)),
	}
	layout := r.Bucket.Layout()
	for i := range ts {
		b.x[i] = ts[i].Format(layout)
		b.index[ts[i].Unix()] = i
	}
	return b
}

func (b *buckets) len() int { return len(b.x) }

// at returns the bucket position of the slot starting at the unix second
// slot.
func (b *buckets) at(slot int64) (int, bool) {
	start := b.r.Bucket.Truncate(time.Unix(slot, 0), b.r.Location)
	i, ok := b.index[start.Unix()]
	return i, ok
}

// Timeline counts rows of q per bucket. extra is appended to the predicate of
// q with its arguments.
func (e *Engine) Timeline(ctx context.Context, op string, q query.Query, extra string, args ...any) ([]string, []int64, error) {
	slot := Slot(q.Range)
	where, wargs := q.Where("")
	var rows []struct {
		Slot  int64
		Count int64
	}
	err := e.db.Select(ctx, op, &rows,
		`SELECT (created / ?) * ? AS slot, COUNT(*) AS count FROM `+q.Table()+
			` WHERE `+where+extra+` GROUP BY slot ORDER BY slot`,
		append(append([]any{slot, slot}, wargs...), args...)...)
	if err != nil {
		return nil, nil, err
	}
	b := newBuckets(q.Range)
	counts := make([]int64, b.len())
	for _, row := range rows {
		if i, ok := b.at(row.Slot); ok {
			counts[i] += row.Count
		}
	}
	return b.x, counts, nil
}

// Breakdown is the activity of one value of a column.
type Breakdown struct {
	Value   string `json:"value"`
	Visits  int64  `json:"visits"`
	Uniques int64  `json:"uniques"`
}

// BreakdownLimit caps the number of values returned per column.
const BreakdownLimit = 100

// Breakdown groups rows of q by column. column must come from a fixed list,
// it is interpolated.
func (e *Engine) Breakdown(ctx context.Context, q query.Query, column, extra string, args ...any) ([]Breakdown, error) {
	uniq := "COALESCE(SUM(uniq), 0)"
	switch q.Table() {
	case store.TableErrors:
		uniq = "COUNT(DISTINCT NULLIF(psid, ''))"
	case store.TablePerformance:
		uniq = "0"
	}
	where, wargs := q.Where("")
	o := []Breakdown{}
	err := e.db.Select(ctx, "breakdown_"+column, &o,
		`SELECT `+column+` AS value, COUNT(*) AS visits, `+uniq+` AS uniques FROM `+q.Table()+
			` WHERE `+where+extra+` GROUP BY `+column+` ORDER BY visits DESC, value LIMIT ?`,
		append(append(wargs, args...), BreakdownLimit)...)
	if err != nil {
		return nil, err
	}
	return o, nil
}
