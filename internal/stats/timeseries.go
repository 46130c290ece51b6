package stats

import (
	"context"
	"fmt"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"golang.org/x/sync/errgroup"
)

type Mode uint8

const (
	Periodical Mode = iota
	Cumulative
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "periodical":
		return Periodical, nil
	case "cumulative":
		return Cumulative, nil
	default:
		return 0, errs.Invalid(fmt.Sprintf("unknown mode %q", s))
	}
}

// Series has one entry per bucket of the range in ascending order.
type Series struct {
	X       []string `json:"x"`
	Visits  []int64  `json:"visits"`
	Uniques []int64  `json:"uniques"`
}

type Overall struct {
	Pageviews     int64   `json:"pageviews"`
	Uniques       int64   `json:"uniques"`
	Sessions      int64   `json:"sessions"`
	Bounced       int64   `json:"bounced"`
	BounceRate    float64 `json:"bounceRate"`
	PagesPerVisit float64 `json:"pagesPerVisit"`
	// AvgDuration is in seconds.
	AvgDuration float64 `json:"avgDuration"`
}

type Result struct {
	Series  Series                 `json:"series"`
	Overall Overall                `json:"overall"`
	Params  map[string][]Breakdown `json:"params"`
}

// Columns broken down on the analytics root.
var paramColumns = []string{
	"pg", "host", "ref", "so", "me", "ca", "lc", "dv", "br", "os", "cc", "rg", "ct",
}

// GroupByTimeBucket computes the series of q with its overall figures and per
// column breakdowns. The sub queries run concurrently.
func (e *Engine) GroupByTimeBucket(ctx context.Context, q query.Query, mode Mode) (*Result, error) {
	var o Result
	o.Params = make(map[string][]Breakdown)
	columns := paramColumns
	if q.CustomEvent {
		columns = append(columns[:len(columns):len(columns)], "ev")
	}
	values := make([][]Breakdown, len(columns))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		o.Series, err = e.series(ctx, q)
		return
	})
	g.Go(func() (err error) {
		o.Overall, err = e.Overall(ctx, q)
		return
	})
	for i, col := range columns {
		g.Go(func() (err error) {
			values[i], err = e.Breakdown(ctx, q, col, "")
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range columns {
		o.Params[columns[i]] = values[i]
	}
	if mode == Cumulative {
		accumulate(o.Series.Visits)
		accumulate(o.Series.Uniques)
	}
	return &o, nil
}

func accumulate(ls []int64) {
	for i := 1; i < len(ls); i++ {
		ls[i] += ls[i-1]
	}
}

func (e *Engine) series(ctx context.Context, q query.Query) (Series, error) {
	slot := Slot(q.Range)
	where, args := q.Where("")
	var rows []struct {
		Slot    int64
		Visits  int64
		Uniques int64
	}
	err := e.db.Select(ctx, "series", &rows,
		`SELECT (created / ?) * ? AS slot, COUNT(*) AS visits, COALESCE(SUM(uniq), 0) AS uniques FROM `+q.Table()+
			` WHERE `+where+` GROUP BY slot ORDER BY slot`,
		append([]any{slot, slot}, args...)...)
	if err != nil {
		return Series{}, err
	}
	b := newBuckets(q.Range)
	s := Series{
		X:       b.x,
		Visits:  make([]int64, b.len()),
		Uniques: make([]int64, b.len()),
	}
	for _, row := range rows {
		if i, ok := b.at(row.Slot); ok {
			s.Visits[i] += row.Visits
			s.Uniques[i] += row.Uniques
		}
	}
	return s, nil
}

// Overall returns the session figures of q over the whole range.
func (e *Engine) Overall(ctx context.Context, q query.Query) (Overall, error) {
	where, args := q.Where("")
	var rows []struct {
		Sessions    int64
		Bounced     int64
		Pageviews   int64
		Uniques     int64
		AvgDuration float64
	}
	err := e.db.Select(ctx, "overall", &rows,
		`SELECT COUNT(*) AS sessions,
			COALESCE(SUM(CASE WHEN n = 1 THEN 1 ELSE 0 END), 0) AS bounced,
			COALESCE(SUM(n), 0) AS pageviews,
			COALESCE(SUM(u), 0) AS uniques,
			COALESCE(AVG(last_seen - first_seen), 0) AS avg_duration
		FROM (
			SELECT psid, COUNT(*) AS n, SUM(uniq) AS u, MIN(created) AS first_seen, MAX(created) AS last_seen
			FROM `+q.Table()+` WHERE `+where+` GROUP BY psid
		) s`, args...)
	if err != nil {
		return Overall{}, err
	}
	var o Overall
	if len(rows) == 0 {
		return o, nil
	}
	r := rows[0]
	o.Sessions = r.Sessions
	o.Bounced = r.Bounced
	o.Pageviews = r.Pageviews
	o.Uniques = r.Uniques
	o.AvgDuration = r.AvgDuration
	if o.Sessions > 0 {
		o.BounceRate = float64(o.Bounced) / float64(o.Sessions) * 100
		o.PagesPerVisit = float64(o.Pageviews) / float64(o.Sessions)
	}
	return o, nil
}
