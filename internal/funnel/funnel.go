// Package funnel measures how many sessions go through an ordered list of
// pages and events.
package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	MinSteps = 2
	MaxSteps = 10
)

type Kind uint8

const (
	Page Kind = iota
	Event
)

type Step struct {
	Kind  Kind
	Value string
}

func (s Step) String() string {
	if s.Kind == Event {
		return "event:" + s.Value
	}
	return "page:" + s.Value
}

// ParseSteps accepts page:<path>, event:<name> or a bare path.
func ParseSteps(raw []string) ([]Step, error) {
	if len(raw) < MinSteps || len(raw) > MaxSteps {
		return nil, errs.Invalid(fmt.Sprintf("a funnel needs between %d and %d steps", MinSteps, MaxSteps))
	}
	o := make([]Step, len(raw))
	for i, s := range raw {
		switch {
		case strings.HasPrefix(s, "event:"):
			o[i] = Step{Kind: Event, Value: strings.TrimPrefix(s, "event:")}
		case strings.HasPrefix(s, "page:"):
			o[i] = Step{Kind: Page, Value: strings.TrimPrefix(s, "page:")}
		default:
			o[i] = Step{Kind: Page, Value: s}
		}
		if o[i].Value == "" {
			return nil, errs.Invalid(fmt.Sprintf("step %d is empty", i+1))
		}
	}
	return o, nil
}

type StepResult struct {
	Value            string  `json:"value"`
	Events           int64   `json:"events"`
	Dropoff          int64   `json:"dropoff"`
	EventsPercentage float64 `json:"eventsPerc"`
	EventsPercStep   float64 `json:"eventsPercStep"`
	DropoffPercStep  float64 `json:"dropoffPercStep"`
}

type Result struct {
	Steps          []StepResult `json:"funnel"`
	TotalPageviews int64        `json:"totalPageviews"`
}

type Analyzer struct {
	db  *store.DB
	log *slog.Logger
}

func New(db *store.DB, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{db: db, log: log.With("component", "funnel")}
}

// Funnel counts sessions reaching each step of steps in order. Custom event
// filters are rejected, q is read from the pageviews table.
func (a *Analyzer) Funnel(ctx context.Context, q query.Query, steps []Step) (*Result, error) {
	if q.CustomEvent {
		return nil, errs.Invalid("funnels can not be filtered by custom events")
	}
	if len(steps) < MinSteps || len(steps) > MaxSteps {
		return nil, errs.Invalid(fmt.Sprintf("a funnel needs between %d and %d steps", MinSteps, MaxSteps))
	}
	var (
		rows  []Row
		total int64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rows, err = a.rows(ctx, q, steps)
		return
	})
	g.Go(func() error {
		where, args := q.Where("")
		var o []struct{ Total int64 }
		err := a.db.Select(ctx, "funnel_total", &o,
			`SELECT COUNT(*) AS total FROM `+store.TableAnalytics+` WHERE `+where, args...)
		if err == nil && len(o) > 0 {
			total = o[0].Total
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	counts := Walk(steps, rows)
	return &Result{Steps: shape(steps, counts), TotalPageviews: total}, nil
}

// Row is one page or event of a session. Rows are ordered by session then
// time.
type Row struct {
	SessionID string `gorm:"column:psid"`
	Kind      Kind
	Value     string
	Created   int64
	ID        uint64
}

func (a *Analyzer) rows(ctx context.Context, q query.Query, steps []Step) ([]Row, error) {
	var pages, events []any
	for _, s := range steps {
		if s.Kind == Event {
			events = append(events, s.Value)
		} else {
			pages = append(pages, s.Value)
		}
	}
	where, args := q.Where("")
	var b strings.Builder
	var all []any
	if len(pages) > 0 {
		b.WriteString(`SELECT psid, 0 AS kind, pg AS value, created, id FROM ` + store.TableAnalytics +
			` WHERE ` + where + ` AND pg IN (` + placeholders(len(pages)) + `)`)
		all = append(append(all, args...), pages...)
	}
	if len(events) > 0 {
		if b.Len() > 0 {
			b.WriteString(" UNION ALL ")
		}
		b.WriteString(`SELECT psid, 1 AS kind, ev AS value, created, id FROM ` + store.TableCustomEvents +
			` WHERE ` + where + ` AND ev IN (` + placeholders(len(events)) + `)`)
		all = append(append(all, args...), events...)
	}
	b.WriteString(" ORDER BY psid, created, id")
	var o []Row
	err := a.db.Select(ctx, "funnel", &o, b.String(), all...)
	return o, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Walk matches every session of rows greedily against steps. counts[i] is
// the number of sessions that reached step i. Sessions missing the first step
// are not counted. Counts are accumulated from the deepest step up, so they
// never increase.
func Walk(steps []Step, rows []Row) []int64 {
	reached := make([]int64, len(steps))
	flush := func(depth int) {
		if depth > 0 {
			reached[depth-1]++
		}
	}
	var (
		session string
		depth   int
	)
	for i := range rows {
		if i == 0 || rows[i].SessionID != session {
			if i > 0 {
				flush(depth)
			}
			session = rows[i].SessionID
			depth = 0
		}
		if depth < len(steps) && steps[depth].Kind == rows[i].Kind && steps[depth].Value == rows[i].Value {
			depth++
		}
	}
	if len(rows) > 0 {
		flush(depth)
	}
	counts := make([]int64, len(steps))
	var acc int64
	for i := len(steps) - 1; i >= 0; i-- {
		acc += reached[i]
		counts[i] = acc
	}
	return counts
}

func shape(steps []Step, counts []int64) []StepResult {
	o := make([]StepResult, len(steps))
	for i := range steps {
		o[i] = StepResult{Value: steps[i].Value, Events: counts[i]}
		if counts[0] > 0 {
			o[i].EventsPercentage = round(float64(counts[i]) / float64(counts[0]) * 100)
		}
		if i == 0 {
			if counts[0] > 0 {
				o[i].EventsPercStep = 100
			}
			continue
		}
		prev := counts[i-1]
		o[i].Dropoff = prev - counts[i]
		if prev > 0 {
			o[i].EventsPercStep = round(float64(counts[i]) / float64(prev) * 100)
			o[i].DropoffPercStep = round(float64(o[i].Dropoff) / float64(prev) * 100)
		}
	}
	return o
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
