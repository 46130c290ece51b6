package stats

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
	"golang.org/x/sync/errgroup"
)

// MaxMetricsInView caps the metrics of one GetMetaResults call.
const MaxMetricsInView = 3

var name = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Metric aggregates the metadata key Key of custom events named Event.
type Metric struct {
	Event   string `json:"event"`
	Key     string `json:"key"`
	Measure string `json:"measure"`
}

func (m Metric) validate() error {
	if !name.MatchString(m.Event) {
		return errs.Invalid(fmt.Sprintf("invalid event name %q", m.Event))
	}
	if !name.MatchString(m.Key) {
		return errs.Invalid(fmt.Sprintf("invalid metadata key %q", m.Key))
	}
	switch m.Measure {
	case "count", "sum", "average":
		return nil
	default:
		return errs.Invalid(fmt.Sprintf("unknown measure %q", m.Measure))
	}
}

type MetaResult struct {
	Metric Metric    `json:"metric"`
	X      []string  `json:"x"`
	Values []float64 `json:"values"`
	Total  float64   `json:"total"`
}

// GetMetaResults computes each metric per bucket over the custom events of q.
func (e *Engine) GetMetaResults(ctx context.Context, q query.Query, metrics []Metric) ([]MetaResult, error) {
	if len(metrics) > MaxMetricsInView {
		return nil, errs.Invalid(fmt.Sprintf("at most %d metrics can be requested", MaxMetricsInView))
	}
	for _, m := range metrics {
		if err := m.validate(); err != nil {
			return nil, err
		}
	}
	q.CustomEvent = true
	o := make([]MetaResult, len(metrics))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range metrics {
		g.Go(func() (err error) {
			o[i], err = e.meta(ctx, q, m)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return o, nil
}

func (e *Engine) meta(ctx context.Context, q query.Query, m Metric) (MetaResult, error) {
	slot := Slot(q.Range)
	where, args := q.Where("")
	path := `$."` + m.Key + `"`
	var rows []struct {
		Slot  int64
		N     int64
		Total float64
	}
	err := e.db.Select(ctx, "meta_"+m.Measure, &rows,
		`SELECT (created / ?) * ? AS slot, COUNT(*) AS n,
			COALESCE(SUM(CAST(json_extract(meta, ?) AS REAL)), 0) AS total
		FROM `+store.TableCustomEvents+`
		WHERE `+where+` AND ev = ? AND json_extract(meta, ?) IS NOT NULL
		GROUP BY slot ORDER BY slot`,
		append(append([]any{slot, slot, path}, args...), m.Event, path)...)
	if err != nil {
		return MetaResult{}, err
	}
	b := newBuckets(q.Range)
	n := make([]int64, b.len())
	sum := make([]float64, b.len())
	var totalN int64
	var totalSum float64
	for _, row := range rows {
		if i, ok := b.at(row.Slot); ok {
			n[i] += row.N
			sum[i] += row.Total
			totalN += row.N
			totalSum += row.Total
		}
	}
	o := MetaResult{Metric: m, X: b.x, Values: make([]float64, b.len())}
	for i := range o.Values {
		o.Values[i] = measure(m.Measure, n[i], sum[i])
	}
	o.Total = measure(m.Measure, totalN, totalSum)
	return o, nil
}

func measure(kind string, n int64, sum float64) float64 {
	switch kind {
	case "count":
		return float64(n)
	case "sum":
		return sum
	default:
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
}

type EventCount struct {
	Name    string `json:"name"`
	Events  int64  `json:"events"`
	Uniques int64  `json:"uniques"`
}

// CustomEvents counts custom events of q by name.
func (e *Engine) CustomEvents(ctx context.Context, q query.Query) ([]EventCount, error) {
	q.CustomEvent = true
	where, args := q.Where("")
	o := []EventCount{}
	err := e.db.Select(ctx, "custom_events", &o,
		`SELECT ev AS name, COUNT(*) AS events, COALESCE(SUM(uniq), 0) AS uniques
		FROM `+store.TableCustomEvents+` WHERE `+where+`
		GROUP BY ev ORDER BY events DESC, name`, args...)
	if err != nil {
		return nil, err
	}
	return o, nil
}
