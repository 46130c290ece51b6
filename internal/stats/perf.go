package stats

import (
	"context"
	"fmt"

	mstats "github.com/montanaflynn/stats"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
)

// PerfFields are the timing columns of the performance table.
var PerfFields = []string{"dns", "tls", "conn", "response", "render", "dom_load", "page_load", "ttfb"}

type Measure string

const (
	Median    Measure = "median"
	Average   Measure = "average"
	P75       Measure = "p75"
	P95       Measure = "p95"
	Quantiles Measure = "quantiles"
)

func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(s); m {
	case Median, Average, P75, P95, Quantiles:
		return m, nil
	case "":
		return Median, nil
	default:
		return "", errs.Invalid(fmt.Sprintf("unknown measure %q", s))
	}
}

// Quantile is the distribution summary of one timing field in one bucket.
type Quantile struct {
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type PerfResult struct {
	X       []string `json:"x"`
	Measure Measure  `json:"measure"`
	Count   []int64  `json:"count"`
	// Series is set for every measure except Quantiles.
	Series map[string][]float64 `json:"series,omitempty"`
	// Quantiles is set for the Quantiles measure.
	Quantiles map[string][]Quantile `json:"quantiles,omitempty"`
	// Overall applies the measure to the whole range.
	Overall map[string]float64 `json:"overall"`
}

type perfRow struct {
	Created  int64
	DNS      float64 `gorm:"column:dns"`
	TLS      float64 `gorm:"column:tls"`
	Conn     float64
	Response float64
	Render   float64
	DomLoad  float64
	PageLoad float64
	TTFB     float64 `gorm:"column:ttfb"`
}

func (p *perfRow) values() [8]float64 {
	return [8]float64{p.DNS, p.TLS, p.Conn, p.Response, p.Render, p.DomLoad, p.PageLoad, p.TTFB}
}

// perfSampleLimit bounds the raw timings loaded for one request.
var perfSampleLimit = 200_000

// GroupPerfByTimeBucket computes measure for every timing field per bucket.
// Quantiles need the raw timings, they are fetched ordered and summarized
// here.
func (e *Engine) GroupPerfByTimeBucket(ctx context.Context, q query.Query, m Measure) (*PerfResult, error) {
	switch m {
	case Median, Average, P75, P95, Quantiles:
	default:
		return nil, errs.Invalid(fmt.Sprintf("unknown measure %q", m))
	}
	where, args := q.Where("")
	var rows []perfRow
	err := e.db.Select(ctx, "performance", &rows,
		`SELECT created, dns, tls, conn, response, render, dom_load, page_load, ttfb
		FROM `+store.TablePerformance+` WHERE `+where+` ORDER BY created LIMIT ?`,
		append(args, perfSampleLimit+1)...)
	if err != nil {
		return nil, err
	}
	if len(rows) > perfSampleLimit {
		return nil, errs.Invalid(fmt.Sprintf("more than %d performance samples in range, narrow the period or add filters", perfSampleLimit))
	}
	b := newBuckets(q.Range)
	// samples[field][bucket]
	samples := make([][][]float64, len(PerfFields))
	all := make([][]float64, len(PerfFields))
	for f := range samples {
		samples[f] = make([][]float64, b.len())
	}
	o := &PerfResult{
		X:       b.x,
		Measure: m,
		Count:   make([]int64, b.len()),
		Overall: make(map[string]float64, len(PerfFields)),
	}
	for i := range rows {
		pos, ok := b.at(rows[i].Created)
		if !ok {
			continue
		}
		o.Count[pos]++
		for f, v := range rows[i].values() {
			samples[f][pos] = append(samples[f][pos], v)
			all[f] = append(all[f], v)
		}
	}
	if m == Quantiles {
		o.Quantiles = make(map[string][]Quantile, len(PerfFields))
	} else {
		o.Series = make(map[string][]float64, len(PerfFields))
	}
	for f, field := range PerfFields {
		if m == Quantiles {
			qs := make([]Quantile, b.len())
			for pos := range qs {
				qs[pos] = quantiles(samples[f][pos])
			}
			o.Quantiles[field] = qs
			o.Overall[field] = summarize(Median, all[f])
			continue
		}
		vs := make([]float64, b.len())
		for pos := range vs {
			vs[pos] = summarize(m, samples[f][pos])
		}
		o.Series[field] = vs
		o.Overall[field] = summarize(m, all[f])
	}
	return o, nil
}

// summarize applies m to values. Percentiles use the nearest rank so every
// reported timing is one that was actually measured.
func summarize(m Measure, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch m {
	case Average:
		return must(mstats.Mean(values))
	case P75:
		return percentile(values, 75)
	case P95:
		return percentile(values, 95)
	default:
		return must(mstats.Median(values))
	}
}

func quantiles(values []float64) Quantile {
	if len(values) == 0 {
		return Quantile{}
	}
	return Quantile{
		P50: must(mstats.Median(values)),
		P75: percentile(values, 75),
		P90: percentile(values, 90),
		P95: percentile(values, 95),
		P99: percentile(values, 99),
	}
}

func percentile(values []float64, p float64) float64 {
	return must(mstats.PercentileNearestRank(values, p))
}

// must drops the error of a summary over a non empty sample, the only
// failure left is empty input.
func must(v float64, err error) float64 {
	if err != nil {
		return 0
	}
	return v
}
