package period

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

// SpanTTL is how long the earliest event of a project is cached.
const SpanTTL = 5 * time.Minute

// Span is the extent of the data of a project.
type Span struct {
	Earliest time.Time
	Found    bool
}

// SpanSource finds the earliest event of a project.
type SpanSource interface {
	Earliest(ctx context.Context, pid string) (time.Time, bool, error)
}

type Resolver struct {
	src   SpanSource
	cache *ristretto.Cache
	log   *slog.Logger
}

func NewResolver(src SpanSource, log *slog.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 14,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating span cache %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{src: src, cache: cache, log: log.With("component", "period")}, nil
}

func (r *Resolver) Close() {
	r.cache.Close()
}

// ResolveSpan returns the data span of pid, reading through the cache.
func (r *Resolver) ResolveSpan(ctx context.Context, pid string) (Span, error) {
	if v, ok := r.cache.Get(pid); ok {
		return v.(Span), nil
	}
	ts, ok, err := r.src.Earliest(ctx, pid)
	if err != nil {
		return Span{}, err
	}
	s := Span{Earliest: ts, Found: ok}
	r.cache.SetWithTTL(pid, s, 1, SpanTTL)
	return s, nil
}

// Resolve runs both phases for All and Resolve for everything else. Inputs
// are validated before the span is read.
func (r *Resolver) Resolve(ctx context.Context, pid string, p Params) (Range, error) {
	loc, ok := Location(p.TZ)
	if !ok && p.TZ != "" {
		r.log.Debug("unknown timezone, using UTC", "tz", p.TZ)
	}
	now := timeutil.Now()
	period, ok := ParsePeriod(p.Period)
	if !ok || period != All {
		return Resolve(p, loc, now)
	}
	if _, err := parseBucket(p.Bucket); err != nil {
		return Range{}, err
	}
	span, err := r.ResolveSpan(ctx, pid)
	if err != nil {
		return Range{}, err
	}
	return ResolveRange(span, p.Bucket, loc, now)
}
