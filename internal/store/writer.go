package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vinceanalytics/beacon/internal/metrics"
)

// Writer buffers rows in memory and appends them to the store in batches. It
// is fire and forget: callers are never told about a failed flush, failures
// are logged and counted. A crash between Append and flush loses the buffer,
// a retried request can append the same row twice.
type Writer struct {
	db       *DB
	log      *slog.Logger
	in       chan any
	flush    chan chan error
	interval time.Duration
	size     int
}

func (d *DB) Writer(interval time.Duration, size int) *Writer {
	return &Writer{
		db:       d,
		log:      d.log.With("component", "writer"),
		in:       make(chan any, 4<<10),
		flush:    make(chan chan error),
		interval: interval,
		size:     size,
	}
}

// Append queues row for the next flush. row is one of the table models, by
// value or pointer.
func (w *Writer) Append(ctx context.Context, row any) error {
	select {
	case w.in <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush writes all queued rows. It requires Start to be running.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case w.flush <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the write loop until ctx is cancelled.
func (w *Writer) Start(ctx context.Context) {
	w.log.Info("starting event write loop", "interval", w.interval.String(), "batch", w.size)
	ts := time.NewTicker(w.interval)
	defer ts.Stop()
	var b batch
	save := func() error {
		// rows already taken off the channel must land even when the
		// request that produced them is gone.
		err := b.save(context.WithoutCancel(ctx), w.db)
		if err != nil {
			w.log.Error("flushing events batch", "err", err)
		}
		return err
	}
	for {
		select {
		case <-ctx.Done():
			w.drain(&b)
			save()
			w.log.Info("exiting event write loop")
			return
		case <-ts.C:
			save()
		case done := <-w.flush:
			w.drain(&b)
			done <- save()
		case row := <-w.in:
			b.add(row)
			if b.len() >= w.size {
				save()
			}
		}
	}
}

func (w *Writer) drain(b *batch) {
	for {
		select {
		case row := <-w.in:
			b.add(row)
		default:
			return
		}
	}
}

type batch struct {
	pageviews []Pageview
	custom    []CustomEvent
	perf      []Performance
	errors    []ErrorEvent
}

func (b *batch) add(row any) {
	switch e := row.(type) {
	case Pageview:
		b.pageviews = append(b.pageviews, e)
	case *Pageview:
		b.pageviews = append(b.pageviews, *e)
	case CustomEvent:
		b.custom = append(b.custom, e)
	case *CustomEvent:
		b.custom = append(b.custom, *e)
	case Performance:
		b.perf = append(b.perf, e)
	case *Performance:
		b.perf = append(b.perf, *e)
	case ErrorEvent:
		b.errors = append(b.errors, e)
	case *ErrorEvent:
		b.errors = append(b.errors, *e)
	}
}

func (b *batch) len() int {
	return len(b.pageviews) + len(b.custom) + len(b.perf) + len(b.errors)
}

func (b *batch) save(ctx context.Context, db *DB) error {
	defer b.reset()
	var all []error
	if len(b.pageviews) > 0 {
		all = append(all, db.Insert(ctx, &b.pageviews))
		metrics.Flushed.WithLabelValues(TableAnalytics).Add(float64(len(b.pageviews)))
	}
	if len(b.custom) > 0 {
		all = append(all, db.Insert(ctx, &b.custom))
		metrics.Flushed.WithLabelValues(TableCustomEvents).Add(float64(len(b.custom)))
	}
	if len(b.perf) > 0 {
		all = append(all, db.Insert(ctx, &b.perf))
		metrics.Flushed.WithLabelValues(TablePerformance).Add(float64(len(b.perf)))
	}
	if len(b.errors) > 0 {
		all = append(all, db.Insert(ctx, &b.errors))
		metrics.Flushed.WithLabelValues(TableErrors).Add(float64(len(b.errors)))
	}
	return errors.Join(all...)
}

func (b *batch) reset() {
	b.pageviews = b.pageviews[:0]
	b.custom = b.custom[:0]
	b.perf = b.perf[:0]
	b.errors = b.errors[:0]
}
