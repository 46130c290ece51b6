// Package heartbeat tracks sessions that are currently on a page.
package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/presence"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

type Tracker struct {
	presence presence.Store
	db       *store.DB
	ttl      time.Duration
	lookback time.Duration
	log      *slog.Logger
}

func New(p presence.Store, db *store.DB, ttl, lookback time.Duration, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		presence: p,
		db:       db,
		ttl:      ttl,
		lookback: lookback,
		log:      log.With("component", "heartbeat"),
	}
}

func prefix(pid string) string {
	return "hb:" + pid + ":"
}

// Heartbeat marks psid as present for the next ttl.
func (t *Tracker) Heartbeat(ctx context.Context, psid, pid string) error {
	err := t.presence.Set(ctx, prefix(pid)+psid, "1", t.ttl)
	if err != nil {
		t.log.Error("refreshing presence", "pid", pid, "err", err)
		return errs.Upstream.Wrap(err, "heartbeat")
	}
	return nil
}

// ActiveSessions returns the sessions of pid with a live marker.
func (t *Tracker) ActiveSessions(ctx context.Context, pid string) (map[string]struct{}, error) {
	p := prefix(pid)
	keys, err := t.presence.Keys(ctx, p)
	if err != nil {
		t.log.Error("listing presence", "pid", pid, "err", err)
		return nil, errs.Upstream.Wrap(err, "heartbeat")
	}
	o := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		psid := strings.TrimPrefix(k, p)
		// a remaining colon means the key belongs to a pid that starts with
		// pid + ":".
		if strings.Contains(psid, ":") {
			continue
		}
		o[psid] = struct{}{}
	}
	return o, nil
}

func (t *Tracker) OnlineCount(ctx context.Context, pid string) (int, error) {
	active, err := t.ActiveSessions(ctx, pid)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (t *Tracker) IsActive(ctx context.Context, pid, psid string) (bool, error) {
	_, err := t.presence.Get(ctx, prefix(pid)+psid)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, presence.ErrNotFound):
		return false, nil
	default:
		return false, errs.Upstream.Wrap(err, "heartbeat")
	}
}

// LiveVisitor is the latest known context of an active session.
type LiveVisitor struct {
	SessionID string `json:"psid" gorm:"column:psid"`
	Page      string `json:"pg" gorm:"column:pg"`
	Device    string `json:"dv" gorm:"column:dv"`
	Browser   string `json:"br" gorm:"column:br"`
	OS        string `json:"os" gorm:"column:os"`
	Country   string `json:"cc" gorm:"column:cc"`
	Created   int64  `json:"created"`
	ID        uint64 `json:"-"`
}

const chunk = 500

// LiveVisitors joins active sessions with their newest pageview in the
// lookback window. Sessions without a recent pageview are left out.
func (t *Tracker) LiveVisitors(ctx context.Context, pid string) ([]LiveVisitor, error) {
	active, err := t.ActiveSessions(ctx, pid)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	since := timeutil.Now().Add(-t.lookback).Unix()
	latest := map[string]LiveVisitor{}
	for len(ids) > 0 {
		part := ids[:min(chunk, len(ids))]
		ids = ids[len(part):]
		args := make([]any, 0, len(part)+2)
		args = append(args, pid, since)
		for _, id := range part {
			args = append(args, id)
		}
		var rows []LiveVisitor
		err := t.db.Select(ctx, "live_visitors", &rows,
			`SELECT psid, pg, dv, br, os, cc, created, id FROM `+store.TableAnalytics+`
			WHERE pid = ? AND created >= ? AND psid IN (`+strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")+`)
			ORDER BY created DESC, id DESC`, args...)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if _, ok := latest[r.SessionID]; !ok {
				latest[r.SessionID] = r
			}
		}
	}
	o := make([]LiveVisitor, 0, len(latest))
	for _, v := range latest {
		o = append(o, v)
	}
	slices.SortFunc(o, func(a, b LiveVisitor) int {
		if a.Created != b.Created {
			if a.Created > b.Created {
				return -1
			}
			return 1
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return o, nil
}
