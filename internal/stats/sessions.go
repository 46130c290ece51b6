package stats

import (
	"context"
	"slices"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/store"
)

type Session struct {
	ID        string `json:"psid" gorm:"column:psid"`
	FirstSeen int64  `json:"firstSeen"`
	LastSeen  int64  `json:"lastSeen"`
	Pageviews int64  `json:"pageviews"`
	Country   string `json:"cc" gorm:"column:cc"`
	OS        string `json:"os" gorm:"column:os"`
	Browser   string `json:"br" gorm:"column:br"`
	Device    string `json:"dv" gorm:"column:dv"`
	Active    bool   `json:"active" gorm:"-"`
}

// Sessions lists the sessions of q, most recent first.
func (e *Engine) Sessions(ctx context.Context, q query.Query, page query.Page) ([]Session, error) {
	where, args := q.Where("")
	o := []Session{}
	err := e.db.Select(ctx, "sessions", &o,
		`SELECT psid, MIN(created) AS first_seen, MAX(created) AS last_seen, COUNT(*) AS pageviews,
			MAX(cc) AS cc, MAX(os) AS os, MAX(br) AS br, MAX(dv) AS dv
		FROM `+q.Table()+` WHERE `+where+`
		GROUP BY psid ORDER BY last_seen DESC, psid LIMIT ? OFFSET ?`,
		append(args, page.Take, page.Skip)...)
	if err != nil {
		return nil, err
	}
	if len(o) == 0 || e.presence == nil {
		return o, nil
	}
	active, err := e.presence.ActiveSessions(ctx, q.PID)
	if err != nil {
		return nil, err
	}
	for i := range o {
		_, o[i].Active = active[o[i].ID]
	}
	return o, nil
}

// Step is one action inside a session.
type Step struct {
	Kind    string `json:"kind"`
	Page    string `json:"pg" gorm:"column:pg"`
	Event   string `json:"ev,omitempty" gorm:"column:ev"`
	Meta    string `json:"meta,omitempty"`
	Created int64  `json:"created"`
	ID      uint64 `json:"-"`
}

type SessionDetail struct {
	ID       string `json:"psid"`
	Steps    []Step `json:"steps"`
	Duration int64  `json:"duration"`
	Active   bool   `json:"active"`
}

// Session returns every pageview and custom event of psid in order.
func (e *Engine) Session(ctx context.Context, pid, psid string) (*SessionDetail, error) {
	if psid == "" {
		return nil, errs.Invalid("missing session id")
	}
	var pages, events []Step
	err := e.db.Select(ctx, "session_pages", &pages,
		`SELECT 'pageview' AS kind, pg, meta, created, id FROM `+store.TableAnalytics+`
		WHERE pid = ? AND psid = ? ORDER BY created, id`, pid, psid)
	if err != nil {
		return nil, err
	}
	err = e.db.Select(ctx, "session_events", &events,
		`SELECT 'event' AS kind, pg, ev, meta, created, id FROM `+store.TableCustomEvents+`
		WHERE pid = ? AND psid = ? ORDER BY created, id`, pid, psid)
	if err != nil {
		return nil, err
	}
	steps := append(pages, events...)
	if len(steps) == 0 {
		return nil, errs.Invalid("unknown session " + psid)
	}
	// stable keeps pageviews ahead of events at equal timestamps
	slices.SortStableFunc(steps, func(a, b Step) int {
		switch {
		case a.Created < b.Created:
			return -1
		case a.Created > b.Created:
			return 1
		default:
			return 0
		}
	})
	o := &SessionDetail{
		ID:       psid,
		Steps:    steps,
		Duration: steps[len(steps)-1].Created - steps[0].Created,
	}
	if e.presence != nil {
		o.Active, err = e.presence.IsActive(ctx, pid, psid)
		if err != nil {
			return nil, err
		}
	}
	return o, nil
}
