package errtrack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/filters"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/stats"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	Resolved   Status = "resolved"
	Unresolved Status = "unresolved"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case Resolved, Unresolved:
		return st, nil
	default:
		return "", errs.Invalid(fmt.Sprintf("unknown error status %q", s))
	}
}

// MaxBatch caps the fingerprints of one status update.
const MaxBatch = 100

type Tracker struct {
	db     *store.DB
	engine *stats.Engine
	log    *slog.Logger
}

func New(db *store.DB, engine *stats.Engine, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{db: db, engine: engine, log: log.With("component", "errtrack")}
}

// UpdateStatus sets status on every eid of pid. It applies to all past and
// future occurrences sharing the fingerprint.
func (t *Tracker) UpdateStatus(ctx context.Context, eids []string, status Status, pid string) error {
	if pid == "" {
		return errs.Invalid("missing project id")
	}
	if len(eids) == 0 || len(eids) > MaxBatch {
		return errs.Invalid(fmt.Sprintf("between 1 and %d error ids can be updated at once", MaxBatch))
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	for _, id := range eids {
		if id == "" {
			return errs.Invalid("blank error id")
		}
	}
	return t.db.UpsertErrorStatus(ctx, pid, dedupe(eids), string(status), timeutil.Now())
}

func dedupe(ls []string) []string {
	seen := make(map[string]struct{}, len(ls))
	o := make([]string, 0, len(ls))
	for _, s := range ls {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		o = append(o, s)
	}
	return o
}

// Group is all occurrences of one fingerprint.
type Group struct {
	EID       string `json:"eid" gorm:"column:eid"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	Lineno    int64  `json:"lineno"`
	Colno     int64  `json:"colno"`
	Count     int64  `json:"count"`
	Sessions  int64  `json:"sessions"`
	FirstSeen int64  `json:"firstSeen"`
	LastSeen  int64  `json:"lastSeen"`
	Status    Status `json:"status"`
}

const groupColumns = `e.eid AS eid, MAX(e.name) AS name, MAX(e.message) AS message,
	MAX(e.filename) AS filename, MAX(e.lineno) AS lineno, MAX(e.colno) AS colno,
	COUNT(*) AS count, COUNT(DISTINCT NULLIF(e.psid, '')) AS sessions,
	MIN(e.created) AS first_seen, MAX(e.created) AS last_seen,
	COALESCE(s.status, 'unresolved') AS status`

// List returns the errors of q grouped by fingerprint, most recent first.
// Resolved errors are only included when showResolved is set.
func (t *Tracker) List(ctx context.Context, q query.Query, page query.Page, showResolved bool) ([]Group, error) {
	where, args := q.Where("e")
	if !showResolved {
		where += ` AND COALESCE(s.status, 'unresolved') = 'unresolved'`
	}
	o := []Group{}
	err := t.db.Select(ctx, "errors", &o,
		`SELECT `+groupColumns+`
		FROM `+store.TableErrors+` e
		LEFT JOIN `+store.TableErrorStatuses+` s ON s.pid = e.pid AND s.eid = e.eid
		WHERE `+where+`
		GROUP BY e.eid, s.status
		ORDER BY last_seen DESC, e.eid LIMIT ? OFFSET ?`,
		append(args, page.Take, page.Skip)...)
	if err != nil {
		return nil, err
	}
	return o, nil
}

type Detail struct {
	Group
	StackTrace string                       `json:"stackTrace"`
	Page       string                       `json:"pg"`
	X          []string                     `json:"x"`
	Series     []int64                      `json:"series"`
	Params     map[string][]stats.Breakdown `json:"params"`
}

var detailColumns = []string{"br", "os", "dv", "cc", "pg", "lc"}

// Detail describes one fingerprint: its metadata over all time, and its
// occurrences and breakdowns within q.
func (t *Tracker) Detail(ctx context.Context, q query.Query, eid string) (*Detail, error) {
	if eid == "" {
		return nil, errs.Invalid("missing error id")
	}
	q.DataType = filters.Errors
	var groups []Group
	err := t.db.Select(ctx, "error_meta", &groups,
		`SELECT `+groupColumns+`
		FROM `+store.TableErrors+` e
		LEFT JOIN `+store.TableErrorStatuses+` s ON s.pid = e.pid AND s.eid = e.eid
		WHERE e.pid = ? AND e.eid = ?
		GROUP BY e.eid, s.status`, q.PID, eid)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, errs.Invalid("unknown error " + eid)
	}
	o := &Detail{Group: groups[0], Params: make(map[string][]stats.Breakdown, len(detailColumns))}
	values := make([][]stats.Breakdown, len(detailColumns))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var last []struct {
			StackTrace string
			Page       string `gorm:"column:pg"`
		}
		err := t.db.Select(gctx, "error_last", &last,
			`SELECT stack_trace, pg FROM `+store.TableErrors+`
			WHERE pid = ? AND eid = ? ORDER BY created DESC LIMIT 1`, q.PID, eid)
		if err == nil && len(last) > 0 {
			o.StackTrace = last[0].StackTrace
			o.Page = last[0].Page
		}
		return err
	})
	g.Go(func() (err error) {
		o.X, o.Series, err = t.engine.Timeline(gctx, "error_series", q, " AND eid = ?", eid)
		return
	})
	for i, col := range detailColumns {
		g.Go(func() (err error) {
			values[i], err = t.engine.Breakdown(gctx, q, col, " AND eid = ?", eid)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, col := range detailColumns {
		o.Params[col] = values[i]
	}
	return o, nil
}
