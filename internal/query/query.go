// Package query builds the (range, predicate, params) triple every read
// operation starts from.
package query

import (
	"context"
	"regexp"
	"strings"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/filters"
	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/store"
)

// Resolver turns period params into a range. *period.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, pid string, p period.Params) (period.Range, error)
}

type Params struct {
	PID     string
	Period  period.Params
	Filters string

	DataType     filters.DataType
	CheckDynamic bool
}

type Query struct {
	PID     string
	Range   period.Range
	Filters filters.Compiled

	// CustomEvent routes analytics reads to the custom events table.
	CustomEvent bool
	DataType    filters.DataType
}

var projectID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// CheckPID rejects project ids outside [A-Za-z0-9._-]{1,64}. Presence keys are
// built as hb:<pid>:<psid>, a pid holding a colon would share another
// project's key prefix.
func CheckPID(pid string) error {
	if strings.TrimSpace(pid) == "" {
		return errs.Invalid("missing project id")
	}
	if !projectID.MatchString(pid) {
		return errs.Invalid("project id must be 1 to 64 letters, digits, dots, dashes or underscores")
	}
	return nil
}

// New validates p and resolves it. Only the all period reads the store, after
// every other input was validated.
func New(ctx context.Context, r Resolver, p Params) (Query, error) {
	p.PID = strings.TrimSpace(p.PID)
	if err := CheckPID(p.PID); err != nil {
		return Query{}, err
	}
	fs, err := filters.Parse(p.Filters)
	if err != nil {
		return Query{}, err
	}
	compiled := filters.Compile(fs, p.DataType, p.CheckDynamic)
	rg, err := r.Resolve(ctx, p.PID, p.Period)
	if err != nil {
		return Query{}, err
	}
	return Query{
		PID:         p.PID,
		Range:       rg,
		Filters:     compiled,
		CustomEvent: compiled.CustomEvent,
		DataType:    p.DataType,
	}, nil
}

// Table returns the table q reads from.
func (q Query) Table() string {
	switch q.DataType {
	case filters.Performance:
		return store.TablePerformance
	case filters.Errors:
		return store.TableErrors
	default:
		if q.CustomEvent {
			return store.TableCustomEvents
		}
		return store.TableAnalytics
	}
}

// Where returns the row selection predicate of q, without the WHERE keyword,
// and its arguments. Columns are prefixed with alias when it is not empty.
func (q Query) Where(alias string) (string, []any) {
	prefix := ""
	fragment := q.Filters.SQL
	if alias != "" {
		prefix = alias + "."
		fragment = q.Filters.Qualify(alias)
	}
	args := make([]any, 0, 3+len(q.Filters.Args))
	args = append(args, q.PID, q.Range.FromUTC.Unix(), q.Range.ToUTC.Unix())
	args = append(args, q.Filters.Args...)
	return prefix + "pid = ? AND " + prefix + "created >= ? AND " + prefix + "created < ?" + fragment, args
}
