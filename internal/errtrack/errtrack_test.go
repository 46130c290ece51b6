package errtrack

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/filters"
	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/stats"
	"github.com/vinceanalytics/beacon/internal/store"
)

func TestIDIsStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	dto := gopter.CombineGens(
		gen.AlphaString(), gen.AlphaString(), gen.AnyString(), gen.AnyString(),
		gen.Int64Range(0, 1<<20), gen.Int64Range(0, 1<<20),
	).Map(func(v []any) ErrorDTO {
		return ErrorDTO{
			PID: v[0].(string), Name: v[1].(string), Message: v[2].(string),
			Filename: v[3].(string), Lineno: v[4].(int64), Colno: v[5].(int64),
		}
	})

	properties.Property("same fields same id", prop.ForAll(
		func(e ErrorDTO) bool {
			return ID(e) == ID(e) && len(ID(e)) == 16
		},
		dto,
	))
	properties.Property("changing one field changes the id", prop.ForAll(
		func(e ErrorDTO, field int) bool {
			o := e
			switch field {
			case 0:
				o.PID += "x"
			case 1:
				o.Name += "x"
			case 2:
				o.Message += "x"
			case 3:
				o.Filename += "x"
			case 4:
				o.Lineno++
			default:
				o.Colno++
			}
			return ID(e) != ID(o)
		},
		dto, gen.IntRange(0, 5),
	))
	properties.TestingRun(t)

	a := ID(ErrorDTO{PID: "p", Name: "ab", Message: "c"})
	b := ID(ErrorDTO{PID: "p", Name: "a", Message: "bc"})
	require.NotEqual(t, a, b)
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)
	typeErr := ErrorDTO{PID: "p1", Name: "TypeError", Message: "x is undefined", Filename: "app.js", Lineno: 10, Colno: 4}
	rangeErr := ErrorDTO{PID: "p1", Name: "RangeError", Message: "invalid length", Filename: "app.js", Lineno: 99, Colno: 1}
	row := func(id string, e ErrorDTO, psid, browser string, at time.Time) store.ErrorEvent {
		return store.ErrorEvent{
			ID: id, ProjectID: e.PID, EID: ID(e), SessionID: psid,
			Name: e.Name, Message: e.Message, Filename: e.Filename, Lineno: e.Lineno, Colno: e.Colno,
			StackTrace: "at " + id, Page: "/", Browser: browser, Created: at.Unix(),
		}
	}
	rows := []store.ErrorEvent{
		row("1", typeErr, "s1", "Chrome", ts),
		row("2", typeErr, "s2", "Firefox", ts.Add(time.Hour)),
		row("3", typeErr, "s2", "Firefox", ts.Add(2*time.Hour)),
		row("4", rangeErr, "s3", "Chrome", ts.Add(-24*time.Hour)),
	}
	require.NoError(t, db.Insert(ctx, &rows))

	tr := New(db, stats.New(db, nil, nil), nil)
	r, err := period.Resolve(period.Params{Period: "7d", Bucket: "day"}, time.UTC, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	q := query.Query{PID: "p1", Range: r, DataType: filters.Errors}
	page := query.Page{Take: 30}

	ls, err := tr.List(ctx, q, page, false)
	require.NoError(t, err)
	require.Len(t, ls, 2)
	require.Equal(t, ID(typeErr), ls[0].EID)
	require.Equal(t, int64(3), ls[0].Count)
	require.Equal(t, int64(2), ls[0].Sessions)
	require.Equal(t, Unresolved, ls[0].Status)
	require.Equal(t, ts.Unix(), ls[0].FirstSeen)

	require.NoError(t, tr.UpdateStatus(ctx, []string{ID(typeErr), ID(typeErr)}, Resolved, "p1"))

	ls, err = tr.List(ctx, q, page, false)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	require.Equal(t, ID(rangeErr), ls[0].EID)

	ls, err = tr.List(ctx, q, page, true)
	require.NoError(t, err)
	require.Len(t, ls, 2)
	require.Equal(t, Resolved, ls[0].Status)

	// a second update overwrites the first
	require.NoError(t, tr.UpdateStatus(ctx, []string{ID(typeErr)}, Unresolved, "p1"))
	ls, err = tr.List(ctx, q, page, false)
	require.NoError(t, err)
	require.Len(t, ls, 2)

	fs, err := filters.Parse(`[{"column":"br","filter":"Firefox"}]`)
	require.NoError(t, err)
	fq := q
	fq.Filters = filters.Compile(fs, filters.Errors, false)
	ls, err = tr.List(ctx, fq, page, true)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	require.Equal(t, int64(2), ls[0].Count)

	d, err := tr.Detail(ctx, q, ID(typeErr))
	require.NoError(t, err)
	require.Equal(t, "TypeError", d.Name)
	require.Equal(t, "at 3", d.StackTrace)
	require.Equal(t, []int64{0, 0, 0, 0, 0, 3, 0}, d.Series)
	require.Equal(t, []stats.Breakdown{
		{Value: "Firefox", Visits: 2, Uniques: 1},
		{Value: "Chrome", Visits: 1, Uniques: 1},
	}, d.Params["br"])

	_, err = tr.Detail(ctx, q, "missing")
	require.True(t, errs.IsInvalid(err))
}

func TestErrorsWithoutSession(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)
	e := ErrorDTO{PID: "p1", Name: "TypeError", Message: "x is undefined"}
	var rows []store.ErrorEvent
	for i, psid := range []string{"s1", "", ""} {
		rows = append(rows, store.ErrorEvent{
			ID: string(rune('a' + i)), ProjectID: "p1", EID: ID(e), SessionID: psid,
			Name: e.Name, Message: e.Message, Browser: "Chrome", Created: ts.Unix(),
		})
	}
	require.NoError(t, db.Insert(ctx, &rows))

	tr := New(db, stats.New(db, nil, nil), nil)
	r, err := period.Resolve(period.Params{Period: "7d", Bucket: "day"}, time.UTC, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	q := query.Query{PID: "p1", Range: r, DataType: filters.Errors}

	ls, err := tr.List(ctx, q, query.Page{Take: 30}, false)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	require.Equal(t, int64(3), ls[0].Count)
	require.Equal(t, int64(1), ls[0].Sessions)

	d, err := tr.Detail(ctx, q, ID(e))
	require.NoError(t, err)
	require.Equal(t, []stats.Breakdown{{Value: "Chrome", Visits: 3, Uniques: 1}}, d.Params["br"])
}

func TestUpdateStatusValidation(t *testing.T) {
	tr := New(nil, nil, nil)
	ctx := context.Background()
	require.True(t, errs.IsInvalid(tr.UpdateStatus(ctx, nil, Resolved, "p1")))
	require.True(t, errs.IsInvalid(tr.UpdateStatus(ctx, make([]string, MaxBatch+1), Resolved, "p1")))
	require.True(t, errs.IsInvalid(tr.UpdateStatus(ctx, []string{"a"}, Status("ignored"), "p1")))
	require.True(t, errs.IsInvalid(tr.UpdateStatus(ctx, []string{"a"}, Resolved, "")))
	require.True(t, errs.IsInvalid(tr.UpdateStatus(ctx, []string{""}, Resolved, "p1")))
}
