package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/errtrack"
	"github.com/vinceanalytics/beacon/internal/filters"
	"github.com/vinceanalytics/beacon/internal/funnel"
	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/stats"
	"golang.org/x/sync/errgroup"
)

func periodParams(r *http.Request) period.Params {
	q := r.URL.Query()
	return period.Params{
		Period: q.Get("period"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Bucket: q.Get("bucket"),
		TZ:     q.Get("timezone"),
	}
}

func (h *handler) query(r *http.Request, pid string, dt filters.DataType) (query.Query, error) {
	return query.New(r.Context(), h.Resolver, query.Params{
		PID:          pid,
		Period:       periodParams(r),
		Filters:      r.URL.Query().Get("filters"),
		DataType:     dt,
		CheckDynamic: dt == filters.Analytics,
	})
}

// serve resolves the query of the request and hands it to fn.
func (h *handler) serve(dt filters.DataType, fn func(r *http.Request, q query.Query) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := h.query(r, chi.URLParam(r, "pid"), dt)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		data, err := fn(r, q)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.json(w, r, http.StatusOK, data)
	}
}

func (h *handler) timeseries(w http.ResponseWriter, r *http.Request) {
	mode, err := stats.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Engine.GroupByTimeBucket(r.Context(), q, mode)
	})(w, r)
}

func (h *handler) customEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Engine.CustomEvents(r.Context(), q)
	})(w, r)
}

func (h *handler) meta(w http.ResponseWriter, r *http.Request) {
	var ms []stats.Metric
	if err := json.Unmarshal([]byte(r.URL.Query().Get("metrics")), &ms); err != nil {
		h.fail(w, r, errs.Invalid("metrics must be a JSON array"))
		return
	}
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Engine.GetMetaResults(r.Context(), q, ms)
	})(w, r)
}

func (h *handler) perf(w http.ResponseWriter, r *http.Request) {
	m, err := stats.ParseMeasure(r.URL.Query().Get("measure"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serve(filters.Performance, func(r *http.Request, q query.Query) (any, error) {
		return h.Engine.GroupPerfByTimeBucket(r.Context(), q, m)
	})(w, r)
}

func (h *handler) sessions(w http.ResponseWriter, r *http.Request) {
	page, err := query.ParsePage(r.URL.Query().Get("take"), r.URL.Query().Get("skip"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Engine.Sessions(r.Context(), q, page)
	})(w, r)
}

// pid returns the validated project id of the route.
func pid(r *http.Request) (string, error) {
	id := chi.URLParam(r, "pid")
	return id, query.CheckPID(id)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	id, err := pid(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Engine.Session(r.Context(), id, chi.URLParam(r, "psid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusOK, o)
}

func (h *handler) funnelSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := funnel.ParseSteps(r.URL.Query()["steps"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Funnel.Funnel(r.Context(), q, steps)
	})(w, r)
}

func (h *handler) userFlow(w http.ResponseWriter, r *http.Request) {
	h.serve(filters.Analytics, func(r *http.Request, q query.Query) (any, error) {
		return h.Flow.UserFlow(r.Context(), q)
	})(w, r)
}

func (h *handler) online(w http.ResponseWriter, r *http.Request) {
	id, err := pid(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.Live.OnlineCount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusOK, map[string]int{"online": n})
}

func (h *handler) live(w http.ResponseWriter, r *http.Request) {
	id, err := pid(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ls, err := h.Live.LiveVisitors(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusOK, ls)
}

func (h *handler) errorList(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	page, err := query.ParsePage(v.Get("take"), v.Get("skip"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var showResolved bool
	if s := v.Get("showResolved"); s != "" {
		showResolved, err = strconv.ParseBool(s)
		if err != nil {
			h.fail(w, r, errs.Invalid("showResolved must be a boolean"))
			return
		}
	}
	h.serve(filters.Errors, func(r *http.Request, q query.Query) (any, error) {
		return h.Errors.List(r.Context(), q, page, showResolved)
	})(w, r)
}

func (h *handler) errorDetail(w http.ResponseWriter, r *http.Request) {
	h.serve(filters.Errors, func(r *http.Request, q query.Query) (any, error) {
		return h.Errors.Detail(r.Context(), q, chi.URLParam(r, "eid"))
	})(w, r)
}

func (h *handler) errorStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pid(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		EIDs   []string `json:"eids"`
		Status string   `json:"status"`
	}
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := errtrack.ParseStatus(body.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.Errors.UpdateStatus(r.Context(), body.EIDs, status, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type projectOverview struct {
	Overall stats.Overall `json:"overall"`
	Online  int           `json:"online"`
}

// overview returns the headline figures of several projects at once. Every
// id is validated before any of them is queried.
func (h *handler) overview(w http.ResponseWriter, r *http.Request) {
	ids, err := query.ParseProjectIDs(r.URL.Query().Get("pids"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qs := make([]query.Query, len(ids))
	g, ctx := errgroup.WithContext(r.Context())
	for i, id := range ids {
		g.Go(func() (err error) {
			qs[i], err = query.New(ctx, h.Resolver, query.Params{
				PID:          id,
				Period:       periodParams(r),
				Filters:      r.URL.Query().Get("filters"),
				DataType:     filters.Analytics,
				CheckDynamic: true,
			})
			return
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]projectOverview, len(ids))
	g, ctx = errgroup.WithContext(r.Context())
	for i := range qs {
		g.Go(func() (err error) {
			out[i].Overall, err = h.Engine.Overall(ctx, qs[i])
			return
		})
		g.Go(func() (err error) {
			out[i].Online, err = h.Live.OnlineCount(ctx, ids[i])
			return
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}
	o := make(map[string]projectOverview, len(ids))
	for i, id := range ids {
		o[id] = out[i]
	}
	h.json(w, r, http.StatusOK, o)
}
