package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/beacon/internal/errtrack"
	"github.com/vinceanalytics/beacon/internal/flow"
	"github.com/vinceanalytics/beacon/internal/funnel"
	"github.com/vinceanalytics/beacon/internal/geo"
	"github.com/vinceanalytics/beacon/internal/heartbeat"
	"github.com/vinceanalytics/beacon/internal/ingest"
	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/presence"
	"github.com/vinceanalytics/beacon/internal/stats"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
	"github.com/vinceanalytics/beacon/internal/ua"
	"github.com/vinceanalytics/beacon/internal/userid"
)

const chrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type server struct {
	h http.Handler
	w *store.Writer
}

func setup(t *testing.T, rateLimit int) *server {
	t.Helper()
	old := timeutil.Now
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	timeutil.Now = func() time.Time { return ts }

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := presence.NewRedis(client)

	db, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	w := db.Writer(time.Hour, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	live := heartbeat.New(p, db, time.Minute, 3*time.Hour, nil)
	engine := stats.New(db, live, nil)
	resolver, err := period.NewResolver(engine, nil)
	require.NoError(t, err)
	locator, err := geo.Open("")
	require.NoError(t, err)
	id := userid.New(userid.NewSalt("secret", 24*time.Hour), p, nil)

	t.Cleanup(func() {
		cancel()
		<-done
		resolver.Close()
		db.Close()
		client.Close()
		mr.Close()
		timeutil.Now = old
	})
	return &server{
		w: w,
		h: New(Deps{
			Ingest:         ingest.New(id, live, w, ua.New(1<<20), locator, nil),
			Resolver:       resolver,
			Engine:         engine,
			Funnel:         funnel.New(db, nil),
			Flow:           flow.New(db, true, nil),
			Live:           live,
			Errors:         errtrack.New(db, engine, nil),
			AllowedOrigins: []string{"*"},
			RateLimit:      rateLimit,
		}),
	}
}

func (s *server) do(t *testing.T, method, target, body, ip string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("User-Agent", chrome)
	if ip != "" {
		r.Header.Set("X-Forwarded-For", ip)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	return w
}

func (s *server) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, s.w.Flush(context.Background()))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var o T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o), w.Body.String())
	return o
}

func TestHealthAndMetrics(t *testing.T) {
	s := setup(t, 0)
	w := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())

	w = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestIngestAndQuery(t *testing.T) {
	s := setup(t, 0)

	w := s.do(t, http.MethodPost, "/v1/log/pageview", `{"pid":"p1","pg":"/","unique":true}`, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	psid := decodeBody[map[string]string](t, w)["psid"]
	require.NotEmpty(t, psid)

	w = s.do(t, http.MethodPost, "/v1/log/pageview", `{"pid":"p1","pg":"/docs"}`, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(t, http.MethodPost, "/v1/log/pageview", `{"pid":"p1","pg":"/"}`, "2.2.2.2")
	require.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(t, http.MethodPost, "/v1/log/event", `{"pid":"p1","pg":"/docs","ev":"signup","meta":{"plan":"pro"}}`, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(t, http.MethodPost, "/v1/log/perf", `{"pid":"p1","pg":"/","dns":12,"page_load":900}`, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code)
	w = s.do(t, http.MethodPost, "/v1/log/hb", `{"pid":"p1"}`, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code)
	s.flush(t)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/timeseries?period=today", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[stats.Result](t, w)
	require.Equal(t, int64(3), res.Overall.Pageviews)
	require.Equal(t, int64(2), res.Overall.Uniques)
	require.Equal(t, int64(2), res.Overall.Sessions)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/timeseries?period=today&filters="+
		url.QueryEscape(`[{"column":"pg","filter":["/docs"]}]`), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decodeBody[stats.Result](t, w)
	require.Equal(t, int64(1), res.Overall.Pageviews)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/events?period=today", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	events := decodeBody[[]stats.EventCount](t, w)
	require.Len(t, events, 1)
	require.Equal(t, "signup", events[0].Name)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/meta?period=today&metrics="+
		url.QueryEscape(`[{"event":"signup","key":"plan","measure":"count"}]`), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/perf?period=today&measure=p95", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/funnel?period=today&steps=page:/&steps=page:/docs", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f := decodeBody[funnel.Result](t, w)
	require.Equal(t, int64(2), f.Steps[0].Events)
	require.Equal(t, int64(1), f.Steps[1].Events)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/flow?period=today", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	g := decodeBody[flow.Graph](t, w)
	require.Equal(t, []flow.Link{{Source: "/", Target: "/docs", Value: 1}}, g.Links)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/sessions?period=today&take=10", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decodeBody[[]stats.Session](t, w)
	require.Len(t, sessions, 2)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/sessions/"+psid, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	detail := decodeBody[stats.SessionDetail](t, w)
	require.Len(t, detail.Steps, 3)
	require.True(t, detail.Active)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/online", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, decodeBody[map[string]int](t, w)["online"])

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/live", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]heartbeat.LiveVisitor](t, w), 2)

	w = s.do(t, http.MethodGet, "/v1/log/projects?period=today&pids="+url.QueryEscape(`["p1","p2"]`), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	overview := decodeBody[map[string]projectOverview](t, w)
	require.Equal(t, int64(3), overview["p1"].Overall.Pageviews)
	require.Equal(t, int64(0), overview["p2"].Overall.Pageviews)
}

func TestErrors(t *testing.T) {
	s := setup(t, 0)
	body := `{"pid":"p1","pg":"/","name":"TypeError","message":"x is undefined","filename":"app.js","lineno":3,"colno":7}`
	w := s.do(t, http.MethodPost, "/v1/log/error", body, "1.1.1.1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	eid := decodeBody[map[string]string](t, w)["eid"]
	require.Len(t, eid, 16)
	s.do(t, http.MethodPost, "/v1/log/error", body, "2.2.2.2")
	s.flush(t)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/errors?period=today", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	groups := decodeBody[[]errtrack.Group](t, w)
	require.Len(t, groups, 1)
	require.Equal(t, int64(2), groups[0].Count)
	require.Equal(t, errtrack.Unresolved, groups[0].Status)

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/errors/"+eid+"?period=today", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/log/projects/p1/errors/status", `{"eids":["`+eid+`"],"status":"resolved"}`, "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/errors?period=today", "", "")
	require.Empty(t, decodeBody[[]errtrack.Group](t, w))
	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/errors?period=today&showResolved=true", "", "")
	require.Len(t, decodeBody[[]errtrack.Group](t, w), 1)

	w = s.do(t, http.MethodPost, "/v1/log/projects/p1/errors/status", `{"eids":["`+eid+`"],"status":"ignored"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorCodes(t *testing.T) {
	s := setup(t, 0)
	w := s.do(t, http.MethodPost, "/v1/log/pageview", `{"pid":"p1","pg":"/","unique":true}`, "9.9.9.9")
	require.Equal(t, http.StatusAccepted, w.Code)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"duplicate unique visit", http.MethodPost, "/v1/log/pageview", `{"pid":"p1","pg":"/","unique":true}`, http.StatusConflict},
		{"malformed body", http.MethodPost, "/v1/log/pageview", `{"pid":`, http.StatusBadRequest},
		{"missing pid", http.MethodPost, "/v1/log/pageview", `{"pg":"/"}`, http.StatusBadRequest},
		{"pid with colon", http.MethodPost, "/v1/log/pageview", `{"pid":"p1:x","pg":"/"}`, http.StatusBadRequest},
		{"online pid with colon", http.MethodGet, "/v1/log/projects/p1:x/online", "", http.StatusBadRequest},
		{"timeseries pid with colon", http.MethodGet, "/v1/log/projects/p1:x/timeseries", "", http.StatusBadRequest},
		{"bad period", http.MethodGet, "/v1/log/projects/p1/timeseries?period=forever", "", http.StatusBadRequest},
		{"malformed filters", http.MethodGet, "/v1/log/projects/p1/timeseries?filters=%7B", "", http.StatusBadRequest},
		{"bad mode", http.MethodGet, "/v1/log/projects/p1/timeseries?mode=sideways", "", http.StatusBadRequest},
		{"bad measure", http.MethodGet, "/v1/log/projects/p1/perf?measure=p42", "", http.StatusBadRequest},
		{"bad take", http.MethodGet, "/v1/log/projects/p1/sessions?take=-1", "", http.StatusBadRequest},
		{"too many metrics", http.MethodGet, "/v1/log/projects/p1/meta?metrics=" + url.QueryEscape(
			`[{"event":"a","key":"k","measure":"count"},{"event":"b","key":"k","measure":"count"},{"event":"c","key":"k","measure":"count"},{"event":"d","key":"k","measure":"count"}]`,
		), "", http.StatusBadRequest},
		{"one step funnel", http.MethodGet, "/v1/log/projects/p1/funnel?steps=page:/", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/v1/log/projects/p1/sessions/nope", "", http.StatusBadRequest},
		{"project ids not json", http.MethodGet, "/v1/log/projects?pids=p1", "", http.StatusUnprocessableEntity},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := s.do(t, c.method, c.target, c.body, "9.9.9.9")
			require.Equal(t, c.code, w.Code, w.Body.String())
			require.NotEmpty(t, decodeBody[errorBody](t, w).Error)
		})
	}
}

func TestNoscript(t *testing.T) {
	s := setup(t, 0)
	for _, target := range []string{"/v1/log/noscript?pid=p1&pg=/", "/v1/log/noscript"} {
		w := s.do(t, http.MethodGet, target, "", "3.3.3.3")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "image/gif", w.Header().Get("content-type"))
		require.Equal(t, ingest.Pixel, w.Body.Bytes())
	}
}

func TestRateLimit(t *testing.T) {
	s := setup(t, 2)
	for range 2 {
		w := s.do(t, http.MethodPost, "/v1/log/hb", `{"pid":"p1"}`, "")
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	w := s.do(t, http.MethodPost, "/v1/log/hb", `{"pid":"p1"}`, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// queries are not limited
	w = s.do(t, http.MethodGet, "/v1/log/projects/p1/online", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	s := setup(t, 0)
	r := httptest.NewRequest(http.MethodOptions, "/v1/log/pageview", nil)
	r.Header.Set("Origin", "https://example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
