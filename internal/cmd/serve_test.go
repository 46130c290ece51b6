package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/beacon/internal/config"
)

func TestBuild(t *testing.T) {
	cases := []struct {
		name  string
		redis func(t *testing.T) string
	}{
		{"embedded presence", func(*testing.T) string { return "" }},
		{"redis presence", func(t *testing.T) string {
			mr := miniredis.RunT(t)
			return "redis://" + mr.Addr()
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := &config.Options{}
			o.Test()
			o.Redis = c.redis(t)
			o.EnableProfile = true
			require.NoError(t, o.Validate())

			svc, err := build(config.With(context.Background(), o), slog.Default())
			require.NoError(t, err)
			defer svc.Close()

			w := httptest.NewRecorder()
			svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, w.Code)

			r := httptest.NewRequest(http.MethodPost, "/v1/log/pageview", strings.NewReader(`{"pid":"p1","pg":"/"}`))
			r.Header.Set("Content-Type", "application/json")
			w = httptest.NewRecorder()
			svc.handler.ServeHTTP(w, r)
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

			w = httptest.NewRecorder()
			svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
			require.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	o := config.Defaults()
	require.Error(t, run(o)(context.Background(), nil))
}
