package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/vinceanalytics/beacon/internal/errs"
)

const maxBody = 64 << 10

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *handler) json(w http.ResponseWriter, r *http.Request, code int, data any) {
	render.Status(r, code)
	render.JSON(w, r, data)
}

// fail writes err with the status of its kind. Upstream failures were logged
// where they happened and only get a generic message here.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.Code(err)
	if code >= http.StatusInternalServerError && !errs.IsUpstream(err) {
		h.log.Error("handling request", "path", r.URL.Path, "err", err)
	}
	h.json(w, r, code, errorBody{
		Error:     errs.Public(err),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// decode reads a json body of at most maxBody bytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Invalid("request body too large")
		}
		return errs.Invalid("malformed json body")
	}
	return nil
}
