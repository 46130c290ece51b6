package api

import (
	"net/http"

	"github.com/vinceanalytics/beacon/internal/ingest"
)

func (h *handler) pageview(w http.ResponseWriter, r *http.Request) {
	var p ingest.Pageview
	if err := decode(w, r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	psid, err := h.Ingest.Pageview(r.Context(), p, ingest.ClientFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusAccepted, map[string]string{"psid": psid})
}

func (h *handler) customEvent(w http.ResponseWriter, r *http.Request) {
	var e ingest.CustomEvent
	if err := decode(w, r, &e); err != nil {
		h.fail(w, r, err)
		return
	}
	psid, err := h.Ingest.CustomEvent(r.Context(), e, ingest.ClientFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusAccepted, map[string]string{"psid": psid})
}

func (h *handler) performance(w http.ResponseWriter, r *http.Request) {
	var p ingest.Performance
	if err := decode(w, r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Ingest.Performance(r.Context(), p, ingest.ClientFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) clientError(w http.ResponseWriter, r *http.Request) {
	var e ingest.Error
	if err := decode(w, r, &e); err != nil {
		h.fail(w, r, err)
		return
	}
	eid, err := h.Ingest.Error(r.Context(), e, ingest.ClientFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, r, http.StatusAccepted, map[string]string{"eid": eid})
}

func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var b ingest.Heartbeat
	if err := decode(w, r, &b); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Ingest.Heartbeat(r.Context(), b, ingest.ClientFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// noscript always answers with the pixel so that the page renders.
func (h *handler) noscript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ingest.Pageview{
		PID:      q.Get("pid"),
		Page:     q.Get("pg"),
		Host:     q.Get("host"),
		Referrer: q.Get("ref"),
		Locale:   q.Get("lc"),
	}
	pixel := h.Ingest.Noscript(r.Context(), p, ingest.ClientFrom(r))
	w.Header().Set("content-type", "image/gif")
	w.Header().Set("cache-control", "no-cache, no-store, must-revalidate")
	w.Write(pixel)
}
