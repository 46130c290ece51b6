// Package ingest validates incoming events, enriches them with visitor
// details and queues them for the store.
package ingest

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/errtrack"
	"github.com/vinceanalytics/beacon/internal/geo"
	"github.com/vinceanalytics/beacon/internal/heartbeat"
	"github.com/vinceanalytics/beacon/internal/metrics"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
	"github.com/vinceanalytics/beacon/internal/ua"
	"github.com/vinceanalytics/beacon/internal/userid"
)

// Pixel is the transparent gif served to clients without javascript.
var Pixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// Appender queues rows for the store.
type Appender interface {
	Append(ctx context.Context, row any) error
}

type Service struct {
	identity *userid.Identity
	live     *heartbeat.Tracker
	out      Appender
	agents   *ua.Parser
	geo      *geo.Locator
	log      *slog.Logger
}

func New(identity *userid.Identity, live *heartbeat.Tracker, out Appender, agents *ua.Parser, locator *geo.Locator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		identity: identity,
		live:     live,
		out:      out,
		agents:   agents,
		geo:      locator,
		log:      log.With("component", "ingest"),
	}
}

type visitor struct {
	agent ua.Agent
	loc   geo.Location
}

func (s *Service) visitor(c Client) visitor {
	return visitor{
		agent: s.agents.Parse(c.UserAgent),
		loc:   s.geo.Lookup(c.IP, c.Header),
	}
}

func drop(kind, reason string) {
	metrics.Dropped.WithLabelValues(kind, reason).Inc()
}

// Pageview records a page load and returns the session it belongs to. Bots
// are dropped without error and get an empty session.
func (s *Service) Pageview(ctx context.Context, p Pageview, c Client) (string, error) {
	const kind = "pageview"
	if err := p.validate(); err != nil {
		drop(kind, "invalid")
		return "", err
	}
	v := s.visitor(c)
	if v.agent.Bot {
		drop(kind, "bot")
		return "", nil
	}
	unique, psid, err := s.identity.IsUnique(ctx, p.PID, c.UserAgent, c.IP)
	if err != nil {
		return "", err
	}
	if p.Unique && !unique {
		drop(kind, "duplicate")
		return psid, errs.Conflict.New("visit already recorded")
	}
	row := &store.Pageview{
		ProjectID: p.PID,
		SessionID: psid,
		Page:      p.Page,
		Host:      p.Host,
		Referrer:  p.Referrer,
		Source:    source(&p),
		Medium:    p.Medium,
		Campaign:  p.Campaign,
		Locale:    p.Locale,
		Device:    v.agent.Device,
		Browser:   v.agent.Browser,
		OS:        v.agent.OS,
		Country:   v.loc.Country,
		Region:    v.loc.Region,
		City:      v.loc.City,
		Meta:      encodeMeta(p.Meta),
		Unique:    flag(unique),
		Created:   timeutil.Now().Unix(),
	}
	if err := s.append(ctx, kind, row); err != nil {
		return "", err
	}
	if err := s.live.Heartbeat(ctx, psid, p.PID); err != nil {
		s.log.Warn("marking session online", "pid", p.PID, "err", err)
	}
	return psid, nil
}

// CustomEvent records a named event. With Unique set a visitor already seen
// in the current window is rejected with a conflict.
func (s *Service) CustomEvent(ctx context.Context, e CustomEvent, c Client) (string, error) {
	const kind = "custom"
	if err := e.validate(); err != nil {
		drop(kind, "invalid")
		return "", err
	}
	v := s.visitor(c)
	if v.agent.Bot {
		drop(kind, "bot")
		return "", nil
	}
	unique, psid, err := s.identity.IsUnique(ctx, e.PID, c.UserAgent, c.IP)
	if err != nil {
		return "", err
	}
	if e.Unique && !unique {
		drop(kind, "duplicate")
		return psid, errs.Conflict.New("event already recorded")
	}
	row := &store.CustomEvent{
		ProjectID: e.PID,
		SessionID: psid,
		Name:      e.Name,
		Page:      e.Page,
		Host:      e.Host,
		Referrer:  e.Referrer,
		Source:    source(&e.Pageview),
		Medium:    e.Medium,
		Campaign:  e.Campaign,
		Locale:    e.Locale,
		Device:    v.agent.Device,
		Browser:   v.agent.Browser,
		OS:        v.agent.OS,
		Country:   v.loc.Country,
		Region:    v.loc.Region,
		City:      v.loc.City,
		Meta:      encodeMeta(e.Meta),
		Unique:    flag(unique),
		Created:   timeutil.Now().Unix(),
	}
	if err := s.append(ctx, kind, row); err != nil {
		return "", err
	}
	return psid, nil
}

func (s *Service) Performance(ctx context.Context, p Performance, c Client) error {
	const kind = "performance"
	if err := p.validate(); err != nil {
		drop(kind, "invalid")
		return err
	}
	v := s.visitor(c)
	if v.agent.Bot {
		drop(kind, "bot")
		return nil
	}
	return s.append(ctx, kind, &store.Performance{
		ProjectID: p.PID,
		Page:      p.Page,
		Host:      p.Host,
		Device:    v.agent.Device,
		Browser:   v.agent.Browser,
		Country:   v.loc.Country,
		Region:    v.loc.Region,
		City:      v.loc.City,
		DNS:       p.DNS,
		TLS:       p.TLS,
		Conn:      p.Conn,
		Response:  p.Response,
		Render:    p.Render,
		DomLoad:   p.DomLoad,
		PageLoad:  p.PageLoad,
		TTFB:      p.TTFB,
		Created:   timeutil.Now().Unix(),
	})
}

// Error records one occurrence of a client error and returns its
// fingerprint. The occurrence joins the session of the visitor when one is
// open, errors never start a session.
func (s *Service) Error(ctx context.Context, e Error, c Client) (string, error) {
	const kind = "error"
	if err := e.validate(); err != nil {
		drop(kind, "invalid")
		return "", err
	}
	v := s.visitor(c)
	if v.agent.Bot {
		drop(kind, "bot")
		return "", nil
	}
	psid, _, err := s.identity.SessionID(ctx, e.PID, c.UserAgent, c.IP)
	if err != nil {
		return "", err
	}
	eid := errtrack.ID(errtrack.ErrorDTO{
		PID:      e.PID,
		Name:     e.Name,
		Message:  e.Message,
		Filename: e.Filename,
		Lineno:   e.Lineno,
		Colno:    e.Colno,
	})
	err = s.append(ctx, kind, &store.ErrorEvent{
		ID:         uuid.NewString(),
		ProjectID:  e.PID,
		EID:        eid,
		SessionID:  psid,
		Name:       e.Name,
		Message:    e.Message,
		Filename:   e.Filename,
		Lineno:     e.Lineno,
		Colno:      e.Colno,
		StackTrace: e.StackTrace,
		Page:       e.Page,
		Locale:     e.Locale,
		Device:     v.agent.Device,
		Browser:    v.agent.Browser,
		OS:         v.agent.OS,
		Country:    v.loc.Country,
		Region:     v.loc.Region,
		City:       v.loc.City,
		Created:    timeutil.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	return eid, nil
}

// Heartbeat refreshes the online marker of the visitor's session. Visitors
// without a session are ignored.
func (s *Service) Heartbeat(ctx context.Context, h Heartbeat, c Client) error {
	if err := checkPID(h.PID); err != nil {
		drop("heartbeat", "invalid")
		return err
	}
	psid, ok, err := s.identity.SessionID(ctx, h.PID, c.UserAgent, c.IP)
	if err != nil {
		return err
	}
	if !ok {
		drop("heartbeat", "no_session")
		return nil
	}
	metrics.Events.WithLabelValues("heartbeat").Inc()
	return s.live.Heartbeat(ctx, psid, h.PID)
}

// Noscript records a pageview for clients without javascript. It always
// returns the pixel, failures are only logged.
func (s *Service) Noscript(ctx context.Context, p Pageview, c Client) []byte {
	p.Unique = false
	if _, err := s.Pageview(ctx, p, c); err != nil {
		s.log.Warn("recording noscript pageview", "pid", p.PID, "err", err)
	}
	return Pixel
}

func (s *Service) append(ctx context.Context, kind string, row any) error {
	if err := s.out.Append(ctx, row); err != nil {
		drop(kind, "queue")
		s.log.Error("queueing event", "kind", kind, "err", err)
		return errs.Upstream.Wrap(err, "queue event")
	}
	metrics.Events.WithLabelValues(kind).Inc()
	return nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
