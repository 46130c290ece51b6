package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/geo"
	"github.com/vinceanalytics/beacon/internal/query"
)

const (
	maxPage      = 2048
	maxMetaKeys  = 20
	maxMetaValue = 1000
	maxField     = 512
)

var eventName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Client is what the transport knows about the sender of an event.
type Client struct {
	UserAgent string
	IP        string
	Header    http.Header
}

// ClientFrom reads the client of r.
func ClientFrom(r *http.Request) Client {
	return Client{
		UserAgent: r.UserAgent(),
		IP:        geo.ClientIP(r),
		Header:    r.Header,
	}
}

// Pageview is a page load reported by the tracking script.
type Pageview struct {
	PID      string         `json:"pid"`
	Page     string         `json:"pg"`
	Host     string         `json:"host"`
	Referrer string         `json:"ref"`
	Source   string         `json:"so"`
	Medium   string         `json:"me"`
	Campaign string         `json:"ca"`
	Locale   string         `json:"lc"`
	Meta     map[string]any `json:"meta"`
	// Unique rejects the submission with a conflict when the visitor was
	// already seen in the current window.
	Unique bool `json:"unique"`
}

func (p *Pageview) validate() error {
	if err := checkPID(p.PID); err != nil {
		return err
	}
	if err := checkPage(p.Page); err != nil {
		return err
	}
	for _, f := range []string{p.Host, p.Referrer, p.Source, p.Medium, p.Campaign, p.Locale} {
		if len(f) > maxField {
			return errs.Invalid("field too long")
		}
	}
	return checkMeta(p.Meta)
}

// CustomEvent is a named event with optional metadata.
type CustomEvent struct {
	Pageview
	Name string `json:"ev"`
}

func (c *CustomEvent) validate() error {
	if !eventName.MatchString(c.Name) {
		return errs.Invalid("event name must match " + eventName.String())
	}
	return c.Pageview.validate()
}

// Performance holds navigation timings in milliseconds.
type Performance struct {
	PID      string  `json:"pid"`
	Page     string  `json:"pg"`
	Host     string  `json:"host"`
	DNS      float64 `json:"dns"`
	TLS      float64 `json:"tls"`
	Conn     float64 `json:"conn"`
	Response float64 `json:"response"`
	Render   float64 `json:"render"`
	DomLoad  float64 `json:"dom_load"`
	PageLoad float64 `json:"page_load"`
	TTFB     float64 `json:"ttfb"`
}

func (p *Performance) validate() error {
	if err := checkPID(p.PID); err != nil {
		return err
	}
	if err := checkPage(p.Page); err != nil {
		return err
	}
	for _, v := range []float64{p.DNS, p.TLS, p.Conn, p.Response, p.Render, p.DomLoad, p.PageLoad, p.TTFB} {
		if v < 0 || v != v {
			return errs.Invalid("timings must be non negative numbers")
		}
	}
	return nil
}

// Error is an uncaught client side error.
type Error struct {
	PID        string `json:"pid"`
	Page       string `json:"pg"`
	Locale     string `json:"lc"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	Lineno     int64  `json:"lineno"`
	Colno      int64  `json:"colno"`
	StackTrace string `json:"stackTrace"`
}

const maxStack = 16 << 10

func (e *Error) validate() error {
	if err := checkPID(e.PID); err != nil {
		return err
	}
	if err := checkPage(e.Page); err != nil {
		return err
	}
	if strings.TrimSpace(e.Name) == "" && strings.TrimSpace(e.Message) == "" {
		return errs.Invalid("missing error name and message")
	}
	if e.Lineno < 0 || e.Colno < 0 {
		return errs.Invalid("negative error location")
	}
	if len(e.Message) > maxStack || len(e.Name) > maxField || len(e.Filename) > maxPage {
		return errs.Invalid("field too long")
	}
	if len(e.StackTrace) > maxStack {
		e.StackTrace = e.StackTrace[:maxStack]
	}
	return nil
}

// Heartbeat keeps the session of the sender marked online.
type Heartbeat struct {
	PID string `json:"pid"`
}

func checkPID(pid string) error {
	return query.CheckPID(pid)
}

func checkPage(pg string) error {
	if len(pg) > maxPage {
		return errs.Invalid(fmt.Sprintf("page longer than %d characters", maxPage))
	}
	return nil
}

func checkMeta(m map[string]any) error {
	if len(m) > maxMetaKeys {
		return errs.Invalid(fmt.Sprintf("more than %d metadata keys", maxMetaKeys))
	}
	for k, v := range m {
		if k == "" || len(k) > 64 {
			return errs.Invalid("metadata key must be 1 to 64 characters")
		}
		if len(metaValue(v)) > maxMetaValue {
			return errs.Invalid(fmt.Sprintf("metadata value longer than %d characters", maxMetaValue))
		}
	}
	return nil
}

func metaValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// encodeMeta stores every metadata value as a string so that filters compare
// the same text the caller sent.
func encodeMeta(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	o := make(map[string]string, len(m))
	for k, v := range m {
		o[k] = metaValue(v)
	}
	b, _ := json.Marshal(o)
	return string(b)
}

// source derives the traffic source from the referrer when the page did not
// carry utm parameters. Self referrals are not a source.
func source(p *Pageview) string {
	if p.Source != "" || p.Referrer == "" {
		return p.Source
	}
	u, err := url.Parse(p.Referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == strings.TrimPrefix(strings.ToLower(p.Host), "www.") {
		return ""
	}
	return host
}
