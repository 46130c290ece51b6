// Package geo resolves a client address to country, region and city.
package geo

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

type Location struct {
	Country string
	Region  string
	City    string
}

// Locator looks up addresses in a MaxMind city database. Without a database
// only the country set by a fronting proxy is known.
type Locator struct {
	db *geoip2.Reader
}

// Open loads the database at path. An empty path gives a Locator relying on
// proxy headers only.
func Open(path string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database %w", err)
	}
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Lookup never fails, unknown fields are left empty.
func (l *Locator) Lookup(ip string, h http.Header) Location {
	var o Location
	if l.db != nil {
		if addr := net.ParseIP(ip); addr != nil {
			if c, err := l.db.City(addr); err == nil {
				o.Country = c.Country.IsoCode
				if len(c.Subdivisions) > 0 {
					o.Region = c.Subdivisions[0].Names["en"]
				}
				o.City = c.City.Names["en"]
			}
		}
	}
	if o.Country == "" {
		o.Country = headerCountry(h)
	}
	return o
}

func headerCountry(h http.Header) string {
	if h == nil {
		return ""
	}
	cc := strings.ToUpper(strings.TrimSpace(h.Get("Cf-Ipcountry")))
	// XX unknown, T1 tor
	if len(cc) != 2 || cc == "XX" || cc == "T1" {
		return ""
	}
	return cc
}

// ClientIP returns the address of the visitor behind trusted proxies.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("Cf-Connecting-Ip")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
