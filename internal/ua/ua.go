// Package ua turns a user agent string into device, browser and operating
// system names.
package ua

import (
	"strings"

	"github.com/VictoriaMetrics/fastcache"
)

type Agent struct {
	Bot            bool
	Device         string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
}

// Parser caches parsed agents, a handful of user agent strings account for
// most traffic.
type Parser struct {
	cache *fastcache.Cache
}

func New(cacheBytes int) *Parser {
	return &Parser{cache: fastcache.New(cacheBytes)}
}

func (p *Parser) Reset() {
	p.cache.Reset()
}

func (p *Parser) Parse(agent string) Agent {
	key := []byte(agent)
	if b := p.cache.Get(nil, key); len(b) > 0 {
		return decode(b)
	}
	a := Parse(agent)
	p.cache.Set(key, encode(a))
	return a
}

// Parse parses agent without caching.
func Parse(agent string) Agent {
	var a Agent
	if !containsLetter(agent) {
		return a
	}
	if ok, _ := bots.MatchString(agent); ok {
		a.Bot = true
		return a
	}
	a.Browser, a.BrowserVersion, _ = match(browsers, agent)
	a.OS, a.OSVersion, _ = match(systems, agent)
	a.OSVersion = strings.ReplaceAll(a.OSVersion, "_", ".")
	var ok bool
	a.Device, _, ok = match(devices, agent)
	if !ok {
		a.Device = "Desktop"
	}
	return a
}

const sep = "\x00"

func encode(a Agent) []byte {
	bot := "0"
	if a.Bot {
		bot = "1"
	}
	return []byte(strings.Join([]string{bot, a.Device, a.Browser, a.BrowserVersion, a.OS, a.OSVersion}, sep))
}

func decode(b []byte) Agent {
	f := strings.Split(string(b), sep)
	if len(f) != 6 {
		return Agent{}
	}
	return Agent{
		Bot:            f[0] == "1",
		Device:         f[1],
		Browser:        f[2],
		BrowserVersion: f[3],
		OS:             f[4],
		OSVersion:      f[5],
	}
}

func containsLetter(s string) bool {
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
