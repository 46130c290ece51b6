package filters

import (
	"strings"
)

// Kind tells apart fixed table columns from keys looked up inside the meta
// JSON object of a row.
type Kind uint8

const (
	Static Kind = iota
	EventMeta
	PageProperty
)

const (
	eventKeyPrefix = "eventKey:"
	tagKeyPrefix   = "tagKey:"

	maxKeyLen = 64
)

// Column is either Static(Name) or Dynamic(Kind, Name) where Name is the meta
// key.
type Column struct {
	Kind Kind
	Name string
}

func (c Column) Dynamic() bool { return c.Kind != Static }

func (c Column) String() string {
	switch c.Kind {
	case EventMeta:
		return eventKeyPrefix + c.Name
	case PageProperty:
		return tagKeyPrefix + c.Name
	default:
		return c.Name
	}
}

// ParseColumn recognizes every static column any data type accepts and the
// eventKey:/tagKey: dynamic forms. Whether a column applies to a given table
// is decided by Compile.
func ParseColumn(s string) (Column, bool) {
	if key, ok := strings.CutPrefix(s, eventKeyPrefix); ok {
		return dynamic(EventMeta, key)
	}
	if key, ok := strings.CutPrefix(s, tagKeyPrefix); ok {
		return dynamic(PageProperty, key)
	}
	if _, ok := known[s]; ok {
		return Column{Kind: Static, Name: s}, true
	}
	return Column{}, false
}

func dynamic(kind Kind, key string) (Column, bool) {
	if key == "" || len(key) > maxKeyLen {
		return Column{}, false
	}
	return Column{Kind: kind, Name: key}, true
}

// DataType selects the table a filter set is compiled against.
type DataType uint8

const (
	Analytics DataType = iota
	Performance
	Errors
)

func (d DataType) String() string {
	switch d {
	case Performance:
		return "performance"
	case Errors:
		return "errors"
	default:
		return "analytics"
	}
}

var allow = map[DataType]map[string]struct{}{
	Analytics:   set("cc", "rg", "ct", "pg", "host", "lc", "ref", "dv", "br", "os", "so", "me", "ca", "ev"),
	Performance: set("cc", "rg", "ct", "pg", "host", "dv", "br"),
	Errors:      set("cc", "rg", "ct", "pg", "dv", "br", "os", "lc", "name"),
}

var known = func() map[string]struct{} {
	m := map[string]struct{}{}
	for _, a := range allow {
		for k := range a {
			m[k] = struct{}{}
		}
	}
	return m
}()

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Allowed reports whether c can be applied against data type d.
func (d DataType) Allowed(c Column, checkDynamic bool) bool {
	if c.Dynamic() {
		return checkDynamic && d == Analytics
	}
	_, ok := allow[d][c.Name]
	return ok
}
