// Package filters compiles the dashboard filter DSL into parameterized SQL
// predicates.
package filters

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/vinceanalytics/beacon/internal/errs"
)

type Filter struct {
	Column    Column
	Values    []string
	Exclusive bool
}

type wire struct {
	Column      string          `json:"column"`
	Filter      json.RawMessage `json:"filter"`
	IsExclusive bool            `json:"isExclusive"`
}

// Parse decodes the query string encoding of a filter set
//
//	[{"column":"cc","filter":["US","DE"],"isExclusive":false}]
//
// filter may be a single string. Entries with unknown columns or no values are
// dropped. The result is normalized.
func Parse(raw string) ([]Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ls []wire
	err := json.Unmarshal([]byte(raw), &ls)
	if err != nil {
		return nil, errs.Invalid("filters must be a JSON array of filter objects")
	}
	o := make([]Filter, 0, len(ls))
	for _, w := range ls {
		col, ok := ParseColumn(w.Column)
		if !ok {
			continue
		}
		values, ok := decodeValues(w.Filter)
		if !ok {
			continue
		}
		o = append(o, Filter{Column: col, Values: values, Exclusive: w.IsExclusive})
	}
	return Normalize(o), nil
}

func decodeValues(data json.RawMessage) ([]string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}
	if data[0] == '"' {
		var s string
		if json.Unmarshal(data, &s) != nil {
			return nil, false
		}
		return []string{s}, true
	}
	var ls []string
	if json.Unmarshal(data, &ls) != nil {
		return nil, false
	}
	return ls, true
}

// Encode is the inverse of Parse for normalized filter sets.
func Encode(fs []Filter) string {
	if len(fs) == 0 {
		return "[]"
	}
	o := make([]wire, len(fs))
	for i := range fs {
		v, _ := json.Marshal(fs[i].Values)
		o[i] = wire{Column: fs[i].Column.String(), Filter: v, IsExclusive: fs[i].Exclusive}
	}
	data, _ := json.Marshal(o)
	return string(data)
}

// Normalize merges filters sharing (column, exclusive), deduplicates and sorts
// their values and orders the set by column then exclusivity. Filters without
// values are removed.
func Normalize(fs []Filter) []Filter {
	type key struct {
		col       Column
		exclusive bool
	}
	idx := map[key]int{}
	o := make([]Filter, 0, len(fs))
	for _, f := range fs {
		if len(f.Values) == 0 {
			continue
		}
		k := key{col: f.Column, exclusive: f.Exclusive}
		i, ok := idx[k]
		if !ok {
			i = len(o)
			idx[k] = i
			o = append(o, Filter{Column: f.Column, Exclusive: f.Exclusive})
		}
		o[i].Values = append(o[i].Values, f.Values...)
	}
	for i := range o {
		slices.Sort(o[i].Values)
		o[i].Values = slices.Compact(o[i].Values)
	}
	slices.SortFunc(o, func(a, b Filter) int {
		if c := strings.Compare(a.Column.String(), b.Column.String()); c != 0 {
			return c
		}
		switch {
		case a.Exclusive == b.Exclusive:
			return 0
		case b.Exclusive:
			return -1
		default:
			return 1
		}
	})
	return o
}
