package filters

import (
	"strings"
)

// Compiled is a predicate fragment ready to be appended to a WHERE clause.
// SQL is empty or starts with " AND ". Every value is a placeholder in SQL
// with its binding in Args, in order.
type Compiled struct {
	SQL     string
	Args    []any
	Filters []Filter

	// CustomEvent is set when a filter targets the event name or event
	// metadata. Such queries must read the custom events table.
	CustomEvent bool
}

// Compile keeps the filters allowed for d and builds their predicate. Dynamic
// columns are only considered when checkDynamic is true.
func Compile(fs []Filter, d DataType, checkDynamic bool) Compiled {
	applied := make([]Filter, 0, len(fs))
	for _, f := range fs {
		if d.Allowed(f.Column, checkDynamic) {
			applied = append(applied, f)
		}
	}
	applied = Normalize(applied)
	c := Compiled{Filters: applied}
	c.SQL, c.Args = build(applied, "")
	for _, f := range applied {
		if f.Column.Kind == EventMeta || (f.Column.Kind == Static && f.Column.Name == "ev") {
			c.CustomEvent = true
		}
	}
	return c
}

// Qualify returns the fragment with every column prefixed by alias. Args are
// unchanged.
func (c Compiled) Qualify(alias string) string {
	sql, _ := build(c.Filters, alias)
	return sql
}

// Has reports whether a filter on the static column name was applied.
func (c Compiled) Has(name string) bool {
	for _, f := range c.Filters {
		if f.Column.Kind == Static && f.Column.Name == name {
			return true
		}
	}
	return false
}

func build(fs []Filter, alias string) (string, []any) {
	if len(fs) == 0 {
		return "", nil
	}
	var b strings.Builder
	var args []any
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	for _, f := range fs {
		b.WriteString(" AND ")
		if f.Column.Dynamic() {
			if f.Exclusive {
				b.WriteString("NOT ")
			}
			b.WriteString("EXISTS (SELECT 1 FROM json_each(")
			b.WriteString(prefix)
			b.WriteString("meta) AS jm WHERE jm.key = ? AND CAST(jm.value AS TEXT) IN (")
			placeholders(&b, len(f.Values))
			b.WriteString("))")
			args = append(args, f.Column.Name)
		} else {
			b.WriteString(prefix)
			b.WriteString(f.Column.Name)
			if f.Exclusive {
				b.WriteString(" NOT IN (")
			} else {
				b.WriteString(" IN (")
			}
			placeholders(&b, len(f.Values))
			b.WriteString(")")
		}
		for _, v := range f.Values {
			args = append(args, v)
		}
	}
	return b.String(), args
}

func placeholders(b *strings.Builder, n int) {
	for i := range n {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
}
