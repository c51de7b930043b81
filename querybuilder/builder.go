// Package querybuilder composes warehouse SQL from named CTE fragments and
// keeps every value out of the SQL text: values are bound as ClickHouse named
// parameters (@name) and only identifiers and fixed keywords appear inline.
package querybuilder

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

var paramNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Fragment is one named common table expression.
type Fragment struct {
	Name string
	SQL  string
}

// Builder accumulates CTEs and parameter bindings. The zero value is not usable.
type Builder struct {
	ctes   []Fragment
	params map[string]any
	err    error
}

func New() *Builder {
	return &Builder{params: make(map[string]any)}
}

// Bind registers value under name and returns its placeholder. Binding the
// same name twice with different values is an error reported by Build.
func (b *Builder) Bind(name string, value any) string {
	if !paramNameRe.MatchString(name) {
		b.fail(fmt.Errorf("invalid parameter name %q", name))
		return "@" + name
	}
	if prev, ok := b.params[name]; ok && !reflect.DeepEqual(prev, value) {
		b.fail(fmt.Errorf("parameter %q bound twice with different values", name))
	}
	b.params[name] = value
	return "@" + name
}

// With appends a CTE. Names must be unique.
func (b *Builder) With(name, sql string) *Builder {
	for _, f := range b.ctes {
		if f.Name == name {
			b.fail(fmt.Errorf("fragment %q defined twice", name))
			return b
		}
	}
	b.ctes = append(b.ctes, Fragment{Name: name, SQL: strings.TrimSpace(sql)})
	return b
}

// Build renders the CTEs followed by the final statement.
func (b *Builder) Build(statement string) (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	var sb strings.Builder
	if len(b.ctes) > 0 {
		sb.WriteString("WITH\n")
		for i, f := range b.ctes {
			if i > 0 {
				sb.WriteString(",\n")
			}
			fmt.Fprintf(&sb, "%s AS (\n%s\n)", f.Name, f.SQL)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(strings.TrimSpace(statement))

	sql := sb.String()
	if strings.ContainsAny(sql, "?$") {
		return Query{}, fmt.Errorf("query text must not contain positional or numeric placeholders")
	}

	params := make(map[string]any, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return Query{SQL: sql, Params: params}, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Query is rendered SQL plus its bindings.
type Query struct {
	SQL    string
	Params map[string]any
}

// Args returns the bindings as clickhouse named values, sorted by name.
func (q Query) Args() []any {
	names := make([]string, 0, len(q.Params))
	for k := range q.Params {
		names = append(names, k)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, n := range names {
		args = append(args, clickhouse.Named(n, q.Params[n]))
	}
	return args
}
