// Package database builds parameterised list queries shared by the history
// repositories.
package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	LessThan           ConditionType = "<"
	GreaterThanOrEqual ConditionType = ">="
	defaultLimit                     = -1
	defaultOffset                    = -1
)

// PlaceholderStyle selects how bind parameters are rendered.
type PlaceholderStyle int

const (
	// Dollar renders $1, $2, ... as Postgres expects.
	Dollar PlaceholderStyle = iota
	// Question renders ? as SQLite expects.
	Question
)

func (s PlaceholderStyle) render(n int) string {
	if s == Question {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

type ListQueryOptions struct {
	Table       string
	Columns     []string
	CountOnly   bool
	Conditions  []Condition
	OrderBy     string
	OrderDir    string
	Limit       int
	Offset      int
	Placeholder PlaceholderStyle
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  defaultLimit,
		Offset: defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a single condition. Conditions with an empty string
// value are skipped so optional filters can be passed unconditionally.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		if s, ok := cond.Value.(string); ok && s == "" {
			return
		}
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy sets the ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// WithPlaceholder selects the bind parameter style.
func WithPlaceholder(style PlaceholderStyle) ListQueryOption {
	return func(o *ListQueryOptions) { o.Placeholder = style }
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func validCondition(t ConditionType) bool {
	switch t {
	case Equal, NotEqual, LessThan, GreaterThanOrEqual:
		return true
	default:
		return false
	}
}

// BuildListQuery constructs a SQL query string and arguments from options,
// quoting every identifier. Conditions with an unknown type are dropped.
//
// Example usage:
//
//	opts := NewListQueryOptions("predictions",
//		WithColumns("job_id", "status"),
//		WithCondition(WhereCond("submitted_by", Equal, "alice")),
//		WithOrderBy("finished_at", "DESC"),
//		WithLimit(10),
//	)
//	query, args := BuildListQuery(opts)
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var b strings.Builder
	switch {
	case options.CountOnly:
		b.WriteString("SELECT COUNT(*)")
	case len(options.Columns) == 0:
		b.WriteString("SELECT *")
	default:
		cols := make([]string, len(options.Columns))
		for i, c := range options.Columns {
			cols[i] = sanitizeIdentifier(c)
		}
		b.WriteString("SELECT ")
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(sanitizeIdentifier(options.Table))

	var args []any
	param := 1
	var where []string
	for _, c := range options.Conditions {
		if c.Field == "" || !validCondition(c.Type) {
			continue
		}
		where = append(where, fmt.Sprintf("%s %s %s",
			sanitizeIdentifier(c.Field), c.Type, options.Placeholder.render(param)))
		args = append(args, c.Value)
		param++
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if options.CountOnly {
		return b.String(), args
	}

	if options.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(sanitizeIdentifier(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			b.WriteString(" ")
			b.WriteString(dir)
		}
	}
	if options.Limit != defaultLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(options.Placeholder.render(param))
		args = append(args, options.Limit)
		param++
	}
	if options.Offset != defaultOffset {
		if options.Limit == defaultLimit && options.Placeholder == Question {
			// SQLite requires LIMIT before OFFSET.
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(options.Placeholder.render(param))
		args = append(args, options.Offset)
	}
	return b.String(), args
}
