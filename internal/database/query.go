package database

import (
	"fmt"
	"strings"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected: the operator position cannot
// be parameterized.
var validOps = map[string]bool{
	"=":    true,
	"!=":   true,
	"<>":   true,
	"<":    true,
	">":    true,
	"<=":   true,
	">=":   true,
	"LIKE": true,
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Identifiers are quoted by the dialect; values are never interpolated into
// the SQL string; they are always passed as args.
//
// Usage:
//
//	sql, args, err := Select("users", DialectMySQL).
//	    Search([]string{"name", "email"}, "bob").
//	    Limit(50).
//	    Offset(0).
//	    Build()
//	// SELECT * FROM `users` WHERE (`name` LIKE ? OR `email` LIKE ?) LIMIT ? OFFSET ?
type SelectBuilder struct {
	table      string
	dialect    Dialect
	columns    []string
	where      []whereClause
	searchCols []string
	searchTerm string
	orderBy    []orderClause
	limit      *int
	offset     *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition. Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// Search OR-matches every listed column against %term%. A blank term or an
// empty column list adds nothing.
func (b *SelectBuilder) Search(columns []string, term string) *SelectBuilder {
	b.searchCols = columns
	b.searchTerm = term
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.dialect.Quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.Quote(b.table))

	where, args, err := b.buildWhere()
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.dialect.Quote(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		args = append(args, *b.limit)
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.dialect.Placeholder(len(args)))
	}

	if b.offset != nil {
		args = append(args, *b.offset)
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.dialect.Placeholder(len(args)))
	}

	return sb.String(), args, nil
}

// BuildCount produces SELECT COUNT(*) with the same WHERE clause and args
// as Build, ignoring columns, ordering, limit and offset.
func (b *SelectBuilder) BuildCount() (string, []any, error) {
	where, args, err := b.buildWhere()
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + b.dialect.Quote(b.table) + where, args, nil
}

func (b *SelectBuilder) buildWhere() (string, []any, error) {
	var args []any
	parts := make([]string, 0, len(b.where)+1)

	for _, w := range b.where {
		op := strings.ToUpper(w.op)
		if !validOps[op] {
			return "", nil, errInvalidInput(
				fmt.Sprintf("unsupported WHERE operator: %q", w.op),
			)
		}
		args = append(args, w.value)
		parts = append(parts, fmt.Sprintf("%s %s %s", b.dialect.Quote(w.column), op, b.dialect.Placeholder(len(args))))
	}

	if b.searchTerm != "" && len(b.searchCols) > 0 {
		pattern := "%" + b.searchTerm + "%"
		likes := make([]string, len(b.searchCols))
		for i, col := range b.searchCols {
			args = append(args, pattern)
			likes[i] = fmt.Sprintf("%s LIKE %s", b.dialect.SearchTerm(col), b.dialect.Placeholder(len(args)))
		}
		parts = append(parts, "("+strings.Join(likes, " OR ")+")")
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// BuildInsert produces INSERT INTO table (cols…) VALUES (…) with columns in
// record order. With returning set, RETURNING * is appended.
func BuildInsert(d Dialect, table string, rec Record, returning bool) (string, []any, error) {
	if len(rec) == 0 {
		return "", nil, errInvalidInput("no data to insert")
	}

	cols := make([]string, len(rec))
	marks := make([]string, len(rec))
	for i, f := range rec {
		cols[i] = d.Quote(f.Column)
		marks[i] = d.Placeholder(i + 1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if returning {
		sql += " RETURNING *"
	}
	return sql, rec.Values(), nil
}

// BuildUpdate produces UPDATE table SET c = ?, … WHERE key = ?.
func BuildUpdate(d Dialect, table string, rec Record, keyColumn string, key any) (string, []any, error) {
	if len(rec) == 0 {
		return "", nil, errInvalidInput("no data to update")
	}

	sets := make([]string, len(rec))
	for i, f := range rec {
		sets[i] = fmt.Sprintf("%s = %s", d.Quote(f.Column), d.Placeholder(i+1))
	}
	args := append(rec.Values(), key)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(table), strings.Join(sets, ", "), d.Quote(keyColumn), d.Placeholder(len(args)))
	return sql, args, nil
}

// BuildDelete produces DELETE FROM table WHERE key = ?.
func BuildDelete(d Dialect, table, keyColumn string, key any) (string, []any) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.Quote(table), d.Quote(keyColumn), d.Placeholder(1))
	return sql, []any{key}
}
