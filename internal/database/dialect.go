package database

import (
	"fmt"
	"strings"
)

// Dialect controls identifier quoting and placeholder style.
type Dialect int

const (
	// DialectMySQL uses `ident` quoting and ? placeholders.
	DialectMySQL Dialect = iota

	// DialectPostgres uses "ident" quoting and $1, $2, … placeholders.
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "mysql"
}

// Quote wraps an identifier for the dialect. Embedded quote characters are
// doubled, so a caller-supplied name can never terminate the identifier.
func (d Dialect) Quote(name string) string {
	if d == DialectPostgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns the bind marker for the idx-th argument (1-based).
func (d Dialect) Placeholder(idx int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// SearchTerm renders a column as a text expression for LIKE matching.
// MySQL coerces any type implicitly; Postgres needs an explicit cast.
func (d Dialect) SearchTerm(column string) string {
	if d == DialectPostgres {
		return "CAST(" + d.Quote(column) + " AS TEXT)"
	}
	return d.Quote(column)
}

// SupportsReturning reports whether INSERT … RETURNING * is available.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}
