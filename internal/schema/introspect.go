package schema

import (
	"context"
	"fmt"

	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
)

// Introspector runs catalog queries on one acquired connection.
type Introspector struct {
	conn    database.Conn
	dialect database.Dialect
	q       catalog
}

// New returns an Introspector bound to conn. It does not take ownership of
// the connection; the caller still releases it.
func New(conn database.Conn, d database.Dialect) *Introspector {
	q := mysqlCatalog
	if d == database.DialectPostgres {
		q = postgresCatalog
	}
	return &Introspector{conn: conn, dialect: d, q: q}
}

// CurrentSchema returns the schema the session is connected to.
func (i *Introspector) CurrentSchema(ctx context.Context) (string, error) {
	var name *string
	if err := i.conn.QueryRow(ctx, i.q.currentSchema).Scan(&name); err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, "unable to determine the active schema", err)
	}
	if name == nil || *name == "" {
		return "", errs.New(errs.ErrKindQueryFailed, "unable to determine the active schema")
	}
	return *name, nil
}

// ListTables returns every table in the current schema, sorted by name.
func (i *Introspector) ListTables(ctx context.Context) ([]Table, error) {
	schemaName, err := i.CurrentSchema(ctx)
	if err != nil {
		return nil, err
	}

	names, err := i.strings(ctx, i.q.listTables, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]Table, len(names))
	for n, name := range names {
		tables[n] = Table{Name: name}
	}
	return tables, nil
}

// ListColumns returns the columns of table in ordinal order. A table with
// no visible columns does not exist for this session: ErrKindNotFound.
func (i *Introspector) ListColumns(ctx context.Context, table string) ([]Column, error) {
	schemaName, err := i.CurrentSchema(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := i.conn.Query(ctx, i.q.listColumns, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	cols := make([]Column, 0)
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q not found", table)
	}
	return cols, nil
}

// PrimaryKey resolves the column that identifies a row of table.
//
// The declared primary key wins (its first column when composite). A keyless
// table is sampled: a column named "id" in any case, else the first column.
// An empty keyless table yields DefaultKeyColumn, unverified.
func (i *Introspector) PrimaryKey(ctx context.Context, table string) (string, error) {
	schemaName, err := i.CurrentSchema(ctx)
	if err != nil {
		return "", err
	}

	keys, err := i.strings(ctx, i.q.primaryKey, schemaName, table)
	if err != nil {
		return "", fmt.Errorf("primary key of %s.%s: %w", schemaName, table, err)
	}
	if len(keys) > 0 {
		return keys[0], nil
	}

	sql, args, err := database.Select(table, i.dialect).Limit(1).Build()
	if err != nil {
		return "", err
	}
	rows, err := i.conn.Query(ctx, sql, args...)
	if err != nil {
		return "", err
	}
	sample, err := database.ScanFirst(rows)
	if err != nil {
		return "", err
	}
	if len(sample) == 0 {
		return DefaultKeyColumn, nil
	}

	if col, _, ok := sample.Lookup(DefaultKeyColumn); ok {
		return col, nil
	}
	return sample[0].Column, nil
}

// strings runs a query returning a single text column.
func (i *Introspector) strings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := i.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
