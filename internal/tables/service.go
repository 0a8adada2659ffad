// Package tables implements the generic table operations: listing, column
// metadata, paginated search, and single-row insert, update and delete.
//
// Every call acquires one connection, discovers what it needs from the
// information schema, runs its statements and releases the connection.
package tables

import (
	"context"
	"strings"

	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/logger"
	"github.com/koustreak/tablegate/internal/schema"
)

// Service orchestrates introspection, statement building and execution.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	db database.DB
}

// NewService returns a Service using db for every operation.
func NewService(db database.DB) *Service {
	return &Service{db: db}
}

// withConn acquires a connection, runs fn, and releases the connection on
// every exit path.
func (s *Service) withConn(ctx context.Context, fn func(database.Conn, *schema.Introspector) error) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn, schema.New(conn, s.db.Dialect()))
}

// ListTables returns the tables of the connected schema.
func (s *Service) ListTables(ctx context.Context) ([]schema.Table, error) {
	var tables []schema.Table
	err := s.withConn(ctx, func(_ database.Conn, in *schema.Introspector) error {
		var err error
		tables, err = in.ListTables(ctx)
		return err
	})
	return tables, err
}

// Columns returns column metadata for table.
func (s *Service) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	var cols []schema.Column
	err := s.withConn(ctx, func(_ database.Conn, in *schema.Introspector) error {
		var err error
		cols, err = in.ListColumns(ctx, table)
		return err
	})
	return cols, err
}

// Page returns one page of rows from table, optionally filtered by a
// substring search across every column.
func (s *Service) Page(ctx context.Context, table string, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	term := strings.TrimSpace(req.Search)

	var page *Page
	err := s.withConn(ctx, func(conn database.Conn, in *schema.Introspector) error {
		cols, err := in.ListColumns(ctx, table)
		if err != nil {
			return err
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}

		b := database.Select(table, s.db.Dialect()).Search(names, term)

		countSQL, countArgs, err := b.BuildCount()
		if err != nil {
			return err
		}
		var total int64
		if err := conn.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return err
		}

		dataSQL, dataArgs, err := b.Limit(req.Limit).Offset(req.Offset()).Build()
		if err != nil {
			return err
		}
		logger.FromContext(ctx).DebugWith("page query", map[string]interface{}{
			"table": table,
			"sql":   dataSQL,
		})

		rows, err := conn.Query(ctx, dataSQL, dataArgs...)
		if err != nil {
			return err
		}
		data, err := database.ScanRows(rows)
		if err != nil {
			return err
		}

		page = &Page{Data: data, Pagination: NewPagination(total, req.Page, req.Limit)}
		return nil
	})
	return page, err
}

// InsertResult is what an insert reports back: the stored row when it can
// be read back, otherwise the generated id.
type InsertResult struct {
	Row      database.Record
	InsertID int64
}

// Insert adds one row built from rec, in the order its columns were
// submitted.
func (s *Service) Insert(ctx context.Context, table string, rec database.Record) (*InsertResult, error) {
	if len(rec) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "no data to insert")
	}
	d := s.db.Dialect()

	var out *InsertResult
	err := s.withConn(ctx, func(conn database.Conn, in *schema.Introspector) error {
		sql, args, err := database.BuildInsert(d, table, rec, d.SupportsReturning())
		if err != nil {
			return err
		}

		if d.SupportsReturning() {
			rows, err := conn.Query(ctx, sql, args...)
			if err != nil {
				return err
			}
			row, err := database.ScanFirst(rows)
			if err != nil {
				return err
			}
			out = &InsertResult{Row: row}
			return nil
		}

		res, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		out = &InsertResult{InsertID: res.LastInsertID}

		key, err := in.PrimaryKey(ctx, table)
		if err != nil {
			return err
		}

		// Without an auto-increment value, fall back to the key the
		// client supplied, if any.
		var keyValue any = res.LastInsertID
		if res.LastInsertID == 0 {
			_, v, ok := rec.Lookup(key)
			if !ok {
				return nil
			}
			keyValue = v
		}

		row, err := s.fetchByKey(ctx, conn, table, key, keyValue)
		if err != nil {
			return err
		}
		out.Row = row
		return nil
	})
	return out, err
}

// Update overwrites the submitted columns of the row whose primary key is
// id and returns the row as stored afterwards.
func (s *Service) Update(ctx context.Context, table, id string, rec database.Record) (database.Record, error) {
	if len(rec) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "no data to update")
	}

	var row database.Record
	err := s.withConn(ctx, func(conn database.Conn, in *schema.Introspector) error {
		key, err := in.PrimaryKey(ctx, table)
		if err != nil {
			return err
		}

		sql, args, err := database.BuildUpdate(s.db.Dialect(), table, rec, key, id)
		if err != nil {
			return err
		}
		res, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return errs.Newf(errs.ErrKindNotFound, "row with id %s not found", id)
		}

		row, err = s.fetchByKey(ctx, conn, table, key, id)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.Newf(errs.ErrKindNotFound, "row with id %s not found after update", id)
		}
		return nil
	})
	return row, err
}

// Delete removes the row whose primary key is id and returns it as it was
// before deletion.
func (s *Service) Delete(ctx context.Context, table, id string) (database.Record, error) {
	var deleted database.Record
	err := s.withConn(ctx, func(conn database.Conn, in *schema.Introspector) error {
		key, err := in.PrimaryKey(ctx, table)
		if err != nil {
			return err
		}

		deleted, err = s.fetchByKey(ctx, conn, table, key, id)
		if err != nil {
			return err
		}
		if deleted == nil {
			return errs.Newf(errs.ErrKindNotFound, "row with id %s not found", id)
		}

		sql, args := database.BuildDelete(s.db.Dialect(), table, key, id)
		res, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return errs.Newf(errs.ErrKindNotFound, "row with id %s could not be deleted", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// fetchByKey returns the row where key = value, or nil when none matches.
func (s *Service) fetchByKey(ctx context.Context, conn database.Conn, table, key string, value any) (database.Record, error) {
	sql, args, err := database.Select(table, s.db.Dialect()).Where(key, "=", value).Build()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanFirst(rows)
}
