package database

import "context"

// DB is the connection provider every layer above this package talks to.
// It never hands out statements directly: callers Acquire a Conn, run
// their statements on it, and Release it.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Dialect reports which SQL flavour statements must be written in.
	Dialect() Dialect

	// Acquire checks out a single session from the pool. The caller must
	// call Release on every exit path.
	Acquire(ctx context.Context) (Conn, error)
}

// Conn is one checked-out database session. Statements auto-commit.
type Conn interface {
	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	// A missing row surfaces from Scan as an errs.ErrKindNotFound error.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (Result, error)

	// Release hands the session back to the pool. Safe to call twice.
	Release()
}

// Result reports the outcome of Exec.
type Result struct {
	RowsAffected int64

	// LastInsertID is the auto-increment value generated by an INSERT.
	// Zero when the dialect or the table does not produce one.
	LastInsertID int64
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Values returns the current row decoded into JSON-friendly Go values.
	Values() ([]any, error)

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
