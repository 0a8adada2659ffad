// Package mysql is the MySQL connection provider, built on database/sql and
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
)

// Driver is a MySQL implementation of database.DB backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// DSN builds a go-sql-driver DSN. parseTime makes DATETIME columns scan as
// time.Time; clientFoundRows makes UPDATE report matched rather than
// changed rows, so re-saving identical values is not mistaken for a
// missing row.
func DSN(host string, port int, user, password, dbName string) string {
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = dbName
	c.ParseTime = true
	c.ClientFoundRows = true
	return c.FormatDSN()
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// NewFromDB wraps an already opened *sql.DB.
func NewFromDB(db *sql.DB) *Driver {
	return &Driver{db: db}
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Dialect() database.Dialect {
	return database.DialectMySQL
}

// Acquire pins one pooled session so that session functions such as
// DATABASE() and LAST_INSERT_ID() see the caller's own statements.
func (d *Driver) Acquire(ctx context.Context) (database.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	return &conn{c: c}, nil
}

// --- database.Conn implementation ---

type conn struct {
	c    *sql.Conn
	once sync.Once
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := c.c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

func (c *conn) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &mysqlRow{row: c.c.QueryRowContext(ctx, query, args...)}
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	res, err := c.c.ExecContext(ctx, query, args...)
	if err != nil {
		return database.Result{}, mapError(err, "statement failed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return database.Result{}, mapError(err, "failed to read affected rows")
	}
	// LastInsertId never fails for this driver; tables without
	// AUTO_INCREMENT report 0.
	lastID, _ := res.LastInsertId()

	return database.Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (c *conn) Release() {
	c.once.Do(func() { _ = c.c.Close() })
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows  *sql.Rows
	types []string
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }

func (r *mysqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapRowError(err, "failed to scan row")
	}
	return nil
}

func (r *mysqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapRowError(err, "error during row iteration")
	}
	return nil
}

// Values scans the current row into untyped destinations and decodes the
// raw bytes the text protocol produces using the column's declared type.
func (r *mysqlRows) Values() ([]any, error) {
	if r.types == nil {
		cts, err := r.rows.ColumnTypes()
		if err != nil {
			return nil, mapRowError(err, "failed to read column types")
		}
		r.types = make([]string, len(cts))
		for i, ct := range cts {
			r.types[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	dest := make([]any, len(r.types))
	ptrs := make([]any, len(r.types))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.Scan(ptrs...); err != nil {
		return nil, err
	}

	for i, v := range dest {
		dest[i] = decodeValue(r.types[i], v)
	}
	return dest, nil
}

type mysqlRow struct {
	row *sql.Row
}

func (r *mysqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapRowError(err, "failed to scan row")
	}
	return nil
}

// decodeValue turns []byte values into the Go type matching the column.
// Binary columns keep their bytes; DECIMAL stays a string to keep precision.
func decodeValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	switch dbType {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return u
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if u, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return u
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return b
	}
	return string(b)
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error. Errors
// that did not come from the server are treated as connection failures.
func mapError(err error, msg string) *errs.Error {
	return classifyError(err, msg, errs.ErrKindConnectionFailed)
}

// mapRowError is mapError for errors raised while reading a result set,
// where anything but a server error is a scan or conversion failure.
func mapRowError(err error, msg string) *errs.Error {
	return classifyError(err, msg, errs.ErrKindQueryFailed)
}

func classifyError(err error, msg string, fallback errs.ErrKind) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.ContextError(err, msg); e != nil {
		return e
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// The server message stays in the cause so Detail carries it once.
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(classifyMySQLCode(mysqlErr.Number), msg, err)
	}

	return errs.Wrap(fallback, msg, err)
}

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errNoDatabase      = 1046
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errUserConnLimit   = 1203
	errNoSuchTable     = 1146
	errTableAccess     = 1142
)

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errNoDatabase, errUnknownDatabase:
		return errs.ErrKindConnectionFailed
	case errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errNoSuchTable:
		return errs.ErrKindNotFound
	case errTableAccess:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
