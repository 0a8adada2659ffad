// Package postgres is the PostgreSQL connection provider, built on pgxpool.
package postgres

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
)

// PostgreSQL SQLSTATE codes with a specific mapping.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUndefinedTable   = "42P01"
	pgErrInsufficientPriv = "42501"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// DSN builds a postgres:// URL. An empty sslMode defaults to "disable".
func DSN(host string, port int, user, password, dbName, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	userInfo := url.User(user)
	if password != "" {
		userInfo = url.UserPassword(user, password)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (d *Driver) Close() {
	d.pool.Close()
}

func (d *Driver) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Acquire checks a connection out of the pool.
func (d *Driver) Acquire(ctx context.Context) (database.Conn, error) {
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	return &conn{c: c}, nil
}

// --- database.Conn implementation ---

type conn struct {
	c    *pgxpool.Conn
	once sync.Once
}

func (c *conn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := c.c.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (c *conn) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: c.c.QueryRow(ctx, sql, args...)}
}

// Exec runs a statement. Postgres has no LAST_INSERT_ID equivalent;
// inserts use RETURNING instead, so LastInsertID is always zero.
func (c *conn) Exec(ctx context.Context, sql string, args ...any) (database.Result, error) {
	tag, err := c.c.Exec(ctx, sql, args...)
	if err != nil {
		return database.Result{}, mapError(err, "statement failed")
	}
	return database.Result{RowsAffected: tag.RowsAffected()}, nil
}

func (c *conn) Release() {
	c.once.Do(c.c.Release)
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapRowError(err, "failed to scan row")
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapRowError(err, "error during row iteration")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

func (r *pgxRows) Values() ([]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, mapRowError(err, "failed to decode row")
	}
	for i, v := range vals {
		vals[i] = normalize(v)
	}
	return vals, nil
}

// normalize rewrites pgx values whose default JSON form is unhelpful.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapRowError(err, "failed to scan row")
	}
	return nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error. Errors
// that did not come from the server are treated as connection failures.
func mapError(err error, msg string) *errs.Error {
	return classifyError(err, msg, errs.ErrKindConnectionFailed)
}

// mapRowError is mapError for errors raised while reading a result set.
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

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes). The server message stays
	// in the cause so Detail carries it once.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), msg, err)
	}

	return errs.Wrap(fallback, msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == pgErrUndefinedTable:
		return errs.ErrKindNotFound
	case code == pgErrInsufficientPriv:
		return errs.ErrKindPermissionDenied
	case len(code) >= 2 && (code[:2] == "08" || code[:2] == "28"):
		// Class 08: connection exception; class 28: invalid authorization.
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
