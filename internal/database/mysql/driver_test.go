package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

func TestDSN(t *testing.T) {
	dsn := DSN("db.local", 3307, "root", "s3cret", "shop")

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "s3cret", cfg.Passwd)
	assert.Equal(t, "db.local:3307", cfg.Addr)
	assert.Equal(t, "shop", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.ClientFoundRows)
}

func TestDriver_Dialect(t *testing.T) {
	d, _ := newMockDriver(t)
	assert.Equal(t, database.DialectMySQL, d.Dialect())
}

func TestConn_Exec(t *testing.T) {
	d, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO `people`").
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(42, 1))

	c, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	res, err := c.Exec(ctx, "INSERT INTO `people` (`name`) VALUES (?)", "a")
	require.NoError(t, err)
	assert.Equal(t, database.Result{RowsAffected: 1, LastInsertID: 42}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_QueryValues(t *testing.T) {
	d, mock := newMockDriver(t)
	ctx := context.Background()

	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)),
		sqlmock.NewColumn("price").OfType("DOUBLE", float64(0)),
		sqlmock.NewColumn("name").OfType("VARCHAR", ""),
		sqlmock.NewColumn("blob").OfType("BLOB", []byte{}),
		sqlmock.NewColumn("note").OfType("TEXT", ""),
	).AddRow([]byte("7"), []byte("2.5"), []byte("bob"), []byte{0x01, 0x02}, nil)
	mock.ExpectQuery("SELECT \\* FROM `items`").WillReturnRows(rows)

	c, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	rs, err := c.Query(ctx, "SELECT * FROM `items`")
	require.NoError(t, err)

	recs, err := database.ScanRows(rs)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, database.Record{
		{Column: "id", Value: int64(7)},
		{Column: "price", Value: 2.5},
		{Column: "name", Value: "bob"},
		{Column: "blob", Value: []byte{0x01, 0x02}},
		{Column: "note", Value: nil},
	}, recs[0])
}

func TestConn_QueryRowNoRows(t *testing.T) {
	d, mock := newMockDriver(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT DATABASE()").WillReturnRows(sqlmock.NewRows([]string{"db"}))

	c, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	var name string
	err = c.QueryRow(ctx, "SELECT DATABASE()").Scan(&name)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestConn_ReleaseTwice(t *testing.T) {
	d, _ := newMockDriver(t)

	c, err := d.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		c.Release()
		c.Release()
	})
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"no such table", &mysql.MySQLError{Number: 1146, Message: "Table 'shop.nope' doesn't exist"}, errs.ErrKindNotFound},
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, errs.ErrKindConnectionFailed},
		{"unknown column", &mysql.MySQLError{Number: 1054, Message: "Unknown column 'x'"}, errs.ErrKindQueryFailed},
		{"duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, errs.ErrKindQueryFailed},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "query failed")
			assert.Equal(t, tt.kind, err.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "ignored"))
}

func TestMapError_ServerMessageOnce(t *testing.T) {
	err := mapError(&mysql.MySQLError{Number: 1146, Message: "Table 'shop.nope' doesn't exist"}, "query failed")
	assert.Equal(t, "query failed", err.Message)
	assert.Equal(t, 1, strings.Count(err.Detail(), "Table 'shop.nope' doesn't exist"))
}

func TestMapRowError(t *testing.T) {
	conv := errors.New(`converting driver.Value type string ("x") to a int64: invalid syntax`)
	assert.Equal(t, errs.ErrKindQueryFailed, mapRowError(conv, "failed to scan row").Kind)
	assert.Equal(t, errs.ErrKindConnectionFailed, mapError(conv, "query failed").Kind)
	assert.Equal(t, errs.ErrKindPermissionDenied,
		mapRowError(&mysql.MySQLError{Number: 1142}, "failed to scan row").Kind)
	assert.Nil(t, mapRowError(nil, "ignored"))
}

func TestRows_IterationErrorIsQueryFailed(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, errors.New("row broke")),
	)

	c, err := d.Acquire(context.Background())
	require.NoError(t, err)
	defer c.Release()

	rows, err := c.Query(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
	}
	err = rows.Err()
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}
