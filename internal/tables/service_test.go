package tables

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/database/mysql"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(mysql.NewFromDB(db)), mock
}

func expectSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT DATABASE\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow("shop"))
}

func expectColumns(mock sqlmock.Sqlmock, table string, cols ...string) {
	expectSchema(mock)
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"})
	for _, c := range cols {
		rows.AddRow(c, "varchar", "YES")
	}
	mock.ExpectQuery(`FROM information_schema.columns`).WithArgs("shop", table).WillReturnRows(rows)
}

func expectPrimaryKey(mock sqlmock.Sqlmock, table, key string) {
	expectSchema(mock)
	mock.ExpectQuery(`FROM information_schema.key_column_usage`).
		WithArgs("shop", table).
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow(key))
}

func TestService_ListTables(t *testing.T) {
	svc, mock := newService(t)
	expectSchema(mock)
	mock.ExpectQuery(`FROM information_schema.tables`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))

	tables, err := svc.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "users", tables[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_PageWithSearch(t *testing.T) {
	svc, mock := newService(t)
	expectColumns(mock, "users", "name", "email")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `users` WHERE (`name` LIKE ? OR `email` LIKE ?)")).
		WithArgs("%bob%", "%bob%").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(125))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `users` WHERE (`name` LIKE ? OR `email` LIKE ?) LIMIT ? OFFSET ?")).
		WithArgs("%bob%", "%bob%", 50, 50).
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).AddRow("bob", "bob@example.com"))

	page, err := svc.Page(context.Background(), "users", PageRequest{Page: 2, Limit: 50, Search: "  bob "})
	require.NoError(t, err)

	assert.Equal(t, Pagination{Total: 125, Page: 2, Limit: 50, Pages: 3}, page.Pagination)
	assert.Equal(t, []database.Record{{{Column: "name", Value: "bob"}, {Column: "email", Value: "bob@example.com"}}}, page.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_PageEmptyTable(t *testing.T) {
	svc, mock := newService(t)
	expectColumns(mock, "users", "id")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `users` LIMIT ? OFFSET ?")).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	page, err := svc.Page(context.Background(), "users", PageRequest{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, Pagination{Total: 0, Page: 1, Limit: 50, Pages: 0}, page.Pagination)
}

func TestService_PageUnknownTable(t *testing.T) {
	svc, mock := newService(t)
	expectColumns(mock, "nope")

	_, err := svc.Page(context.Background(), "nope", PageRequest{Page: 1, Limit: 50})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestService_PageRejectsBadRequest(t *testing.T) {
	svc, mock := newService(t)

	_, err := svc.Page(context.Background(), "users", PageRequest{Page: 0, Limit: 50})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_InsertAutoIncrement(t *testing.T) {
	svc, mock := newService(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `people` (`name`) VALUES (?)")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(5, 1))
	expectPrimaryKey(mock, "people", "id")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `people` WHERE `id` = ?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "a"))

	res, err := svc.Insert(context.Background(), "people", database.Record{{Column: "name", Value: "a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.InsertID)

	id, ok := res.Row.Get("id")
	require.True(t, ok)
	assert.Equal(t, res.InsertID, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_InsertNaturalKey(t *testing.T) {
	svc, mock := newService(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `countries` (`code`, `name`) VALUES (?, ?)")).
		WithArgs("NL", "Netherlands").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectPrimaryKey(mock, "countries", "code")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `countries` WHERE `code` = ?")).
		WithArgs("NL").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("NL", "Netherlands"))

	res, err := svc.Insert(context.Background(), "countries", database.Record{
		{Column: "code", Value: "NL"},
		{Column: "name", Value: "Netherlands"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.InsertID)
	assert.Len(t, res.Row, 2)
}

func TestService_InsertRowNotReadable(t *testing.T) {
	svc, mock := newService(t)

	mock.ExpectExec("INSERT INTO `logs`").
		WithArgs("hello").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectPrimaryKey(mock, "logs", "id")

	res, err := svc.Insert(context.Background(), "logs", database.Record{{Column: "msg", Value: "hello"}})
	require.NoError(t, err)
	assert.Nil(t, res.Row)
	assert.Equal(t, int64(0), res.InsertID)
}

func TestService_InsertEmpty(t *testing.T) {
	svc, mock := newService(t)

	_, err := svc.Insert(context.Background(), "people", database.Record{})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Update(t *testing.T) {
	svc, mock := newService(t)
	expectPrimaryKey(mock, "people", "id")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `people` SET `name` = ? WHERE `id` = ?")).
		WithArgs("b", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `people` WHERE `id` = ?")).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "b"))

	row, err := svc.Update(context.Background(), "people", "5", database.Record{{Column: "name", Value: "b"}})
	require.NoError(t, err)
	assert.Equal(t, database.Record{{Column: "id", Value: int64(5)}, {Column: "name", Value: "b"}}, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_UpdateMissingRow(t *testing.T) {
	svc, mock := newService(t)
	expectPrimaryKey(mock, "people", "id")

	mock.ExpectExec("UPDATE `people`").
		WithArgs("b", "404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Update(context.Background(), "people", "404", database.Record{{Column: "name", Value: "b"}})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestService_UpdateEmpty(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Update(context.Background(), "people", "1", nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestService_Delete(t *testing.T) {
	svc, mock := newService(t)
	expectPrimaryKey(mock, "people", "id")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `people` WHERE `id` = ?")).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "a"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `people` WHERE `id` = ?")).
		WithArgs("5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	row, err := svc.Delete(context.Background(), "people", "5")
	require.NoError(t, err)
	assert.Equal(t, database.Record{{Column: "id", Value: int64(5)}, {Column: "name", Value: "a"}}, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DeleteMissingRow(t *testing.T) {
	svc, mock := newService(t)
	expectPrimaryKey(mock, "people", "id")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `people` WHERE `id` = ?")).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := svc.Delete(context.Background(), "people", "404")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DeleteRaceLost(t *testing.T) {
	svc, mock := newService(t)
	expectPrimaryKey(mock, "people", "id")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `people` WHERE `id` = ?")).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("DELETE FROM `people`").
		WithArgs("5").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Delete(context.Background(), "people", "5")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}
