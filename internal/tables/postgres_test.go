package tables

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/database/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresDB serves sqlmock connections while reporting the Postgres
// dialect, so statements are built with "ident" quoting and $n markers.
type postgresDB struct {
	database.DB
}

func (postgresDB) Dialect() database.Dialect { return database.DialectPostgres }

func newPostgresService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(postgresDB{mysql.NewFromDB(db)}), mock
}

func expectPostgresColumns(mock sqlmock.Sqlmock, table string, cols ...string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_schema()")).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("public"))
	rows := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"})
	for _, c := range cols {
		rows.AddRow(c, "text", "YES")
	}
	mock.ExpectQuery(`FROM information_schema.columns\s+WHERE table_schema = \$1`).
		WithArgs("public", table).
		WillReturnRows(rows)
}

func TestService_PostgresInsertReturning(t *testing.T) {
	svc, mock := newPostgresService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "people" ("name", "age") VALUES ($1, $2) RETURNING *`)).
		WithArgs("ada", 36).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(7), "ada", int64(36)))

	res, err := svc.Insert(context.Background(), "people", database.Record{
		{Column: "name", Value: "ada"},
		{Column: "age", Value: 36},
	})
	require.NoError(t, err)

	assert.Zero(t, res.InsertID)
	assert.Equal(t, database.Record{
		{Column: "id", Value: int64(7)},
		{Column: "name", Value: "ada"},
		{Column: "age", Value: int64(36)},
	}, res.Row)
	// No follow-up primary key lookup or SELECT.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_PostgresPageWithSearch(t *testing.T) {
	svc, mock := newPostgresService(t)
	expectPostgresColumns(mock, "people", "id", "name")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "people" WHERE (CAST("id" AS TEXT) LIKE $1 OR CAST("name" AS TEXT) LIKE $2)`)).
		WithArgs("%ad%", "%ad%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "people" WHERE (CAST("id" AS TEXT) LIKE $1 OR CAST("name" AS TEXT) LIKE $2) LIMIT $3 OFFSET $4`)).
		WithArgs("%ad%", "%ad%", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(9), "adam"))

	page, err := svc.Page(context.Background(), "people", PageRequest{Page: 2, Limit: 2, Search: "ad"})
	require.NoError(t, err)

	assert.Equal(t, Pagination{Total: 3, Page: 2, Limit: 2, Pages: 2}, page.Pagination)
	assert.Equal(t, []database.Record{{{Column: "id", Value: int64(9)}, {Column: "name", Value: "adam"}}}, page.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}
