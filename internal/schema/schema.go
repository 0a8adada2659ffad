// Package schema reads table and column metadata from the information
// schema on every call. Nothing is cached between requests.
package schema

// Table is one entry of the table listing.
type Table struct {
	Name string `json:"TABLE_NAME"`
}

// Column describes a single column in a table
type Column struct {
	Name       string `json:"column_name"`
	DataType   string `json:"data_type"`   // as reported by the catalog: varchar, int, timestamp, …
	IsNullable string `json:"is_nullable"` // "YES" or "NO"
}

// DefaultKeyColumn is used when a keyless table has no rows to inspect.
const DefaultKeyColumn = "id"

// catalog holds the dialect-specific information_schema statements.
type catalog struct {
	currentSchema string
	listTables    string
	listColumns   string
	primaryKey    string
}

var mysqlCatalog = catalog{
	currentSchema: `SELECT DATABASE()`,

	listTables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`,

	listColumns: `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ?
		  AND table_name   = ?
		ORDER BY ordinal_position`,

	primaryKey: `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE constraint_name = 'PRIMARY'
		  AND table_schema    = ?
		  AND table_name      = ?
		ORDER BY ordinal_position`,
}

var postgresCatalog = catalog{
	currentSchema: `SELECT current_schema()`,

	listTables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`,

	listColumns: `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name   = $2
		ORDER BY ordinal_position`,

	primaryKey: `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name   = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2
		ORDER BY kcu.ordinal_position`,
}
