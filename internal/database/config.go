package database

import "time"

// Driver identifies the database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds all settings needed to connect to and pool a database.
type Config struct {
	// Driver is the database engine (e.g. DriverMySQL).
	Driver Driver

	// DSN is the full data source name / connection string.
	// Example: "root:secret@tcp(localhost:3306)/shop?parseTime=true"
	DSN string

	// Pool tuning
	MaxConns        int32         // maximum number of connections in the pool
	MinConns        int32         // minimum number of idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	ConnectTimeout time.Duration // time limit for establishing a new connection
}

// DefaultConfig returns pool settings sized like a small web backend:
// ten connections, matching the connectionLimit most callers expect.
func DefaultConfig(driver Driver, dsn string) *Config {
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
