package config

import "github.com/spf13/pflag"

// FlagConfig names the flag holding the YAML file path.
const FlagConfig = "config"

// flagKeys maps each override flag onto its config key.
var flagKeys = map[string]string{
	"port":            "server.port",
	"db-driver":       "database.driver",
	"db-host":         "database.host",
	"db-port":         "database.port",
	"db-user":         "database.user",
	"db-password":     "database.password",
	"db-name":         "database.name",
	"db-sslmode":      "database.sslMode",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"export-endpoint": "export.endpoint",
	"export-bucket":   "export.bucket",
}

// RegisterFlags declares the command-line overrides on fs. Only flags the
// user sets explicitly take part in Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to a YAML config file")
	fs.IntP("port", "p", 0, "HTTP listen port (default 5000)")
	fs.String("db-driver", "", "database driver: mysql or postgres")
	fs.String("db-host", "", "database host")
	fs.Int("db-port", 0, "database port (default 3306 for mysql, 5432 for postgres)")
	fs.String("db-user", "", "database user")
	fs.String("db-password", "", "database password")
	fs.String("db-name", "", "database name")
	fs.String("db-sslmode", "", "postgres sslmode")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json or console")
	fs.String("export-endpoint", "", "object store host:port for exports")
	fs.String("export-bucket", "", "bucket receiving exports")
}
