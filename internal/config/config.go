// Package config loads tablegate settings from built-in defaults, an
// optional YAML file, the environment and command-line flags, in that
// order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/database/mysql"
	"github.com/koustreak/tablegate/internal/database/postgres"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/filestore"
	"github.com/koustreak/tablegate/internal/logger"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Export   ExportConfig   `yaml:"export"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type DatabaseConfig struct {
	Driver   database.Driver `yaml:"driver"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"` // 0 picks the driver's default port
	User     string          `yaml:"user"`
	Password string          `yaml:"password"`
	Name     string          `yaml:"name"`
	SSLMode  string          `yaml:"sslMode"` // postgres only

	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ExportConfig points at the object store receiving table exports.
// Exports are disabled while Endpoint or Bucket is empty.
type ExportConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"accessKey"`
	SecretKey string        `yaml:"secretKey"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	UseSSL    bool          `yaml:"useSSL"`
	URLExpiry time.Duration `yaml:"urlExpiry"`
}

// Default returns the built-in settings.
func Default() *Config {
	pool := database.DefaultConfig(database.DriverMySQL, "")
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          database.DriverMySQL,
			Host:            "localhost",
			User:            "root",
			Name:            "database_name",
			MaxConns:        pool.MaxConns,
			MinConns:        pool.MinConns,
			MaxConnLifetime: pool.MaxConnLifetime,
			MaxConnIdleTime: pool.MaxConnIdleTime,
			ConnectTimeout:  pool.ConnectTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Export: ExportConfig{
			URLExpiry: 24 * time.Hour,
		},
	}
}

// envKeys maps the supported environment variables onto config keys.
var envKeys = map[string]string{
	"DB_DRIVER":         "database.driver",
	"DB_HOST":           "database.host",
	"DB_PORT":           "database.port",
	"DB_USER":           "database.user",
	"DB_PASSWORD":       "database.password",
	"DB_NAME":           "database.name",
	"DB_SSLMODE":        "database.sslMode",
	"API_PORT":          "server.port",
	"LOG_LEVEL":         "log.level",
	"LOG_FORMAT":        "log.format",
	"EXPORT_ENDPOINT":   "export.endpoint",
	"EXPORT_ACCESS_KEY": "export.accessKey",
	"EXPORT_SECRET_KEY": "export.secretKey",
	"EXPORT_BUCKET":     "export.bucket",
	"EXPORT_REGION":     "export.region",
	"EXPORT_USE_SSL":    "export.useSSL",
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when empty), then environment variables, then the flags explicitly set
// on fs (fs may be nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yamlParser{}); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file "+path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load environment", err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load flags", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid configuration", err)
	}
	cfg.Database.Driver = database.Driver(strings.ToLower(string(cfg.Database.Driver)))
	return cfg, nil
}

// yamlParser adapts yaml/v3 to koanf's Parser interface.
type yamlParser struct{}

func (yamlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (yamlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(m)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverMySQL, database.DriverPostgres:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid database port %d", c.Database.Port)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid API port %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return errs.New(errs.ErrKindInvalidInput, "database name is required")
	}
	return nil
}

// EffectivePort returns the configured port, or the driver's default when unset.
func (d DatabaseConfig) EffectivePort() int {
	if d.Port != 0 {
		return d.Port
	}
	if d.Driver == database.DriverPostgres {
		return 5432
	}
	return 3306
}

// DSN renders the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == database.DriverPostgres {
		return postgres.DSN(d.Host, d.EffectivePort(), d.User, d.Password, d.Name, d.SSLMode)
	}
	return mysql.DSN(d.Host, d.EffectivePort(), d.User, d.Password, d.Name)
}

// PoolConfig converts the settings into what the database providers take.
func (d DatabaseConfig) PoolConfig() *database.Config {
	cfg := database.DefaultConfig(d.Driver, d.DSN())
	if d.MaxConns > 0 {
		cfg.MaxConns = d.MaxConns
	}
	if d.MinConns > 0 {
		cfg.MinConns = d.MinConns
	}
	if d.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = d.MaxConnLifetime
	}
	if d.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = d.MaxConnIdleTime
	}
	if d.ConnectTimeout > 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	return cfg
}

// LoggerConfig maps the log settings onto the logger package.
func (l LogConfig) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if l.Level != "" {
		cfg.Level = l.Level
	}
	if l.Format != "" {
		cfg.Format = l.Format
	}
	return cfg
}

// Enabled reports whether exports are configured.
func (e ExportConfig) Enabled() bool {
	return e.StoreConfig().Enabled()
}

// StoreConfig converts the export settings for the filestore providers.
func (e ExportConfig) StoreConfig() *filestore.Config {
	cfg := filestore.DefaultConfig(e.Endpoint, e.AccessKey, e.SecretKey, e.Bucket)
	cfg.UseSSL = e.UseSSL
	cfg.Region = e.Region
	if e.URLExpiry > 0 {
		cfg.URLExpiry = e.URLExpiry
	}
	return cfg
}

const redactedValue = "********"

// Redacted returns a copy with credentials masked, for printing.
func (c Config) Redacted() *Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&c.Database.Password)
	mask(&c.Export.AccessKey)
	mask(&c.Export.SecretKey)
	return &c
}

// YAML renders c in the format Load reads.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
