package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/tablegate/internal/database"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("DB_HOST", "from-env")
	fs := newFlagSet(t, "-p", "8081", "--db-driver", "POSTGRES", "--db-name", "crm", "--log-format", "console")

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "crm", cfg.Database.Name)
	assert.Equal(t, "console", cfg.Log.Format)
	// Unset flags leave earlier layers alone.
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 0, cfg.Database.Port)
}

func TestLoad_FlagsOverrideEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tablegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  name: from-file\n  user: file-user\n"), 0o600))
	t.Setenv("DB_NAME", "from-env")

	cfg, err := Load(path, newFlagSet(t, "--db-name", "from-flag"))
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Database.Name)
	assert.Equal(t, "file-user", cfg.Database.User)
}

func TestLoad_NoFlagsSet(t *testing.T) {
	cfg, err := Load("", newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
