package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCommand(t *testing.T) {
	t.Setenv("DB_PASSWORD", "hunter2")
	t.Setenv("DB_DRIVER", "postgres")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--db-name", "crm", "--port", "9000"})

	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "name: crm")
	assert.Contains(t, s, "driver: postgres")
	assert.Contains(t, s, "port: 9000")
	assert.NotContains(t, s, "hunter2")
}

func TestConfigCommand_InvalidDriver(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--db-driver", "oracle"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
