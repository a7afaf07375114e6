package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":5001", c.Server.Addr)
	require.Equal(t, 5432, c.Database.Port)
	require.Equal(t, "ws://localhost:5001/ws", c.Client.SocketURL)
	require.False(t, c.DatabaseConfigured())
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":6001"
database:
  host: db.internal
  user: codeoff
  password: secret
  name: codeoff
`), 0o644))

	t.Setenv("CODEOFF_ADDR", ":7001")
	t.Setenv("CODEOFF_DB_PORT", "5433")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7001", c.Server.Addr, "env beats file")
	require.Equal(t, "db.internal", c.Database.Host)
	require.Equal(t, 5433, c.Database.Port)
	require.True(t, c.DatabaseConfigured())
	require.Equal(t,
		"host=db.internal port=5433 user=codeoff password=secret dbname=codeoff sslmode=disable",
		c.DSN())
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_BadEnvIntFallsBack(t *testing.T) {
	t.Setenv("CODEOFF_DB_PORT", "not-a-number")
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5432, c.Database.Port)
}
