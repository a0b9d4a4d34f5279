package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyview-dev/polyview/internal/display"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "info", c.App.LogLevel)
	assert.Equal(t, "7002", c.Server.HTTPPort)
	assert.Equal(t, "7001", c.Server.ConsolePort)
	assert.False(t, c.Server.ConsoleTLS)
	assert.Equal(t, "state", c.Snapshot.Name)
	assert.Empty(t, c.Snapshot.Dir)
	assert.Empty(t, c.MultiDisplay.Entrypoints)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  env: prod
  log_level: debug
server:
  http_port: "8080"
  console_tls: true
snapshot:
  dir: /var/lib/polyview
multi_display:
  port_based: true
  entrypoints:
    - screenA
    - screenB
  displays:
    - id: 0
      name: Built-in
      primary: true
    - id: 1
      name: VGA-1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", c.App.Env)
	assert.Equal(t, "debug", c.App.LogLevel)
	assert.Equal(t, "8080", c.Server.HTTPPort)
	assert.Equal(t, "7001", c.Server.ConsolePort) // default kept
	assert.True(t, c.Server.ConsoleTLS)
	assert.Equal(t, "/var/lib/polyview", c.Snapshot.Dir)
	assert.True(t, c.MultiDisplay.PortBased)
	assert.Equal(t, []string{"screenA", "screenB"}, c.MultiDisplay.Entrypoints)
	require.Len(t, c.MultiDisplay.Displays, 2)
	assert.Equal(t, display.Descriptor{ID: 0, Name: "Built-in", Primary: true}, c.MultiDisplay.Displays[0])
	assert.Equal(t, display.Descriptor{ID: 1, Name: "VGA-1"}, c.MultiDisplay.Displays[1])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLYVIEW_ENV", "prod")
	t.Setenv("POLYVIEW_LOG_LEVEL", "warn")
	t.Setenv("POLYVIEW_HTTP_PORT", "9090")
	t.Setenv("POLYVIEW_CONSOLE_PORT", "9091")
	t.Setenv("POLYVIEW_SNAPSHOT_DIR", "/tmp/pv")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prod", c.App.Env)
	assert.Equal(t, "warn", c.App.LogLevel)
	assert.Equal(t, "9090", c.Server.HTTPPort)
	assert.Equal(t, "9091", c.Server.ConsolePort)
	assert.Equal(t, "/tmp/pv", c.Snapshot.Dir)
}

func TestLoad_DisableTLSOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  console_tls: true\n"), 0o644))
	t.Setenv("POLYVIEW_DISABLE_TLS", "true")

	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Server.ConsoleTLS)
}
