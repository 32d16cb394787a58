package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Environment.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "desk.db", cfg.Database.Path)
	assert.Equal(t, "mock", cfg.Broker.Provider)
	assert.Equal(t, 6, cfg.Broker.ConnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Workers.OrderPollInterval)
	assert.Equal(t, time.Second, cfg.Workers.StatusPollInterval)
	assert.Equal(t, 60*time.Second, cfg.Workers.SubmitTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /var/lib/desk/desk.db
broker:
  provider: mock
  client_id: 7
workers:
  submit_timeout: 90s
trading:
  min_days_to_expiry:
    CL: 10
    NG: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/desk/desk.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Broker.ClientID)
	assert.Equal(t, 90*time.Second, cfg.Workers.SubmitTimeout)
	assert.Equal(t, 10, cfg.Trading.MinDaysToExpiry["CL"])
	assert.Equal(t, 5, cfg.Trading.MinDaysToExpiry["NG"])
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_DESK_SECRET", "hunter2")
	path := writeConfig(t, `
server:
  jwt_secret: ${TEST_DESK_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Server.JWTSecret)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("DESK_SERVER_PORT", "7070")
	t.Setenv("DESK_BROKER_PROVIDER", "mock")
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config { return defaults() }

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Environment.Mode = "production"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Broker.Provider = ""
	assert.Error(t, cfg.Validate())

	// A non-mock provider needs real connection parameters.
	cfg = base()
	cfg.Broker.Provider = "ibkr"
	assert.Error(t, cfg.Validate())
	cfg.Broker.Host = "127.0.0.1"
	assert.Error(t, cfg.Validate())
	cfg.Broker.Port = 4002
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Trading.MinDaysToExpiry = map[string]int{"CL": -1}
	assert.Error(t, cfg.Validate())
}
