package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lattes.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.True(t, cfg.Search.AsyncPaging)
	assert.Equal(t, 3, cfg.Search.Concurrency)
	assert.Equal(t, 4, cfg.Enrich.Workers)
	assert.Equal(t, 25, cfg.Enrich.BatchSize)
	assert.True(t, cfg.Enrich.GetDetails)
	assert.Equal(t, 10, cfg.Enrich.BreakerThreshold)
	assert.Equal(t, 30, cfg.Source.TimeoutSecs)
	assert.True(t, cfg.Source.InsecureTLS)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/lattes
log:
  level: debug
  format: console
server:
  port: 9090
enrich:
  workers: 8
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Enrich.Workers)
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Enrich.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LATTES_STORE_DRIVER", "postgres")
	t.Setenv("LATTES_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("LATTES_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestSessionConfigConversion(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, 30*time.Second, sc.Timeout)
	assert.Equal(t, 1500*time.Millisecond, sc.RequestDelay)
	assert.True(t, sc.InsecureTLS)
	assert.Equal(t, 3, sc.Retry.MaxAttempts)

	dc := cfg.DiscoveryConfig()
	assert.Equal(t, 10, dc.PageSize)
	assert.Equal(t, 2*time.Second, dc.PageDelay)
}

func validDefaults() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", Path: "lattes.db"},
		Search: SearchConfig{PageSize: 10},
		Enrich: EnrichConfig{Workers: 4, BatchSize: 25},
		Server: ServerConfig{Port: 8080},
	}
}

func TestValidateHarvest(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("harvest"))
}

func TestValidateHarvestBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.PageSize = 0
	err := cfg.Validate("harvest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search.page_size must be between 1 and 50")

	cfg = validDefaults()
	cfg.Enrich.Workers = 33
	err = cfg.Validate("harvest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.workers must be between 1 and 32")
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("harvest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/lattes"
	assert.NoError(t, cfg.Validate("harvest"))
}

func TestValidateServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
