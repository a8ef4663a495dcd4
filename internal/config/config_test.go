package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "contractor-tracker.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Match.Workers)
	assert.Equal(t, 500, cfg.Match.FlushSize)
	assert.True(t, cfg.Match.Defaults.MatchByPhone)
	assert.True(t, cfg.Match.Defaults.MatchByName)
	assert.InDelta(t, 0.7, cfg.Match.Defaults.PhoneThreshold, 0.001)
	assert.InDelta(t, 0.0, cfg.Match.Defaults.NameThreshold, 0.001)
	assert.Equal(t, 30, cfg.Match.Defaults.MarginDays)
	assert.True(t, cfg.Match.Defaults.EnableFuzzyMatching)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.InDelta(t, 0.5, cfg.Monitoring.MinMatchRate, 0.001)
	assert.Equal(t, 10, cfg.Monitoring.TimeoutSecs)
	assert.Equal(t, 6, cfg.Monitoring.RatePerMinute)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/tracker
log:
  level: debug
  format: console
match:
  workers: 8
  sources:
    ledger_transaction:
      match_by_phone: true
      match_by_name: false
      phone_threshold: 0.9
      margin_days: 45
      enable_fuzzy_matching: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/tracker", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Match.Workers)
	// Defaults still apply for unset values
	assert.Equal(t, 500, cfg.Match.FlushSize)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)

	ledger := cfg.Match.OptionsFor(model.SourceLedgerTransaction)
	assert.False(t, ledger.MatchByName)
	assert.InDelta(t, 0.9, ledger.PhoneThreshold, 0.001)
	assert.Equal(t, 45, ledger.MarginDays)
}

func TestOptionsFor_FallsBackToDefaults(t *testing.T) {
	m := MatchConfig{
		Defaults: match.DefaultOptions(),
		Sources: map[string]match.Options{
			"lead": {MatchByPhone: true, PhoneThreshold: 0.9, MarginDays: 10, EnableFuzzyMatching: true},
		},
	}

	lead := m.OptionsFor(model.SourceLead)
	assert.Equal(t, 10, lead.MarginDays)

	reg := m.OptionsFor(model.SourceFieldRegistration)
	assert.Equal(t, 30, reg.MarginDays)
	assert.True(t, reg.MatchByName)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRACKER_STORE_DRIVER", "postgres")
	t.Setenv("TRACKER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("TRACKER_MATCH_WORKERS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Match.Workers)
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

// validDefaults returns a Config that passes validation, for tests that
// break one field at a time.
func validDefaults() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", SQLitePath: "tracker.db"},
		Match:      MatchConfig{Workers: 4, FlushSize: 500, Defaults: match.DefaultOptions()},
		Ingest:     IngestConfig{BatchSize: 500},
		Monitoring: MonitoringConfig{MinMatchRate: 0.5, TimeoutSecs: 10, RatePerMinute: 6},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(true))
}

func TestValidate_PostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/tracker"
	assert.NoError(t, cfg.Validate(true))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidate_SkipsStoreWhenNotNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	assert.NoError(t, cfg.Validate(false))
}

func TestValidate_WorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Match.Workers = 0
	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.workers must be between 1 and 64")

	cfg.Match.Workers = 65
	err = cfg.Validate(true)
	assert.Error(t, err)

	cfg.Match.Workers = 64
	assert.NoError(t, cfg.Validate(true))
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := validDefaults()

	cfg.Match.Defaults.PhoneThreshold = 1.5
	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.defaults.phone_threshold")

	cfg.Match.Defaults.PhoneThreshold = 0.7
	cfg.Match.Sources = map[string]match.Options{
		"lead": {PhoneThreshold: 0.8, NameThreshold: -0.1, MarginDays: 30},
	}
	err = cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.sources.lead.name_threshold")

	cfg.Match.Sources["lead"] = match.Options{PhoneThreshold: 0.8, MarginDays: -1}
	err = cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.sources.lead.margin_days")
}

func TestValidate_MatchRateBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.MinMatchRate = 1.2

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.min_match_rate")
}
