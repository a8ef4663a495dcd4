package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MatchConfig configures batch match runs. Sources holds full per-source
// option sets keyed by source name; a source without an entry uses Defaults.
type MatchConfig struct {
	Workers   int                      `yaml:"workers" mapstructure:"workers"`
	FlushSize int                      `yaml:"flush_size" mapstructure:"flush_size"`
	Defaults  match.Options            `yaml:"defaults" mapstructure:"defaults"`
	Sources   map[string]match.Options `yaml:"sources" mapstructure:"sources"`
}

// OptionsFor returns the matching options for a source, falling back to the
// configured defaults when the source has no dedicated entry.
func (m MatchConfig) OptionsFor(source model.Source) match.Options {
	if opts, ok := m.Sources[string(source)]; ok {
		return opts
	}
	return m.Defaults
}

// IngestConfig configures extract imports.
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// MonitoringConfig configures batch health thresholds and webhook alerting.
type MonitoringConfig struct {
	MinMatchRate  float64 `yaml:"min_match_rate" mapstructure:"min_match_rate"`
	MaxConflicts  int     `yaml:"max_conflicts" mapstructure:"max_conflicts"`
	WebhookURL    string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerMinute int     `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that configuration is usable before a command runs.
// Commands that only read local files pass needsStore=false.
func (c *Config) Validate(needsStore bool) error {
	var missing []string

	if needsStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	if c.Match.Workers < 1 || c.Match.Workers > 64 {
		missing = append(missing, "match.workers must be between 1 and 64")
	}
	if c.Match.FlushSize < 1 {
		missing = append(missing, "match.flush_size must be > 0")
	}
	if c.Ingest.BatchSize < 1 {
		missing = append(missing, "ingest.batch_size must be > 0")
	}
	if c.Monitoring.MinMatchRate < 0 || c.Monitoring.MinMatchRate > 1 {
		missing = append(missing, "monitoring.min_match_rate must be between 0 and 1")
	}
	for name, opts := range allOptions(c.Match) {
		if opts.PhoneThreshold < 0 || opts.PhoneThreshold > 1 {
			missing = append(missing, name+".phone_threshold must be between 0 and 1")
		}
		if opts.NameThreshold < 0 || opts.NameThreshold > 1 {
			missing = append(missing, name+".name_threshold must be between 0 and 1")
		}
		if opts.MarginDays < 0 {
			missing = append(missing, name+".margin_days must be >= 0")
		}
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

func allOptions(m MatchConfig) map[string]match.Options {
	all := map[string]match.Options{"match.defaults": m.Defaults}
	for src, opts := range m.Sources {
		all["match.sources."+src] = opts
	}
	return all
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "contractor-tracker.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("match.workers", 4)
	v.SetDefault("match.flush_size", 500)
	v.SetDefault("match.defaults.match_by_phone", true)
	v.SetDefault("match.defaults.match_by_name", true)
	v.SetDefault("match.defaults.phone_threshold", 0.7)
	v.SetDefault("match.defaults.name_threshold", 0.0)
	v.SetDefault("match.defaults.min_words_match", 2)
	v.SetDefault("match.defaults.margin_days", 30)
	v.SetDefault("match.defaults.enable_fuzzy_matching", true)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("monitoring.min_match_rate", 0.5)
	v.SetDefault("monitoring.max_conflicts", 0)
	v.SetDefault("monitoring.timeout_secs", 10)
	v.SetDefault("monitoring.rate_per_minute", 6)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
