package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Ingest formats.
const (
	FormatOCDS   = "ocds"
	FormatSEAO   = "seao"
	FormatLegacy = "legacy"
)

// Ingest sources.
const (
	SourceDir  = "dir"
	SourceS3   = "s3"
	SourceHTTP = "http"
)

// Validation modes.
const (
	ModeIngest  = "ingest"
	ModeMigrate = "migrate"
	ModeStatus  = "status"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Legacy LegacyConfig `yaml:"legacy" mapstructure:"legacy"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the canonical database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LegacyConfig points at the legacy relational database read by the
// legacy format.
type LegacyConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// IngestConfig selects the input format and where files come from.
type IngestConfig struct {
	Format        string   `yaml:"format" mapstructure:"format"`
	Source        string   `yaml:"source" mapstructure:"source"`
	Dir           string   `yaml:"dir" mapstructure:"dir"`
	Pattern       string   `yaml:"pattern" mapstructure:"pattern"`
	URLs          []string `yaml:"urls" mapstructure:"urls"`
	AllowListPath string   `yaml:"allow_list_path" mapstructure:"allow_list_path"`
	DryRun        bool     `yaml:"dry_run" mapstructure:"dry_run"`
	Resume        bool     `yaml:"resume" mapstructure:"resume"`
	Buffer        int      `yaml:"buffer" mapstructure:"buffer"`
	S3            S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config locates input files in a bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	PathStyle bool   `yaml:"path_style" mapstructure:"path_style"`
}

// FetchConfig tunes the HTTP downloader used by the http source.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROCUREMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.database_url", "procurement.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("legacy.database_url", "")
	v.SetDefault("ingest.format", FormatOCDS)
	v.SetDefault("ingest.source", SourceDir)
	v.SetDefault("ingest.dir", "data")
	v.SetDefault("ingest.pattern", "*.json")
	v.SetDefault("ingest.urls", []string{})
	v.SetDefault("ingest.allow_list_path", "")
	v.SetDefault("ingest.dry_run", false)
	v.SetDefault("ingest.resume", false)
	v.SetDefault("ingest.buffer", 64)
	v.SetDefault("ingest.s3.bucket", "")
	v.SetDefault("ingest.s3.prefix", "")
	v.SetDefault("ingest.s3.region", "ca-central-1")
	v.SetDefault("ingest.s3.endpoint", "")
	v.SetDefault("ingest.s3.path_style", false)
	v.SetDefault("fetch.user_agent", "procurement-cli")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings the given command mode depends on and
// reports every problem found.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case ModeMigrate, ModeStatus:
	case ModeIngest:
		problems = append(problems, c.Ingest.problems(c.Legacy)...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c IngestConfig) problems(legacy LegacyConfig) []string {
	var out []string
	if c.Buffer < 0 {
		out = append(out, "ingest.buffer must be >= 0")
	}
	switch c.Format {
	case FormatLegacy:
		if legacy.DatabaseURL == "" {
			out = append(out, "legacy.database_url is required for the legacy format")
		}
		return out
	case FormatOCDS, FormatSEAO:
	default:
		out = append(out, fmt.Sprintf("unknown ingest.format %q", c.Format))
	}

	switch c.Source {
	case SourceDir:
		if c.Dir == "" {
			out = append(out, "ingest.dir is required for the dir source")
		}
	case SourceS3:
		if c.S3.Bucket == "" {
			out = append(out, "ingest.s3.bucket is required for the s3 source")
		}
	case SourceHTTP:
		if len(c.URLs) == 0 {
			out = append(out, "ingest.urls is required for the http source")
		}
	default:
		out = append(out, fmt.Sprintf("unknown ingest.source %q", c.Source))
	}
	return out
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
