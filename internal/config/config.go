package config

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/extent-cli/internal/geo"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Compute    ComputeConfig    `yaml:"compute" mapstructure:"compute"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ComputeConfig configures EOO/AOO computation and the optional remote worker.
type ComputeConfig struct {
	CellSizeMeters        float64 `yaml:"cell_size_meters" mapstructure:"cell_size_meters"`
	WorkerURL             string  `yaml:"worker_url" mapstructure:"worker_url"`
	WorkerTimeoutSecs     int     `yaml:"worker_timeout_secs" mapstructure:"worker_timeout_secs"`
	MaxReschedules        int     `yaml:"max_reschedules" mapstructure:"max_reschedules"`
	MaxConcurrentProjects int     `yaml:"max_concurrent_projects" mapstructure:"max_concurrent_projects"`
}

// WorkerConfig configures the HTTP compute worker.
type WorkerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSec     float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ResilienceConfig configures the circuit breaker and retries around the
// remote worker.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// IngestConfig configures remote occurrence downloads.
type IngestConfig struct {
	DownloadTimeoutSecs int `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
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
	v.SetEnvPrefix("EXTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "extent.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("compute.cell_size_meters", 2000.0)
	v.SetDefault("compute.worker_url", "")
	v.SetDefault("compute.worker_timeout_secs", 30)
	v.SetDefault("compute.max_reschedules", 3)
	v.SetDefault("compute.max_concurrent_projects", 4)
	v.SetDefault("worker.port", 8090)
	v.SetDefault("worker.rate_per_sec", 20.0)
	v.SetDefault("worker.burst", 40)
	v.SetDefault("worker.allowed_origins", []string{"*"})
	v.SetDefault("resilience.failure_threshold", 3)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 200)
	v.SetDefault("ingest.download_timeout_secs", 300)

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

// Validate checks the settings a command mode depends on. Modes: "store",
// "compute", "worker".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required")
		}
	case "compute":
		if err := geo.ValidateCellSize(c.Compute.CellSizeMeters); err != nil {
			return eris.Wrap(err, "config: compute.cell_size_meters")
		}
		if c.Compute.WorkerURL != "" {
			u, err := url.Parse(c.Compute.WorkerURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return eris.Errorf("config: invalid compute.worker_url %q", c.Compute.WorkerURL)
			}
		}
	case "worker":
		if c.Worker.Port <= 0 || c.Worker.Port > 65535 {
			return eris.Errorf("config: invalid worker.port %d", c.Worker.Port)
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
	return nil
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
