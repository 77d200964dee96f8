// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ticket-geocoder/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Validate ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	Path        string            `yaml:"path" mapstructure:"path"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PipelineConfig configures run execution defaults. Individual run files can
// override workers and fail-fast.
type PipelineConfig struct {
	Workers  int  `yaml:"workers" mapstructure:"workers"`
	FailFast bool `yaml:"fail_fast" mapstructure:"fail_fast"`
}

// ValidateConfig tunes the validation rule thresholds.
type ValidateConfig struct {
	LowConfidenceThreshold       float64 `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
	EmergencyConfidenceThreshold float64 `yaml:"emergency_confidence_threshold" mapstructure:"emergency_confidence_threshold"`
	MaxCityDistanceKM            float64 `yaml:"max_city_distance_km" mapstructure:"max_city_distance_km"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("TICKETGEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "geocode.db")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.fail_fast", false)
	v.SetDefault("validate.low_confidence_threshold", 0.65)
	v.SetDefault("validate.emergency_confidence_threshold", 0.75)
	v.SetDefault("validate.max_city_distance_km", 50)
	v.SetDefault("server.port", 8080)
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
