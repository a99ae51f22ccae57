package config

import (
	"time"

	"github.com/raaihank/binsentinel/internal/cache"
	"github.com/raaihank/binsentinel/internal/classify"
	"github.com/raaihank/binsentinel/internal/explain"
)

// Config represents the main configuration structure
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Cache    cache.Config   `yaml:"cache" mapstructure:"cache"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// AnalysisConfig contains feature extraction and scoring configuration
type AnalysisConfig struct {
	FeatureSize      int                      `yaml:"feature_size" mapstructure:"feature_size"`
	MaxTrackedNGrams int                      `yaml:"max_tracked_ngrams" mapstructure:"max_tracked_ngrams"`
	Heuristic        classify.HeuristicConfig `yaml:"heuristic" mapstructure:"heuristic"`
	Explain          explain.Config           `yaml:"explain" mapstructure:"explain"`
}

// ModelConfig contains trained model artifact configuration
type ModelConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WatchConfig contains drop-directory monitoring configuration
type WatchConfig struct {
	Directory     string  `yaml:"directory" mapstructure:"directory"`
	Workers       int     `yaml:"workers" mapstructure:"workers"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Analysis: AnalysisConfig{
			FeatureSize:      1000,
			MaxTrackedNGrams: 1 << 16,
			Heuristic:        classify.DefaultHeuristicConfig(),
			Explain:          explain.DefaultConfig(),
		},
		Model: ModelConfig{
			Path: "",
		},
		Cache: cache.Config{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     24 * time.Hour,
			KeyPrefix:      "binsentinel",
		},
		Watch: WatchConfig{
			Directory:     "",
			Workers:       4,
			RatePerSecond: 20,
			Burst:         40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
	cfg.Logging.File.Enabled = false
	cfg.Logging.File.Path = "logs/binsentinel.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.Compress = true
	return cfg
}
