package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/raaihank/binsentinel/internal/features"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/binsentinel/")
	viper.AddConfigPath("$HOME/.binsentinel/")

	// Environment variable overrides
	viper.SetEnvPrefix("BINSENTINEL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Analysis.FeatureSize < features.MinVectorLength {
		return fmt.Errorf("invalid feature size: %d (must be at least %d)", config.Analysis.FeatureSize, features.MinVectorLength)
	}

	if config.Analysis.MaxTrackedNGrams < features.NGramTopK {
		return fmt.Errorf("invalid max tracked n-grams: %d (must be at least %d)", config.Analysis.MaxTrackedNGrams, features.NGramTopK)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Watch.Directory != "" {
		if config.Watch.Workers < 1 {
			return fmt.Errorf("invalid watch worker count: %d", config.Watch.Workers)
		}
		if config.Watch.RatePerSecond <= 0 {
			return fmt.Errorf("invalid watch rate limit: %v", config.Watch.RatePerSecond)
		}
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache is enabled but no redis_url is configured")
	}

	return nil
}
