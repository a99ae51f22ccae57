package config

import (
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("Default configuration must validate: %v", err)
	}
	if cfg.Analysis.FeatureSize != 1000 {
		t.Errorf("Expected default feature size 1000, got %d", cfg.Analysis.FeatureSize)
	}
	if cfg.Analysis.Heuristic.MaliciousScore != 0.5 {
		t.Errorf("Expected default malicious threshold 0.5, got %v", cfg.Analysis.Heuristic.MaliciousScore)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"FeatureSizeTooSmall", func(c *Config) { c.Analysis.FeatureSize = 660 }},
		{"NGramCapacityTooSmall", func(c *Config) { c.Analysis.MaxTrackedNGrams = 100 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
		{"WatchWithoutWorkers", func(c *Config) {
			c.Watch.Directory = "/tmp/drop"
			c.Watch.Workers = 0
		}},
		{"WatchWithoutRate", func(c *Config) {
			c.Watch.Directory = "/tmp/drop"
			c.Watch.RatePerSecond = 0
		}},
		{"CacheWithoutURL", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.RedisURL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}
