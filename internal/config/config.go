// Package config loads procura configuration from procura.yml and the
// environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/procura-hq/procura/internal/resource/cache"
	"github.com/procura-hq/procura/internal/resource/query"
)

// Config represents the procura configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Search   SearchConfig   `mapstructure:"search"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig represents the schema cache configuration
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// SearchConfig tunes the fuzzy name-search behavior
type SearchConfig struct {
	MinSimilarity float64 `mapstructure:"min_similarity"`
	Take          int     `mapstructure:"take"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from procura.yml or procura.yaml
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl_minutes", int(cache.DefaultTTL.Minutes()))
	v.SetDefault("search.min_similarity", query.DefaultSearchMinSimilarity)
	v.SetDefault("search.take", query.DefaultSearchTake)
	v.SetDefault("logging.level", "info")

	v.SetConfigName("procura")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("procura")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}

	return cfg.Database.URL
}

func validateConfig(cfg *Config) error {
	if cfg.Search.MinSimilarity < 0 || cfg.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be between 0 and 1, got %g", cfg.Search.MinSimilarity)
	}
	if cfg.Search.Take < 1 {
		return fmt.Errorf("search.take must be positive, got %d", cfg.Search.Take)
	}
	return nil
}
