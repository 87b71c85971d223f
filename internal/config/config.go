// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	custom_errors "github-trending-tracker/internal/errors"
	"github-trending-tracker/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	DBPath        string        `mapstructure:"DB_PATH"`
	HTTPAddr      string        `mapstructure:"HTTP_ADDR"`
	GithubToken   string        `mapstructure:"GITHUB_TOKEN"`
	FetchLanguage string        `mapstructure:"FETCH_LANGUAGE"`
	FetchQuota    int           `mapstructure:"FETCH_QUOTA"`
	MinStars      int           `mapstructure:"MIN_STARS"`
	RecencyDays   int           `mapstructure:"RECENCY_DAYS"`
	FetchTopic    string        `mapstructure:"FETCH_TOPIC"`
	FetchInterval time.Duration `mapstructure:"FETCH_INTERVAL"`
	RequestDelay  time.Duration `mapstructure:"REQUEST_DELAY"`
	RetentionDays int           `mapstructure:"RETENTION_DAYS"`
	PageSize      int           `mapstructure:"PAGE_SIZE"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_PATH", "github_trending.db")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("GITHUB_TOKEN", "")
	viper.SetDefault("FETCH_LANGUAGE", "all")
	viper.SetDefault("FETCH_TOPIC", "")
	viper.SetDefault("FETCH_QUOTA", 100)
	viper.SetDefault("MIN_STARS", 10)
	viper.SetDefault("RECENCY_DAYS", 7)
	viper.SetDefault("FETCH_INTERVAL", "24h")
	viper.SetDefault("REQUEST_DELAY", "2s")
	viper.SetDefault("RETENTION_DAYS", 30)
	viper.SetDefault("PAGE_SIZE", 12)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate fields
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is a required configuration field")
	}
	lang := strings.ToLower(cfg.FetchLanguage)
	if lang != "all" && !model.IsTracked(lang) {
		return nil, &custom_errors.ErrUnknownLanguage{Language: cfg.FetchLanguage}
	}
	cfg.FetchLanguage = lang
	if cfg.FetchQuota <= 0 {
		return nil, errors.New("FETCH_QUOTA must be a positive integer")
	}
	if cfg.PageSize <= 0 {
		return nil, errors.New("PAGE_SIZE must be a positive integer")
	}
	if cfg.RetentionDays <= 0 {
		return nil, errors.New("RETENTION_DAYS must be a positive integer")
	}

	return &cfg, nil
}
