package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/spf13/viper"
)

type Config struct {
	ServerAddress   string        `mapstructure:"server_address"`
	CredentialsPath string        `mapstructure:"credentials_path"`
	Driver          string        `mapstructure:"db_driver"`
	OutputDir       string        `mapstructure:"output_dir"`
	ExportFormats   []string      `mapstructure:"export_formats"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	Concurrency     int           `mapstructure:"query_concurrency"`
	FailurePolicy   string        `mapstructure:"failure_policy"`
	Deduplicate     bool          `mapstructure:"deduplicate"`
	PreviewRows     int           `mapstructure:"preview_rows"`
	LogLevel        string        `mapstructure:"log_level"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("server_address", ":8080")
	viper.SetDefault("credentials_path", "credentials.yaml")
	viper.SetDefault("db_driver", string(db.Postgres))
	viper.SetDefault("output_dir", "output")
	viper.SetDefault("export_formats", "csv,xlsx,pickle")
	viper.SetDefault("query_timeout", "5m")
	viper.SetDefault("query_concurrency", 1)
	viper.SetDefault("failure_policy", string(fetch.FailFast))
	viper.SetDefault("deduplicate", false)
	viper.SetDefault("preview_rows", 5)
	viper.SetDefault("log_level", "info")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that cannot be corrected by a default.
func (c *Config) Validate() error {
	var errs []error
	if _, err := db.ParseDriver(c.Driver); err != nil {
		errs = append(errs, err)
	}
	if _, err := export.ParseFormats(c.ExportFormats); err != nil {
		errs = append(errs, err)
	}
	if _, err := fetch.ParseFailurePolicy(c.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("query_concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout))
	}
	if c.PreviewRows < 0 {
		errs = append(errs, fmt.Errorf("preview_rows must not be negative, got %d", c.PreviewRows))
	}
	return errors.Join(errs...)
}

// FetchOptions maps the settings onto the fetch engine options. Call Validate first.
func (c *Config) FetchOptions() fetch.Options {
	policy, _ := fetch.ParseFailurePolicy(c.FailurePolicy)
	return fetch.Options{
		Policy:       policy,
		QueryTimeout: c.QueryTimeout,
		Concurrency:  c.Concurrency,
		Deduplicate:  c.Deduplicate,
	}
}
