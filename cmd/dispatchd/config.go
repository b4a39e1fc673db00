package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config holds the daemon settings, populated from dispatchd.yaml and
// DISPATCH_* environment variables.
type config struct {
	Addr            string        `mapstructure:"addr"`
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	Concurrency     int           `mapstructure:"concurrency"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	CatalogStrict   bool          `mapstructure:"catalog_strict"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

func loadConfig() (*config, error) {
	v := viper.New()
	v.SetConfigName("dispatchd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/dispatch")

	v.SetDefault("addr", ":8080")
	v.SetDefault("backend", "memory")
	v.SetDefault("dsn", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("concurrency", 10)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("batch_size", 50)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("catalog_strict", false)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env take over.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
