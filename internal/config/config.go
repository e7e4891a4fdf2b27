// Package config loads service configuration from the environment,
// optionally layered over a YAML file. Every key has a default, so a
// bare `career-engine` starts with an in-memory store and the public
// price hosts.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything main needs to wire the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DBConfig selects the session store: a Postgres URL wins over a
// SQLite path, and with neither set the store is in-memory.
type DBConfig struct {
	PostgresURL string `mapstructure:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// RedisConfig enables the read-through session cache when URL is set.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

// ProviderConfig tunes the price client. Empty Hosts selects the
// built-in Yahoo Finance hosts.
type ProviderConfig struct {
	Hosts   []string      `mapstructure:"hosts"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration with the CAREER_ env prefix, dots becoming
// underscores: server.http_addr is CAREER_SERVER_HTTP_ADDR. A
// non-empty path reads a YAML file underneath the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAREER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.postgres_url", "")
	v.SetDefault("db.sqlite_path", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("provider.hosts", []string{})
	v.SetDefault("provider.timeout", "10s")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SlogLevel maps the configured level name onto a slog.Level. Unknown
// names fall back to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
