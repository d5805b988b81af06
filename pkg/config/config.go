package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DocumentConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
	// SnapshotEvery is how many revisions pass between stored snapshots.
	SnapshotEvery int `mapstructure:"snapshot_every"`
}

type ClientConfig struct {
	// RateLimit is the sustained number of messages per second a client
	// may send, with bursts up to RateBurst.
	RateLimit  float64 `mapstructure:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst"`
	SendBuffer int     `mapstructure:"send_buffer"`
}

type DiffConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Document DocumentConfig `mapstructure:"document"`
	Client   ClientConfig   `mapstructure:"client"`
	Diff     DiffConfig     `mapstructure:"diff"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("server.addr", ":3030")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("document.history_limit", 1000)
	v.SetDefault("document.snapshot_every", 100)
	v.SetDefault("client.rate_limit", 50)
	v.SetDefault("client.rate_burst", 100)
	v.SetDefault("client.send_buffer", 256)
	v.SetDefault("diff.timeout", time.Second)
}

// Load reads the configuration. With an empty path it looks for an optional
// deltapad.yaml in the working directory and ./config. Environment variables
// such as DELTAPAD_SERVER_ADDR override the file; REDIS_URL and GO_ENV are
// honored too.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DELTAPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("redis.url", "DELTAPAD_REDIS_URL", "REDIS_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("env", "DELTAPAD_ENV", "GO_ENV"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("server.mode", "DELTAPAD_SERVER_MODE"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("deltapad")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
		if cfg.IsDevelopment() {
			cfg.Server.Mode = "debug"
		}
	}
	return cfg, nil
}
