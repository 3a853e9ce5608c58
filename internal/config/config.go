package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Generator struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"generator"`
	Battle Battle `yaml:"battle"`
}

// Battle holds the defaults applied to battles whose request leaves them unset.
type Battle struct {
	RoundCount        int   `yaml:"roundCount"`
	PerRoundSeconds   int   `yaml:"perRoundSeconds"`
	FreezeSeconds     int   `yaml:"freezeSeconds"`
	CountdownTicks    int   `yaml:"countdownTicks"`
	DisplayDelayTicks int   `yaml:"displayDelayTicks"`
	BotCount          int   `yaml:"botCount"`
	Seed              int64 `yaml:"seed"`
	// Retention is how long a finished battle stays readable, as a duration string.
	Retention string `yaml:"retention"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	b := c.Battle
	for name, v := range map[string]int{
		"battle.roundCount":        b.RoundCount,
		"battle.perRoundSeconds":   b.PerRoundSeconds,
		"battle.freezeSeconds":     b.FreezeSeconds,
		"battle.countdownTicks":    b.CountdownTicks,
		"battle.displayDelayTicks": b.DisplayDelayTicks,
		"battle.botCount":          b.BotCount,
	} {
		if v < 0 {
			return fmt.Errorf("config: %s must not be negative", name)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// RedisPrefix returns the configured key prefix or the default one.
func (c Config) RedisPrefix() string {
	if c.Redis.Prefix == "" {
		return "stemforces"
	}
	return c.Redis.Prefix
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ParseLevel maps a config log level to slog. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", raw)
}
