// Package config loads the cmscope configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the cmscope configuration.
type Config struct {
	DatabasePath string      `json:"database_path,omitempty"`
	LogLevel     string      `json:"log_level,omitempty"`
	Locks        LockConfig  `json:"locks"`
	Cache        CacheConfig `json:"cache"`
	Redis        RedisConfig `json:"redis"`
}

// LockConfig holds the default lock acquisition timeouts.
type LockConfig struct {
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// CacheConfig holds repository cache settings.
type CacheConfig struct {
	RepositoryMode string `json:"repository_mode"` // default, scoped or none
}

// RedisConfig enables distributed locks and cache refresh broadcasts.
type RedisConfig struct {
	Enabled  bool     `json:"enabled"`
	Address  string   `json:"address"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db"`
	Channel  string   `json:"channel"`
	LockTTL  Duration `json:"lock_ttl"`
}

// Duration is a time.Duration written as a Go duration string ("5s") in JSON.
// Plain numbers are read as seconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		secs, nerr := strconv.ParseFloat(string(b), 64)
		if nerr != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Locks: LockConfig{
			ReadTimeout:  Duration(5 * time.Second),
			WriteTimeout: Duration(5 * time.Second),
		},
		Cache: CacheConfig{RepositoryMode: "default"},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Channel: "cmscope:cache-refresh",
			LockTTL: Duration(30 * time.Second),
		},
	}
}

// Dir returns the cmscope home directory (~/.cmscope).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cmscope"), nil
}

// LoadConfig reads config.json from dir on top of Default, then applies the
// CMSCOPE_DB, CMSCOPE_LOG_LEVEL and CMSCOPE_REDIS environment overrides.
// A missing file is not an error.
func LoadConfig(dir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CMSCOPE_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CMSCOPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CMSCOPE_REDIS"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Address = v
	}
}

// SaveConfig writes config.json to dir.
func SaveConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
