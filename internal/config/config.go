package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment overrides, applied after the file is decoded.
const (
	EnvHTTPAddr  = "INVENTARIO_HTTP_ADDR"
	EnvRemoteURL = "INVENTARIO_REMOTE_URL"
	EnvLogLevel  = "INVENTARIO_LOG_LEVEL"
	EnvInterval  = "INVENTARIO_RELAY_INTERVAL"
)

// Config represents the global ~/.inventario/config.toml.
type Config struct {
	DefaultInstance string      `toml:"default_instance" validate:"omitempty,max=64"`
	HTTP            HTTPConfig  `toml:"http"`
	Relay           RelayConfig `toml:"relay"`
	Log             LogConfig   `toml:"log"`
}

// HTTPConfig controls the REST gateway.
type HTTPConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr" validate:"omitempty,hostname_port"`
}

// RelayConfig controls the built-in delivery agent. An empty RemoteURL
// disables it and leaves draining to an external agent.
type RelayConfig struct {
	RemoteURL  string   `toml:"remote_url" validate:"omitempty,url"`
	Interval   Duration `toml:"interval"`
	BatchSize  int      `toml:"batch_size" validate:"gte=1,lte=1000"`
	RatePerSec float64  `toml:"rate_per_sec" validate:"gt=0"`
	Timeout    Duration `toml:"timeout"`
}

// LogConfig controls the daemon logger.
type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// Duration is a time.Duration that round-trips through TOML as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultInstance: "main",
		HTTP:            HTTPConfig{ListenAddr: "127.0.0.1:8080"},
		Relay: RelayConfig{
			Interval:   Duration{5 * time.Second},
			BatchSize:  50,
			RatePerSec: 10,
			Timeout:    Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration: an optional .env file next to
// the config is loaded into the environment, the config file (if any) is laid
// over the defaults, INVENTARIO_* variables override both, and the result is
// validated.
func Resolve(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("invalid config: http.listen_addr is required when http is enabled")
	}
	if c.Relay.Interval.Duration <= 0 {
		return fmt.Errorf("invalid config: relay.interval must be positive")
	}
	if c.Relay.Timeout.Duration <= 0 {
		return fmt.Errorf("invalid config: relay.timeout must be positive")
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok {
		c.HTTP.ListenAddr = v
		c.HTTP.Enabled = v != ""
	}
	if v, ok := os.LookupEnv(EnvRemoteURL); ok {
		c.Relay.RemoteURL = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Plain integers are read as seconds.
			secs, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("%s: %w", EnvInterval, err)
			}
			d = time.Duration(secs) * time.Second
		}
		c.Relay.Interval = Duration{d}
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
