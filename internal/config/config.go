// Package config handles bitpop configuration loading, validation and reload.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Accepts "5s", "1m", "1h30m" or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Backend selects the dialog host implementation.
type Backend string

const (
	// BackendDBus presents dialogs through the desktop notification server.
	BackendDBus Backend = "dbus"
	// BackendTerminal presents dialogs in the controlling terminal.
	BackendTerminal Backend = "terminal"
)

// ValidBackends returns all valid backend values.
func ValidBackends() []Backend {
	return []Backend{BackendDBus, BackendTerminal}
}

// Config is the configuration shared by bitpop and bitpopd.
// Loaded from ~/.config/bitpop/config.toml
type Config struct {
	Host    HostConfig    `toml:"host"`
	Dialog  DialogConfig  `toml:"dialog"`
	Service ServiceConfig `toml:"service"`
	Journal JournalConfig `toml:"journal"`
	DBus    DBusConfig    `toml:"dbus"`
	Log     LogConfig     `toml:"log"`
}

// HostConfig selects where dialogs are shown.
type HostConfig struct {
	Backend string `toml:"backend"` // "dbus" or "terminal"
}

// DialogConfig contains presentation defaults shared by every host.
type DialogConfig struct {
	ConfirmLabel      string   `toml:"confirm_label"`
	CancelLabel       string   `toml:"cancel_label"`
	AlertLightTimeout Duration `toml:"alert_light_timeout"` // Auto-dismiss for alert-light dialogs
	DefaultIcon       string   `toml:"default_icon"`        // Used when a request has no icon
}

// ServiceConfig controls alerts raised by background services.
type ServiceConfig struct {
	MinInterval   Duration `toml:"min_interval"`    // Identical alerts within this window are dropped
	RateLimitKeys int      `toml:"rate_limit_keys"` // Distinct alerts remembered for rate limiting
}

// JournalConfig controls the in-memory dialog history.
type JournalConfig struct {
	Length int `toml:"length"`
}

// DBusConfig contains settings for the notification backend.
type DBusConfig struct {
	AppName       string   `toml:"app_name"`
	ExpireTimeout Duration `toml:"expire_timeout"` // 0 means the server default
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn" or "error"
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Backend: string(BackendDBus),
		},
		Dialog: DialogConfig{
			ConfirmLabel:      "OK",
			CancelLabel:       "Cancel",
			AlertLightTimeout: Duration(4 * time.Second),
			DefaultIcon:       "microbit",
		},
		Service: ServiceConfig{
			MinInterval:   Duration(5 * time.Second),
			RateLimitKeys: 64,
		},
		Journal: JournalConfig{
			Length: 50,
		},
		DBus: DBusConfig{
			AppName:       "bitpop",
			ExpireTimeout: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Path returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise the platform config dir.
func Path() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configHome = dir
	}
	return filepath.Join(configHome, "bitpop", "config.toml"), nil
}

// Load loads the configuration from path, or from Path() if path is empty.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse overlays TOML data on the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, or to Path() if path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validBackend := false
	for _, b := range ValidBackends() {
		if c.Host.Backend == string(b) {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid backend %q, must be one of: %v", c.Host.Backend, ValidBackends())
	}

	if strings.TrimSpace(c.Dialog.ConfirmLabel) == "" {
		return errors.New("dialog confirm_label must not be empty")
	}
	if strings.TrimSpace(c.Dialog.CancelLabel) == "" {
		return errors.New("dialog cancel_label must not be empty")
	}
	if c.Dialog.AlertLightTimeout < 0 {
		return fmt.Errorf("alert_light_timeout must not be negative, got %s", c.Dialog.AlertLightTimeout.Duration())
	}

	if c.Service.MinInterval < 0 {
		return fmt.Errorf("service min_interval must not be negative, got %s", c.Service.MinInterval.Duration())
	}
	if c.Service.RateLimitKeys < 1 || c.Service.RateLimitKeys > 4096 {
		return fmt.Errorf("rate_limit_keys must be between 1 and 4096, got %d", c.Service.RateLimitKeys)
	}

	if c.Journal.Length < 1 || c.Journal.Length > 1000 {
		return fmt.Errorf("journal length must be between 1 and 1000, got %d", c.Journal.Length)
	}

	if strings.TrimSpace(c.DBus.AppName) == "" {
		return errors.New("dbus app_name must not be empty")
	}
	if c.DBus.ExpireTimeout < 0 {
		return fmt.Errorf("expire_timeout must not be negative, got %s", c.DBus.ExpireTimeout.Duration())
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
