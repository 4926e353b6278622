// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	godbus "github.com/godbus/dbus/v5"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

const appName = "busdemo"

// Default configuration values.
const (
	DefaultAppName        = "app_name"
	DefaultSummary        = "D-Bus Notification"
	DefaultBody           = "Hello World Message"
	DefaultUrgency        = "normal"
	DefaultExpireTimeout  = dbus.ExpireDefault
	DefaultCallTimeout    = 25 * time.Second
	DefaultPruneOlderThan = 7 * 24 * time.Hour
	DefaultHistoryKeep    = 500
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "text"
)

// Config represents the busdemo configuration.
type Config struct {
	Notification NotificationConfig `toml:"notification" yaml:"notification"`
	DBus         DBusConfig         `toml:"dbus" yaml:"dbus"`
	History      HistoryConfig      `toml:"history" yaml:"history"`
	Log          LogConfig          `toml:"log" yaml:"log"`
	TUI          TUIConfig          `toml:"tui" yaml:"tui"`
}

// NotificationConfig is the notification the demo sends.
type NotificationConfig struct {
	AppName       string         `toml:"app_name" yaml:"app_name"`
	Icon          string         `toml:"icon" yaml:"icon"`
	Summary       string         `toml:"summary" yaml:"summary"`
	Body          string         `toml:"body" yaml:"body"`
	Urgency       string         `toml:"urgency" yaml:"urgency"` // low, normal, critical
	Category      string         `toml:"category" yaml:"category"`
	Transient     bool           `toml:"transient" yaml:"transient"`
	Actions       []ActionConfig `toml:"actions" yaml:"actions"`
	ExpireTimeout int32          `toml:"expire_timeout" yaml:"expire_timeout"` // ms; -1 = server default, 0 = never
}

// ActionConfig is one notification action button.
type ActionConfig struct {
	Key   string `toml:"key" yaml:"key"`
	Label string `toml:"label" yaml:"label"`
}

// DBusConfig holds bus call settings.
type DBusConfig struct {
	CallTimeout Duration `toml:"call_timeout" yaml:"call_timeout"` // 0 = wait forever
	Destination string   `toml:"destination" yaml:"destination"`   // Introspection target; empty = own connection
	DemoPath    string   `toml:"demo_path" yaml:"demo_path"`
}

// HistoryConfig holds call log settings.
type HistoryConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled"`
	Path           string   `toml:"path" yaml:"path"` // Empty = XDG data dir
	PruneOlderThan Duration `toml:"prune_older_than" yaml:"prune_older_than"`
	Keep           int      `toml:"keep" yaml:"keep"` // Max to keep (0 = unlimited)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // text, json
}

// TUIConfig holds TUI-specific settings.
type TUIConfig struct {
	ShowHelp         bool   `toml:"show_help" yaml:"show_help"`
	ClipboardCommand string `toml:"clipboard_command" yaml:"clipboard_command"` // Auto-detected if empty
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Notification: NotificationConfig{
			AppName:       DefaultAppName,
			Summary:       DefaultSummary,
			Body:          DefaultBody,
			Urgency:       DefaultUrgency,
			ExpireTimeout: DefaultExpireTimeout,
		},
		DBus: DBusConfig{
			CallTimeout: Duration(DefaultCallTimeout),
			DemoPath:    string(dbus.DemoPath),
		},
		History: HistoryConfig{
			Enabled:        true,
			PruneOlderThan: Duration(DefaultPruneOlderThan),
			Keep:           DefaultHistoryKeep,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		TUI: TUIConfig{
			ShowHelp: true,
		},
	}
}

// ConfigPath returns the path to the config file under XDG_CONFIG_HOME.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// HistoryPath returns the call log path, creating its directory.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return expandPath(c.History.Path), nil
	}
	return xdg.DataFile(filepath.Join(appName, "calls.jsonl"))
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path. Files ending in .yaml
// or .yml are read as YAML, anything else as TOML.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := ParseUrgency(c.Notification.Urgency); err != nil {
		return err
	}
	if c.Notification.ExpireTimeout < dbus.ExpireDefault {
		return fmt.Errorf("expire_timeout must be -1 or greater, got %d", c.Notification.ExpireTimeout)
	}
	for i, a := range c.Notification.Actions {
		if a.Key == "" {
			return fmt.Errorf("action %d has an empty key", i)
		}
	}

	if c.DBus.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative, got %s", c.DBus.CallTimeout.Duration())
	}
	if !godbus.ObjectPath(c.DBus.DemoPath).IsValid() {
		return fmt.Errorf("invalid demo_path %q", c.DBus.DemoPath)
	}

	if c.History.Keep < 0 {
		return fmt.Errorf("keep must not be negative, got %d", c.History.Keep)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be text or json", c.Log.Format)
	}

	return nil
}

// ParseUrgency maps an urgency name to its wire value.
func ParseUrgency(name string) (byte, error) {
	switch strings.ToLower(name) {
	case "low":
		return dbus.UrgencyLow, nil
	case "", "normal":
		return dbus.UrgencyNormal, nil
	case "critical":
		return dbus.UrgencyCritical, nil
	default:
		return 0, fmt.Errorf("invalid urgency %q, must be low, normal or critical", name)
	}
}

// Request turns the configured notification into a request. Validate
// must have accepted the configuration.
func (n NotificationConfig) Request() dbus.NotificationRequest {
	req := dbus.NewRequest(n.AppName, n.Summary, n.Body)
	req.AppIcon = n.Icon
	req.ExpireTimeout = n.ExpireTimeout

	urgency, err := ParseUrgency(n.Urgency)
	if err != nil {
		urgency = dbus.UrgencyNormal
	}
	req.Hints = map[string]any{"urgency": urgency}
	if n.Category != "" {
		req.Hints["category"] = n.Category
	}
	if n.Transient {
		req.Hints["transient"] = true
	}

	for _, a := range n.Actions {
		req.Actions = append(req.Actions, dbus.Action{Key: a.Key, Label: a.Label})
	}
	return req
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
