// Package config holds the mazelink configuration: built-in defaults from
// struct tags, optionally overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/session"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user config directory
const AppName = "mazelink"

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Device   DeviceConfig   `yaml:"device"`
	Session  SessionConfig  `yaml:"session"`
	Retry    RetryConfig    `yaml:"retry"`
	Identity IdentityConfig `yaml:"identity"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Backend  BackendConfig  `yaml:"backend"`
	LiveFeed LiveFeedConfig `yaml:"live_feed"`
}

// DeviceConfig describes how maze devices advertise and which attributes they expose
type DeviceConfig struct {
	NameFilter  string `yaml:"name_filter" default:"MazeChallenge"`
	ServiceUUID string `yaml:"service_uuid" default:"4fafc201-1fb5-459e-8fcc-c5c9c331914b"`
	StatusUUID  string `yaml:"status_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26a8"`
	TimerUUID   string `yaml:"timer_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26a9"`
	ControlUUID string `yaml:"control_uuid" default:"beb5483e-36e1-4688-b7f5-ea07361b26aa"`
}

type SessionConfig struct {
	ScanWindow     time.Duration `yaml:"scan_window" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	EventBuffer    int           `yaml:"event_buffer" default:"256"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" default:"5s"`
	Multiplier   float64       `yaml:"multiplier" default:"2"`
}

// IdentityConfig locates the remembered-device file; empty means the user config dir.
type IdentityConfig struct {
	File string `yaml:"file"`
}

// OutboxConfig locates the undelivered-record database; empty means the user config dir.
type OutboxConfig struct {
	Path string `yaml:"path"`
}

type BackendConfig struct {
	URL      string        `yaml:"url" default:"http://localhost:8080"`
	Username string        `yaml:"username" default:"admin"`
	Password string        `yaml:"password" default:"password"`
	Timeout  time.Duration `yaml:"timeout" default:"10s"`
}

// LiveFeedConfig enables the WebSocket feed when Listen is set.
type LiveFeedConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path" default:"/events"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the defaults cannot guarantee once a file is applied.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if strings.TrimSpace(c.Device.NameFilter) == "" {
		return fmt.Errorf("device.name_filter must not be empty")
	}
	if _, err := device.ValidateUUID(c.Device.ServiceUUID, c.Device.StatusUUID, c.Device.TimerUUID, c.Device.ControlUUID); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if c.Session.ScanWindow <= 0 || c.Session.ConnectTimeout <= 0 {
		return fmt.Errorf("session: scan_window and connect_timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions maps the device and session sections onto session.Options
func (c *Config) SessionOptions() *session.Options {
	return &session.Options{
		Profile: session.Profile{
			Service: c.Device.ServiceUUID,
			Status:  c.Device.StatusUUID,
			Timer:   c.Device.TimerUUID,
			Control: c.Device.ControlUUID,
		},
		NameFilter:     c.Device.NameFilter,
		ScanWindow:     c.Session.ScanWindow,
		ConnectTimeout: c.Session.ConnectTimeout,
		EventBuffer:    c.Session.EventBuffer,
	}
}

// RetryPolicy maps the retry section onto session.RetryPolicy
func (c *Config) RetryPolicy() session.RetryPolicy {
	return session.RetryPolicy{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
		Timeout:      c.Session.ConnectTimeout,
	}
}

// IdentityPath returns the remembered-device file location.
func (c *Config) IdentityPath() (string, error) {
	if c.Identity.File != "" {
		return c.Identity.File, nil
	}
	return dataPath("device.yaml")
}

// OutboxPath returns the outbox database location.
func (c *Config) OutboxPath() (string, error) {
	if c.Outbox.Path != "" {
		return c.Outbox.Path, nil
	}
	return dataPath("outbox.db")
}

func dataPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, AppName, name), nil
}
