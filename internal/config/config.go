// Package config provides YAML-based configuration loading for procurebot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvAPIURL   = "PROCUREBOT_API_URL"
	EnvOrigin   = "PROCUREBOT_ORIGIN"
	EnvLogLevel = "PROCUREBOT_LOG_LEVEL"
)

// Config is the top-level procurebot configuration, loaded from procurebot.yaml.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Origin    string          `yaml:"origin"` // public origin used in share links
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Cache     CacheConfig     `yaml:"cache"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Watch     WatchConfig     `yaml:"watch"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// BackendConfig locates the negotiation backend.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	SocketPath string        `yaml:"socket_path"`
	Timeout    time.Duration `yaml:"timeout"` // 0 means no client-side timeout
}

// RealtimeConfig tunes the event channel reconnect policy.
type RealtimeConfig struct {
	MaxReconnect int           `yaml:"max_reconnect"`
	Backoff      time.Duration `yaml:"backoff"`
}

// CacheConfig selects the local snapshot cache. A mysql cache is located
// either by DSN or by Host, Port, User and Database.
type CacheConfig struct {
	Disabled bool          `yaml:"disabled"`
	Driver   string        `yaml:"driver"` // sqlite or mysql
	DSN      string        `yaml:"dsn"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Database string        `yaml:"database"`
	MaxAge   time.Duration `yaml:"max_age"` // snapshots older than this are pruned on open
}

// DashboardConfig holds settings for the local web dashboard.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// WatchConfig holds settings for the conclusion watcher.
type WatchConfig struct {
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// NotifyConfig lists optional notification webhooks.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	loadDotEnv()
	return parse(data, os.LookupEnv)
}

// LoadOrDefault behaves like Load but falls back to the built-in defaults
// when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	loadDotEnv()
	return parse(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config. Environment variables
// are not consulted.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads a .env file from the working directory if present.
func loadDotEnv() {
	_ = godotenv.Load()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvOrigin); ok && v != "" {
		c.Origin = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:5000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.SocketPath == "" {
		c.Backend.SocketPath = "/ws"
	}
	if !strings.HasPrefix(c.Backend.SocketPath, "/") {
		c.Backend.SocketPath = "/" + c.Backend.SocketPath
	}
	if c.Origin == "" {
		c.Origin = "http://localhost:3000"
	}
	c.Origin = strings.TrimRight(c.Origin, "/")
	if c.Realtime.MaxReconnect == 0 {
		c.Realtime.MaxReconnect = 5
	}
	if c.Realtime.Backoff == 0 {
		c.Realtime.Backoff = 2 * time.Second
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "sqlite"
	}
	if c.Cache.DSN == "" && c.Cache.Driver == "sqlite" {
		c.Cache.DSN = "procurebot-cache.db"
	}
	if c.Cache.Driver == "mysql" && c.Cache.Host != "" {
		if c.Cache.Port == 0 {
			c.Cache.Port = 3306
		}
		if c.Cache.User == "" {
			c.Cache.User = "root"
		}
		if c.Cache.Database == "" {
			c.Cache.Database = "procurebot"
		}
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 30 * 24 * time.Hour
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = "*/5 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if err := checkHTTPURL(c.Backend.BaseURL); err != nil {
		errs = append(errs, "backend.base_url "+err.Error())
	}
	if err := checkHTTPURL(c.Origin); err != nil {
		errs = append(errs, "origin "+err.Error())
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, "backend.timeout must not be negative")
	}
	if c.Realtime.MaxReconnect < 0 {
		errs = append(errs, "realtime.max_reconnect must not be negative")
	}
	if c.Realtime.Backoff < 0 {
		errs = append(errs, "realtime.backoff must not be negative")
	}
	switch c.Cache.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not supported (valid: sqlite, mysql)", c.Cache.Driver))
	}
	if !c.Cache.Disabled && c.Cache.DSN == "" && c.Cache.Host == "" {
		errs = append(errs, "cache.dsn is required")
	}
	if c.Cache.MaxAge < 0 {
		errs = append(errs, "cache.max_age must not be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d is out of range", c.Dashboard.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}

// SocketURL returns the WebSocket URL of the backend event channel.
func (c *Config) SocketURL() string {
	base := c.Backend.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.Backend.SocketPath
}
