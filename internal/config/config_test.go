package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
backend:
  base_url: https://procurebot-backend.example.com/
  socket_path: socket
  timeout: 20s
origin: https://app.example.com
realtime:
  max_reconnect: 8
  backoff: 500ms
cache:
  driver: mysql
  dsn: "root@tcp(127.0.0.1:3306)/procurebot?parseTime=true"
dashboard:
  port: 9090
watch:
  schedule: "0 * * * *"
notify:
  slack_webhook_url: https://hooks.slack.com/services/T/B/X
  discord_webhook_url: https://discord.com/api/webhooks/123/abc
log:
  level: debug
  pretty: true
  file: pb.log
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.BaseURL != "https://procurebot-backend.example.com" {
		t.Errorf("Backend.BaseURL = %q, want trailing slash trimmed", cfg.Backend.BaseURL)
	}
	if cfg.Backend.SocketPath != "/socket" {
		t.Errorf("Backend.SocketPath = %q, want %q", cfg.Backend.SocketPath, "/socket")
	}
	if cfg.Backend.Timeout != 20*time.Second {
		t.Errorf("Backend.Timeout = %v, want 20s", cfg.Backend.Timeout)
	}
	if cfg.Origin != "https://app.example.com" {
		t.Errorf("Origin = %q, want %q", cfg.Origin, "https://app.example.com")
	}
	if cfg.Realtime.MaxReconnect != 8 {
		t.Errorf("Realtime.MaxReconnect = %d, want 8", cfg.Realtime.MaxReconnect)
	}
	if cfg.Realtime.Backoff != 500*time.Millisecond {
		t.Errorf("Realtime.Backoff = %v, want 500ms", cfg.Realtime.Backoff)
	}
	if cfg.Cache.Driver != "mysql" {
		t.Errorf("Cache.Driver = %q, want mysql", cfg.Cache.Driver)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
	if cfg.Watch.Schedule != "0 * * * *" {
		t.Errorf("Watch.Schedule = %q, want %q", cfg.Watch.Schedule, "0 * * * *")
	}
	if cfg.Notify.DiscordWebhookURL == "" || cfg.Notify.SlackWebhookURL == "" {
		t.Error("expected notify webhooks to be parsed")
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty || cfg.Log.File != "pb.log" {
		t.Errorf("Log = %+v, want debug/pretty/pb.log", cfg.Log)
	}
	if got := cfg.SocketURL(); got != "wss://procurebot-backend.example.com/socket" {
		t.Errorf("SocketURL = %q, want wss://procurebot-backend.example.com/socket", got)
	}
}

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("Backend.BaseURL = %q, want default", cfg.Backend.BaseURL)
	}
	if cfg.Backend.SocketPath != "/ws" {
		t.Errorf("Backend.SocketPath = %q, want /ws", cfg.Backend.SocketPath)
	}
	if cfg.Realtime.MaxReconnect != 5 {
		t.Errorf("Realtime.MaxReconnect = %d, want 5 (default)", cfg.Realtime.MaxReconnect)
	}
	if cfg.Realtime.Backoff != 2*time.Second {
		t.Errorf("Realtime.Backoff = %v, want 2s (default)", cfg.Realtime.Backoff)
	}
	if cfg.Cache.Driver != "sqlite" || cfg.Cache.DSN != "procurebot-cache.db" {
		t.Errorf("Cache = %+v, want sqlite default", cfg.Cache)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Backend.Timeout != 0 {
		t.Errorf("Backend.Timeout = %v, want 0 (no timeout)", cfg.Backend.Timeout)
	}
	if got := cfg.SocketURL(); got != "ws://localhost:5000/ws" {
		t.Errorf("SocketURL = %q, want ws://localhost:5000/ws", got)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad scheme", "backend:\n  base_url: ftp://x\n", "backend.base_url must use http or https"},
		{"no host", "origin: http://\n", "origin must include a host"},
		{"bad driver", "cache:\n  driver: postgres\n", `cache.driver "postgres" is not supported`},
		{"mysql without dsn", "cache:\n  driver: mysql\n", "cache.dsn is required"},
		{"port range", "dashboard:\n  port: 70000\n", "dashboard.port 70000 is out of range"},
		{"negative backoff", "realtime:\n  backoff: -1s\n", "realtime.backoff must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("backend: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestParse_MySQLCacheDisabledNeedsNoDSN(t *testing.T) {
	cfg, err := Parse([]byte("cache:\n  driver: mysql\n  disabled: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Cache.Disabled {
		t.Error("expected cache to be disabled")
	}
}

func TestParse_MySQLCacheByHost(t *testing.T) {
	cfg, err := Parse([]byte("cache:\n  driver: mysql\n  host: db.internal\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cfg.Cache
	if c.Port != 3306 || c.User != "root" || c.Database != "procurebot" {
		t.Errorf("Cache = %+v, want mysql defaults", c)
	}
	if c.DSN != "" {
		t.Errorf("DSN = %q, want empty when located by host", c.DSN)
	}
}

func TestParse_CacheMaxAge(t *testing.T) {
	cfg, err := Parse([]byte("cache:\n  max_age: 48h\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.MaxAge != 48*time.Hour {
		t.Errorf("MaxAge = %v, want 48h", cfg.Cache.MaxAge)
	}

	cfg, err = Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.MaxAge != 30*24*time.Hour {
		t.Errorf("default MaxAge = %v, want 720h", cfg.Cache.MaxAge)
	}

	if _, err := Parse([]byte("cache:\n  max_age: -1h\n")); err == nil {
		t.Error("expected error for negative max_age")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procurebot.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  base_url: http://file.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIURL, "https://env.example.com")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("Backend.BaseURL = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv(EnvOrigin, "https://share.example.com")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Origin != "https://share.example.com" {
		t.Errorf("Origin = %q, want env override", cfg.Origin)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("Backend.BaseURL = %q, want default", cfg.Backend.BaseURL)
	}
}
