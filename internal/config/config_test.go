package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("http_addr = %q, want :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.DB.PostgresURL != "" || cfg.DB.SQLitePath != "" || cfg.Redis.URL != "" {
		t.Errorf("stores configured by default: %+v %+v", cfg.DB, cfg.Redis)
	}
	if cfg.Redis.TTL != 30*time.Second {
		t.Errorf("redis ttl = %s, want 30s", cfg.Redis.TTL)
	}
	if cfg.Provider.Timeout != 10*time.Second {
		t.Errorf("provider timeout = %s, want 10s", cfg.Provider.Timeout)
	}
	if len(cfg.Provider.Hosts) != 0 {
		t.Errorf("provider hosts = %v, want empty", cfg.Provider.Hosts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CAREER_SERVER_HTTP_ADDR", ":9999")
	t.Setenv("CAREER_DB_SQLITE_PATH", "/tmp/career.db")
	t.Setenv("CAREER_REDIS_TTL", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9999" {
		t.Errorf("http_addr = %q, want :9999", cfg.Server.HTTPAddr)
	}
	if cfg.DB.SQLitePath != "/tmp/career.db" {
		t.Errorf("sqlite_path = %q", cfg.DB.SQLitePath)
	}
	if cfg.Redis.TTL != 2*time.Minute {
		t.Errorf("redis ttl = %s, want 2m", cfg.Redis.TTL)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "career.yaml")
	doc := []byte("server:\n  http_addr: \":7070\"\nprovider:\n  timeout: 3s\n  hosts:\n    - https://example.test\n")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("http_addr = %q, want :7070", cfg.Server.HTTPAddr)
	}
	if cfg.Provider.Timeout != 3*time.Second {
		t.Errorf("provider timeout = %s, want 3s", cfg.Provider.Timeout)
	}
	if len(cfg.Provider.Hosts) != 1 || cfg.Provider.Hosts[0] != "https://example.test" {
		t.Errorf("hosts = %v", cfg.Provider.Hosts)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load with a missing file should fail")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := (LogConfig{Level: c.in}).SlogLevel(); got != c.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
