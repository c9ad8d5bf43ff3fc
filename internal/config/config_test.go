package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.DBPath != "carbonsvc.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "carbonsvc.db")
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v, want %v", cfg.Level(), slog.LevelInfo)
	}
	if cfg.StateBackend != BackendSQLite {
		t.Errorf("StateBackend = %q, want %q", cfg.StateBackend, BackendSQLite)
	}
	if cfg.CacheSliding != time.Minute {
		t.Errorf("CacheSliding = %v, want 1m", cfg.CacheSliding)
	}
	if cfg.BatchStaleAfter != 20*time.Minute {
		t.Errorf("BatchStaleAfter = %v, want 20m", cfg.BatchStaleAfter)
	}
	if cfg.Engine != EngineStub {
		t.Errorf("Engine = %q, want %q", cfg.Engine, EngineStub)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CARBONSVC_LISTEN_ADDR", ":9090")
	t.Setenv("CARBONSVC_DB_PATH", "/tmp/test.db")
	t.Setenv("CARBONSVC_LOG_LEVEL", "debug")
	t.Setenv("CARBONSVC_STATE_BACKEND", "redis")
	t.Setenv("CARBONSVC_REDIS_DB", "2")
	t.Setenv("CARBONSVC_CACHE_SLIDING", "5s")
	t.Setenv("CARBONSVC_MAX_PARALLELISM", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want %v", cfg.Level(), slog.LevelDebug)
	}
	if cfg.StateBackend != BackendRedis || cfg.RedisDB != 2 {
		t.Errorf("redis settings = %q db %d, want redis db 2", cfg.StateBackend, cfg.RedisDB)
	}
	if cfg.CacheSliding != 5*time.Second {
		t.Errorf("CacheSliding = %v, want 5s", cfg.CacheSliding)
	}
	if cfg.MaxParallelism != 8 {
		t.Errorf("MaxParallelism = %d, want 8", cfg.MaxParallelism)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CARBONSVC_LISTEN_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	// godotenv sets the variable process-wide; register it for restore.
	t.Setenv("CARBONSVC_LISTEN_ADDR", "")
	os.Unsetenv("CARBONSVC_LISTEN_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want %q from .env", cfg.ListenAddr, ":7070")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"CARBONSVC_STATE_BACKEND": "etcd"}},
		{"remote without url", map[string]string{"CARBONSVC_ENGINE": "remote"}},
		{"negative parallelism", map[string]string{"CARBONSVC_MAX_PARALLELISM": "-1"}},
		{"bad duration", map[string]string{"CARBONSVC_CACHE_SLIDING": "soon"}},
		{"zero sliding", map[string]string{"CARBONSVC_CACHE_SLIDING": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
