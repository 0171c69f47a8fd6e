package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("EVENT_SOURCE_NAMESPACE", "contonance-hub")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EventSource.Namespace != "contonance-hub" {
		t.Errorf("expected namespace from env, got %q", cfg.EventSource.Namespace)
	}
	if cfg.EventSource.Name != "repair-reports" {
		t.Errorf("expected default event source name, got %q", cfg.EventSource.Name)
	}
	if cfg.Consumer.CheckpointThreshold != 2 {
		t.Errorf("expected default threshold 2, got %d", cfg.Consumer.CheckpointThreshold)
	}
	if cfg.Consumer.LeaseTTL != 30*time.Second {
		t.Errorf("expected default lease ttl 30s, got %v", cfg.Consumer.LeaseTTL)
	}
	if cfg.Checkpoint.Container != "checkpoint-store" {
		t.Errorf("expected default container checkpoint-store, got %q", cfg.Checkpoint.Container)
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
event_source:
  connection_string: "Endpoint=sb://local.example.net/;SharedAccessKeyName=dev;SharedAccessKey=secret"
  name: reports-from-file
consumer:
  checkpoint_threshold: 5
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EVENT_SOURCE_NAME", "reports-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Consumer.CheckpointThreshold != 5 {
		t.Errorf("expected threshold from file, got %d", cfg.Consumer.CheckpointThreshold)
	}
	if cfg.EventSource.Name != "reports-from-env" {
		t.Errorf("expected env override, got %q", cfg.EventSource.Name)
	}
	if cfg.EventSource.ConnectionString == "" {
		t.Error("expected connection string from file")
	}
}

func TestLog_SlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Log{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
