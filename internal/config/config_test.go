package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mount.FsName != "mirrorfs" {
		t.Errorf("expected fs name mirrorfs, got %s", cfg.Mount.FsName)
	}
	if cfg.Mount.ReadOnly {
		t.Error("expected read-write mount by default")
	}
	if cfg.Server.GRPCAddr != "" || cfg.Server.HTTPAddr != "" {
		t.Errorf("expected status server disabled, got %+v", cfg.Server)
	}
	if cfg.Lock.Dir == "" {
		t.Error("expected a default lock dir")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
mount:
  fs_name: "projects"
  allow_other: true
  read_only: true
  exclude:
    - "*.key"
    - ".git/"
  unmount_retry_delay: "1s"
server:
  grpc_addr: ":9001"
  http_addr: ":8081"
lock:
  dir: "/run/mirrorfs"
logging:
  level: "debug"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Mount.FsName != "projects" {
		t.Errorf("expected fs name projects, got %s", cfg.Mount.FsName)
	}
	if !cfg.Mount.AllowOther || !cfg.Mount.ReadOnly {
		t.Errorf("expected allow_other and read_only, got %+v", cfg.Mount)
	}
	if len(cfg.Mount.Exclude) != 2 || cfg.Mount.Exclude[1] != ".git/" {
		t.Errorf("unexpected exclude patterns %v", cfg.Mount.Exclude)
	}
	if cfg.Server.GRPCAddr != ":9001" {
		t.Errorf("expected gRPC addr :9001, got %s", cfg.Server.GRPCAddr)
	}
	if cfg.Server.HTTPAddr != ":8081" {
		t.Errorf("expected HTTP addr :8081, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Lock.Dir != "/run/mirrorfs" {
		t.Errorf("expected lock dir /run/mirrorfs, got %s", cfg.Lock.Dir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Defaults should be preserved for unset values
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format text, got %s", cfg.Logging.Format)
	}
	if cfg.Mount.UnmountRetries != 5 {
		t.Errorf("expected default unmount retries 5, got %d", cfg.Mount.UnmountRetries)
	}
	if cfg.Mount.GetUnmountRetryDelay() != time.Second {
		t.Errorf("expected retry delay 1s, got %v", cfg.Mount.GetUnmountRetryDelay())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "mount: [unclosed"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad delay", "mount:\n  unmount_retry_delay: soon\n"},
		{"empty pattern", "mount:\n  exclude: [\"  \"]\n"},
		{"empty fs name", "mount:\n  fs_name: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	// Empty path should return default
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount.FsName != "mirrorfs" {
		t.Error("expected default config")
	}

	// Non-existent path should return default
	cfg, err = LoadOrDefault("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount.FsName != "mirrorfs" {
		t.Error("expected default config")
	}
}

func TestGetUnmountRetryDelay_Fallback(t *testing.T) {
	cfg := MountConfig{UnmountRetryDelay: "invalid"}
	if cfg.GetUnmountRetryDelay() != 200*time.Millisecond {
		t.Errorf("expected 200ms fallback, got %v", cfg.GetUnmountRetryDelay())
	}
}
