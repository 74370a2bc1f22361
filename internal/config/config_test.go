package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Workers.MaxConcurrent != 4 {
		t.Errorf("expected max_concurrent 4, got %d", cfg.Workers.MaxConcurrent)
	}

	if cfg.Workers.AcquireTimeout != 30*time.Second {
		t.Errorf("expected acquire timeout 30s, got %v", cfg.Workers.AcquireTimeout)
	}

	if cfg.Supervision.MaxRounds != 3 {
		t.Errorf("expected max supervision rounds 3, got %d", cfg.Supervision.MaxRounds)
	}

	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("expected access token TTL 15m, got %v", cfg.Auth.AccessTokenTTL)
	}

	if cfg.Channel.ListenAddr == "" {
		t.Error("expected a default listen address")
	}

	if !cfg.Transcripts.Enabled {
		t.Error("expected transcripts enabled by default")
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
models:
  simple: fast-model
  complex: deep-model
workers:
  max_concurrent: 2
  acquire_timeout: 5s
  task_timeout: 1m
supervision:
  max_rounds: 1
auth:
  api_keys:
    - key-one
    - key-two
channel:
  listen_addr: "127.0.0.1:9999"
logging:
  level: debug
  pretty: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}

	if cfg.Models.Simple != "fast-model" {
		t.Errorf("expected simple model 'fast-model', got %q", cfg.Models.Simple)
	}

	if cfg.Workers.MaxConcurrent != 2 {
		t.Errorf("expected max_concurrent 2, got %d", cfg.Workers.MaxConcurrent)
	}

	if cfg.Workers.AcquireTimeout != 5*time.Second {
		t.Errorf("expected acquire timeout 5s, got %v", cfg.Workers.AcquireTimeout)
	}

	if cfg.Supervision.MaxRounds != 1 {
		t.Errorf("expected max rounds 1, got %d", cfg.Supervision.MaxRounds)
	}

	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0] != "key-one" {
		t.Errorf("expected two api keys, got %v", cfg.Auth.APIKeys)
	}

	if cfg.Channel.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("expected listen addr override, got %q", cfg.Channel.ListenAddr)
	}

	// Defaults still apply for fields the file omits.
	if cfg.Models.Moderate == "" {
		t.Error("expected default moderate model to survive partial config")
	}

	if cfg.Channel.InvokeTimeout != 2*time.Minute {
		t.Errorf("expected default invoke timeout 2m, got %v", cfg.Channel.InvokeTimeout)
	}
}

func TestLoadFromPathEnvExpansion(t *testing.T) {
	t.Setenv("DROVER_TEST_KEY", "expanded-secret")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := "anthropic:\n  api_key: ${DROVER_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestModelFor(t *testing.T) {
	cfg := Default()

	tests := []struct {
		complexity string
		want       string
	}{
		{"simple", cfg.Models.Simple},
		{"moderate", cfg.Models.Moderate},
		{"complex", cfg.Models.Complex},
		{"unknown", cfg.Models.Moderate},
		{"", cfg.Models.Moderate},
	}

	for _, tt := range tests {
		if got := cfg.ModelFor(tt.complexity); got != tt.want {
			t.Errorf("ModelFor(%q) = %q, want %q", tt.complexity, got, tt.want)
		}
	}
}

func TestGetAPIKeyPrecedence(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg := Default()
	cfg.Anthropic.APIKey = "file-key"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "env-key" {
		t.Errorf("expected environment to win, got %q", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(&Config{}); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...1234"},
	}

	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
