package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Orchestrator.SelectionThreshold != 0.5 {
		t.Errorf("SelectionThreshold = %v, want 0.5", cfg.Orchestrator.SelectionThreshold)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Balancer.Strategy != "round_robin" {
		t.Errorf("Strategy = %q, want %q", cfg.Balancer.Strategy, "round_robin")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected defaults, got FailureThreshold=%d", cfg.Breaker.FailureThreshold)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
orchestrator:
  selection_threshold: 0.3
  multi_agent: false
breaker:
  failure_threshold: 10
  recovery_timeout: 30s
retrieval:
  base_url: "http://rag-backend:8000"
  api_key: "test-key"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.SelectionThreshold != 0.3 {
		t.Errorf("SelectionThreshold = %v, want 0.3", cfg.Orchestrator.SelectionThreshold)
	}
	if cfg.Orchestrator.MultiAgent {
		t.Error("MultiAgent should be false")
	}
	if cfg.Breaker.FailureThreshold != 10 {
		t.Errorf("FailureThreshold = %d, want 10", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.RecoveryTimeout != 30*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 30s", cfg.Breaker.RecoveryTimeout)
	}
	if cfg.Retrieval.BaseURL != "http://rag-backend:8000" {
		t.Errorf("BaseURL = %q", cfg.Retrieval.BaseURL)
	}
	// Unset sections keep their defaults.
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Retry.MaxRetries)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0666); err != nil {
		t.Fatal(err)
	}
	// os.WriteFile's mode is masked by the process umask; force 0666 so the
	// file is actually world-writable.
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for world-writable config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTRAG_LOGGER_LEVEL", "debug")
	t.Setenv("AGENTRAG_BALANCER_STRATEGY", "least_connections")
	t.Setenv("AGENTRAG_SELECTION_THRESHOLD", "0.7")
	t.Setenv("AGENTRAG_MULTI_AGENT", "false")
	t.Setenv("AGENTRAG_BREAKER_FAILURE_THRESHOLD", "2")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if cfg.Balancer.Strategy != "least_connections" {
		t.Errorf("Strategy = %q, want %q", cfg.Balancer.Strategy, "least_connections")
	}
	if cfg.Orchestrator.SelectionThreshold != 0.7 {
		t.Errorf("SelectionThreshold = %v, want 0.7", cfg.Orchestrator.SelectionThreshold)
	}
	if cfg.Orchestrator.MultiAgent {
		t.Error("MultiAgent should be false")
	}
	if cfg.Breaker.FailureThreshold != 2 {
		t.Errorf("FailureThreshold = %d, want 2", cfg.Breaker.FailureThreshold)
	}
}

func TestEnvOverridesRejectInvalid(t *testing.T) {
	t.Setenv("AGENTRAG_SELECTION_THRESHOLD", "1.5")
	t.Setenv("AGENTRAG_RETRY_BASE_DELAY", "not-a-duration")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Orchestrator.SelectionThreshold != 0.5 {
		t.Errorf("out-of-range threshold applied: %v", cfg.Orchestrator.SelectionThreshold)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("invalid duration applied: %v", cfg.Retry.BaseDelay)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if encrypted == plaintext {
		t.Error("encrypted value equals plaintext")
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "right")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if _, err := DecryptValue(encrypted, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestDecryptInvalidFormat(t *testing.T) {
	for _, in := range []string{"", "no-colon", "zz:zz", "abcd:"} {
		if _, err := DecryptValue(in, "pass"); err == nil {
			t.Errorf("DecryptValue(%q): expected error", in)
		}
	}
}

func TestLoadDecryptsAPIKey(t *testing.T) {
	passphrase := "load-pass"
	encrypted, err := EncryptValue("real-api-key", passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "retrieval:\n  api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENTRAG_CONFIG_KEY", passphrase)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.APIKey != "real-api-key" {
		t.Errorf("APIKey = %q, want decrypted value", cfg.Retrieval.APIKey)
	}
	if strings.HasPrefix(cfg.Retrieval.APIKey, "enc:") {
		t.Error("APIKey still carries enc: prefix")
	}
}
