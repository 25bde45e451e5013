package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Retry        RetryConfig        `yaml:"retry"`
	Balancer     BalancerConfig     `yaml:"balancer"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Audit        AuditConfig        `yaml:"audit"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OrchestratorConfig holds agent selection and routing settings.
type OrchestratorConfig struct {
	SelectionThreshold float64       `yaml:"selection_threshold"`
	MultiAgent         bool          `yaml:"multi_agent"`
	RequestsPerMin     float64       `yaml:"requests_per_min"`
	Burst              int           `yaml:"burst"`
	AgentTimeout       time.Duration `yaml:"agent_timeout"`
}

// BreakerConfig holds circuit breaker settings applied to every agent breaker.
type BreakerConfig struct {
	FailureThreshold  uint32        `yaml:"failure_threshold"`
	SuccessThreshold  uint32        `yaml:"success_threshold"`
	RecoveryTimeout   time.Duration `yaml:"recovery_timeout"`
	SlowCallThreshold time.Duration `yaml:"slow_call_threshold"`
}

// RetryConfig holds retry/backoff settings.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// BalancerConfig holds load balancing settings.
type BalancerConfig struct {
	Strategy string `yaml:"strategy"` // round_robin, least_connections, weighted_response_time, random
}

// WorkflowConfig holds multi-agent workflow settings.
type WorkflowConfig struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// RetrievalConfig holds settings for the classic retrieval backend.
// APIKey may carry an "enc:" prefix, see DecryptValue.
type RetrievalConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// AuditConfig holds decision audit trail settings.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"` // duration string, e.g. "2160h" (90 days)
}

// SchedulerConfig holds maintenance scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.agentic-rag/data. Falls back to "./data" if $HOME cannot be
// determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".agentic-rag", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			SelectionThreshold: 0.5,
			MultiAgent:         true,
			RequestsPerMin:     120,
			Burst:              10,
			AgentTimeout:       30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			SuccessThreshold:  2,
			RecoveryTimeout:   60 * time.Second,
			SlowCallThreshold: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		Balancer: BalancerConfig{
			Strategy: "round_robin",
		},
		Workflow: WorkflowConfig{
			StepTimeout: 60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			BaseURL:     "http://localhost:8000",
			ConnTimeout: 5 * time.Second,
			RespTimeout: 60 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:   true,
			Path:      filepath.Join(dataDir, "audit.db"),
			Retention: "2160h",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "health-sweep", Schedule: "1m", Action: "health_sweep"},
				{Name: "audit-prune", Schedule: "@every 12h", Action: "audit_prune"},
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error; defaults plus env overrides are
// returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("AGENTRAG_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps AGENTRAG_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTRAG_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENTRAG_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTRAG_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTRAG_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTRAG_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENTRAG_METRICS_ENABLED"); v == "false" {
		cfg.Metrics.Enabled = false
	}

	if v := os.Getenv("AGENTRAG_SELECTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Orchestrator.SelectionThreshold = f
		}
	}
	if v := os.Getenv("AGENTRAG_MULTI_AGENT"); v == "false" {
		cfg.Orchestrator.MultiAgent = false
	}
	if v := os.Getenv("AGENTRAG_REQUESTS_PER_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Orchestrator.RequestsPerMin = f
		}
	}
	if v := os.Getenv("AGENTRAG_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Orchestrator.AgentTimeout = d
		}
	}

	if v := os.Getenv("AGENTRAG_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			cfg.Breaker.FailureThreshold = uint32(n)
		}
	}
	if v := os.Getenv("AGENTRAG_BREAKER_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Breaker.RecoveryTimeout = d
		}
	}

	if v := os.Getenv("AGENTRAG_RETRY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENTRAG_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retry.BaseDelay = d
		}
	}

	if v := os.Getenv("AGENTRAG_BALANCER_STRATEGY"); v != "" {
		cfg.Balancer.Strategy = v
	}

	if v := os.Getenv("AGENTRAG_RETRIEVAL_BASE_URL"); v != "" {
		cfg.Retrieval.BaseURL = v
	}
	if v := os.Getenv("AGENTRAG_RETRIEVAL_API_KEY"); v != "" {
		cfg.Retrieval.APIKey = v
	}

	if v := os.Getenv("AGENTRAG_AUDIT_ENABLED"); v == "true" {
		cfg.Audit.Enabled = true
	} else if v == "false" {
		cfg.Audit.Enabled = false
	}
	if v := os.Getenv("AGENTRAG_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	if v := os.Getenv("AGENTRAG_SCHEDULER_ENABLED"); v == "false" {
		cfg.Scheduler.Enabled = false
	}
}

// decryptSecrets decrypts any config value carrying the "enc:" prefix.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := []*string{
		&cfg.Retrieval.APIKey,
	}
	for _, fp := range secrets {
		if strings.HasPrefix(*fp, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
			if err != nil {
				return err
			}
			*fp = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
