package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var validStrategies = map[string]bool{
	"round_robin":            true,
	"least_connections":      true,
	"weighted_response_time": true,
	"random":                 true,
}

var validActions = map[string]bool{
	"health_sweep": true,
	"audit_prune":  true,
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateOrchestrator(cfg, ve)
	validateBreaker(cfg, ve)
	validateRetry(cfg, ve)
	validateBalancer(cfg, ve)
	validateRetrieval(cfg, ve)
	validateAudit(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	if t := cfg.Orchestrator.SelectionThreshold; t < 0 || t > 1 {
		ve.Add("orchestrator.selection_threshold must be in [0, 1], got %v", t)
	}
	if cfg.Orchestrator.RequestsPerMin <= 0 {
		ve.Add("orchestrator.requests_per_min must be > 0")
	}
	if cfg.Orchestrator.Burst <= 0 {
		ve.Add("orchestrator.burst must be > 0")
	}
	if cfg.Orchestrator.AgentTimeout <= 0 {
		ve.Add("orchestrator.agent_timeout must be > 0")
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	if cfg.Breaker.FailureThreshold == 0 {
		ve.Add("breaker.failure_threshold must be > 0")
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		ve.Add("breaker.success_threshold must be > 0")
	}
	if cfg.Breaker.RecoveryTimeout <= 0 {
		ve.Add("breaker.recovery_timeout must be > 0")
	}
}

func validateRetry(cfg *Config, ve *ValidationError) {
	if cfg.Retry.MaxRetries < 0 {
		ve.Add("retry.max_retries must be >= 0")
	}
	if cfg.Retry.BaseDelay <= 0 {
		ve.Add("retry.base_delay must be > 0")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		ve.Add("retry.max_delay must be >= retry.base_delay")
	}
}

func validateBalancer(cfg *Config, ve *ValidationError) {
	if !validStrategies[cfg.Balancer.Strategy] {
		ve.Add("balancer.strategy %q is not one of round_robin, least_connections, weighted_response_time, random", cfg.Balancer.Strategy)
	}
}

func validateRetrieval(cfg *Config, ve *ValidationError) {
	if cfg.Retrieval.BaseURL == "" {
		ve.Add("retrieval.base_url must not be empty")
	}
	if cfg.Retrieval.RespTimeout <= 0 {
		ve.Add("retrieval.resp_timeout must be > 0")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
	if cfg.Audit.Retention != "" {
		if d, err := time.ParseDuration(cfg.Audit.Retention); err != nil || d <= 0 {
			ve.Add("audit.retention %q is not a positive duration", cfg.Audit.Retention)
		}
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for _, task := range cfg.Scheduler.Tasks {
		if task.Name == "" {
			ve.Add("scheduler task missing name")
		}
		if task.Schedule == "" {
			ve.Add("scheduler task %q missing schedule", task.Name)
		}
		if !validActions[task.Action] {
			ve.Add("scheduler task %q has unknown action %q", task.Name, task.Action)
		}
	}
}
