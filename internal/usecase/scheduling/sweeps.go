package scheduling

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"agentic-rag/internal/domain"
	"agentic-rag/internal/usecase/orchestration"
	"agentic-rag/internal/usecase/resilience"
)

// Sweep thresholds: an agent is flagged slow above this average latency and
// flagged failing below this success rate.
const (
	defaultSlowThreshold = 5 * time.Second
	defaultFailureRate   = 0.5
)

// healthSweepReport is the payload published with each health sweep event.
type healthSweepReport struct {
	SlowAgents      []string                           `json:"slow_agents,omitempty"`
	FailingAgents   []string                           `json:"failing_agents,omitempty"`
	UnhealthyAgents map[string]domain.HealthStatus     `json:"unhealthy_agents,omitempty"`
	BreakerStates   map[string]resilience.BreakerState `json:"breaker_states,omitempty"`
}

// NewHealthSweep builds the health_sweep action. Each run health-checks every
// registered agent, inspects the performance monitor and breaker group, logs
// anything degraded, and publishes a health.sweep event with the findings.
func NewHealthSweep(registry *orchestration.Registry, monitor *orchestration.Monitor, breakers *resilience.BreakerGroup, bus domain.EventBus, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report := healthSweepReport{
			SlowAgents:    monitor.SlowAgents(defaultSlowThreshold),
			FailingAgents: monitor.FailingAgents(defaultFailureRate),
			BreakerStates: breakers.States(),
		}
		for name, hs := range registry.HealthCheck(ctx) {
			if !hs.Healthy {
				if report.UnhealthyAgents == nil {
					report.UnhealthyAgents = make(map[string]domain.HealthStatus)
				}
				report.UnhealthyAgents[name] = hs
			}
		}

		for _, name := range report.SlowAgents {
			logger.Warn("agent responding slowly", "agent", name, "threshold", defaultSlowThreshold)
		}
		for _, name := range report.FailingAgents {
			logger.Warn("agent failing", "agent", name, "min_success_rate", defaultFailureRate)
		}
		for name, hs := range report.UnhealthyAgents {
			logger.Warn("agent unhealthy", "agent", name, "detail", hs.Detail)
		}
		for name, state := range report.BreakerStates {
			if state != resilience.StateClosed {
				logger.Warn("breaker not closed", "breaker", name, "state", string(state))
			}
		}

		if bus != nil {
			payload, err := json.Marshal(report)
			if err != nil {
				return err
			}
			bus.Publish(ctx, domain.Event{
				Type:      domain.EventHealthSweep,
				Timestamp: time.Now(),
				Payload:   payload,
			})
		}
		return nil
	}
}

// AuditPruner deletes audit rows older than a cutoff.
type AuditPruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// NewAuditPrune builds the audit_prune action over the given retention window.
func NewAuditPrune(store AuditPruner, retention time.Duration, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		removed, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("pruned audit rows", "removed", removed, "retention", retention)
		}
		return nil
	}
}
