package domain

import (
	"context"
	"time"
)

// Capability identifies a class of query an agent can handle.
type Capability string

const (
	CapabilityDocumentSearch       Capability = "document_search"
	CapabilityComparisonAnalysis   Capability = "comparison_analysis"
	CapabilityStateOfArtSynthesis  Capability = "state_of_art_synthesis"
	CapabilityInformationSynthesis Capability = "information_synthesis"
	CapabilityMultiStepReasoning   Capability = "multi_step_reasoning"
	CapabilityAcademicAnalysis     Capability = "academic_analysis"
	CapabilityLiteratureReview     Capability = "literature_review"
	CapabilityMethodologyExtract   Capability = "methodology_extraction"
)

// AllCapabilities lists every known capability in declaration order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityDocumentSearch,
		CapabilityComparisonAnalysis,
		CapabilityStateOfArtSynthesis,
		CapabilityInformationSynthesis,
		CapabilityMultiStepReasoning,
		CapabilityAcademicAnalysis,
		CapabilityLiteratureReview,
		CapabilityMethodologyExtract,
	}
}

// AgentState reflects what an agent is currently doing.
type AgentState string

const (
	StateIdle      AgentState = "idle"
	StateThinking  AgentState = "thinking"
	StateActing    AgentState = "acting"
	StateWaiting   AgentState = "waiting"
	StateError     AgentState = "error"
	StateCompleted AgentState = "completed"
)

// QueryContext carries cross-agent state through an orchestration pass.
// The zero value is usable; PreviousResponses accumulates as sequential
// workflows hand results from one agent to the next.
type QueryContext struct {
	SessionID         string           `json:"session_id,omitempty"`
	Values            map[string]any   `json:"values,omitempty"`
	PreviousResponses []*AgentResponse `json:"-"`
}

// Clone returns a shallow copy with an independent PreviousResponses slice,
// so concurrent agents never share the accumulating slice.
func (qc QueryContext) Clone() QueryContext {
	out := qc
	out.PreviousResponses = make([]*AgentResponse, len(qc.PreviousResponses))
	copy(out.PreviousResponses, qc.PreviousResponses)
	if qc.Values != nil {
		out.Values = make(map[string]any, len(qc.Values))
		for k, v := range qc.Values {
			out.Values[k] = v
		}
	}
	return out
}

// Agent is the contract every orchestrated agent satisfies.
// ProcessQuery must honor ctx cancellation and record its own success or
// failure statistics exactly once per invocation. HealthCheck must never
// panic; it reports whether the agent can currently serve queries.
type Agent interface {
	ID() string
	Name() string
	Capabilities() []Capability
	CanHandle(ctx context.Context, query string) (float64, error)
	ProcessQuery(ctx context.Context, query string, qc QueryContext) (*AgentResponse, error)
	HealthCheck(ctx context.Context) HealthStatus
	Status() AgentStatusReport
}

// HealthStatus is the outcome of a single agent health check.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// AgentStatusReport is a read-only snapshot of a running agent.
type AgentStatusReport struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	State        AgentState   `json:"state"`
	Capabilities []Capability `json:"capabilities"`
	Stats        AgentStats   `json:"stats"`
}

// AgentStats accumulates per-agent processing statistics.
type AgentStats struct {
	TotalQueries    int           `json:"total_queries"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	AvgConfidence   float64       `json:"avg_confidence"`
	LastError       string        `json:"last_error,omitempty"`
	LastActive      time.Time     `json:"last_active"`
}

// SuccessRate returns the fraction of queries that succeeded, or 1.0 when
// the agent has not processed anything yet (optimistic default for routing).
func (s AgentStats) SuccessRate() float64 {
	if s.TotalQueries == 0 {
		return 1.0
	}
	return float64(s.SuccessCount) / float64(s.TotalQueries)
}
