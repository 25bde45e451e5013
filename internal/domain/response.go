package domain

import (
	"strconv"
	"time"
)

// Source is an opaque provenance record attached to a response. Typical keys
// are "title", "url" and "score", but retrievers are free to add their own.
type Source map[string]any

// AgentResponse is the result of one agent processing one query.
type AgentResponse struct {
	AgentID          string         `json:"agent_id"`
	AgentName        string         `json:"agent_name"`
	Content          string         `json:"content"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning,omitempty"`
	Sources          []Source       `json:"sources,omitempty"`
	CapabilitiesUsed []Capability   `json:"capabilities_used,omitempty"`
	ProcessingTime   time.Duration  `json:"processing_time"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewAgentResponse validates and normalizes a response. Confidence must lie
// in [0, 1]; metadata always carries query_type, processing_strategy and
// source_count after this call so downstream consumers can rely on them.
func NewAgentResponse(r AgentResponse) (*AgentResponse, error) {
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, NewDomainError("NewAgentResponse", ErrConfidenceRange,
			"confidence "+strconv.FormatFloat(r.Confidence, 'g', -1, 64))
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, 3)
	}
	if _, ok := r.Metadata["query_type"]; !ok {
		r.Metadata["query_type"] = "unknown"
	}
	if _, ok := r.Metadata["processing_strategy"]; !ok {
		r.Metadata["processing_strategy"] = "unknown"
	}
	if _, ok := r.Metadata["source_count"]; !ok {
		r.Metadata["source_count"] = len(r.Sources)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return &r, nil
}
