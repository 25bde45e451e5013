package workflow

import (
	"fmt"
	"strings"

	"agentic-rag/internal/domain"
)

// SynthesizedAgentName labels responses combined from multiple agents.
const SynthesizedAgentName = "multi-agent"

// Synthesize combines agent responses into a single answer.
// Zero responses produce a neutral zero-confidence answer, one response
// passes through with synthesis metadata, and two or more are merged into a
// sectioned answer with the mean confidence and the union of sources.
func Synthesize(responses []*domain.AgentResponse) *domain.AgentResponse {
	switch len(responses) {
	case 0:
		resp, _ := domain.NewAgentResponse(domain.AgentResponse{
			AgentID:    SynthesizedAgentName,
			AgentName:  SynthesizedAgentName,
			Content:    "No agent was able to produce a response for this query.",
			Confidence: 0.0,
			Reasoning:  "no responses to synthesize",
			Metadata:   map[string]any{"agent_count": 0},
		})
		return resp
	case 1:
		single := *responses[0]
		if single.Metadata == nil {
			single.Metadata = make(map[string]any, 1)
		}
		single.Metadata["agent_count"] = 1
		resp, _ := domain.NewAgentResponse(single)
		return resp
	}

	var (
		confidenceSum float64
		sources       []domain.Source
		capsUsed      []domain.Capability
		perAgent      = make(map[string]float64, len(responses))
	)
	for _, r := range responses {
		confidenceSum += r.Confidence
		sources = append(sources, r.Sources...)
		capsUsed = append(capsUsed, r.CapabilitiesUsed...)
		perAgent[r.AgentName] = r.Confidence
	}

	resp, _ := domain.NewAgentResponse(domain.AgentResponse{
		AgentID:          SynthesizedAgentName,
		AgentName:        SynthesizedAgentName,
		Content:          combineContents(responses),
		Confidence:       confidenceSum / float64(len(responses)),
		Reasoning:        fmt.Sprintf("synthesized from %d agent responses", len(responses)),
		Sources:          sources,
		CapabilitiesUsed: dedupeCapabilities(capsUsed),
		Metadata: map[string]any{
			"agent_count":       len(responses),
			"agent_confidences": perAgent,
		},
	})
	return resp
}

// combineContents renders each response as a labeled section so the reader
// can attribute every part of the combined answer.
func combineContents(responses []*domain.AgentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on analysis from %d specialized agents:\n\n", len(responses))
	for i, r := range responses {
		fmt.Fprintf(&b, "**%s** (confidence: %.2f):\n%s", r.AgentName, r.Confidence, r.Content)
		if i < len(responses)-1 {
			b.WriteString("\n\n")
		}
	}
	b.WriteString("\n\n*This response synthesizes insights from multiple specialized agents.*")
	return b.String()
}

func dedupeCapabilities(caps []domain.Capability) []domain.Capability {
	if len(caps) == 0 {
		return nil
	}
	seen := make(map[domain.Capability]struct{}, len(caps))
	out := make([]domain.Capability, 0, len(caps))
	for _, c := range caps {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
