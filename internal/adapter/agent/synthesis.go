package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agentic-rag/internal/domain"
)

var synthesisKeywords = []string{
	"synthesize",
	"summarize",
	"summary",
	"overview",
	"state of the art",
	"survey",
	"review",
	"consolidate",
	"key findings",
}

// Synthesis condenses retrieved material, and any responses accumulated
// earlier in a workflow, into a single consolidated answer.
type Synthesis struct {
	*Base
	scorer    *KeywordScorer
	retriever domain.ClassicRetriever
}

// NewSynthesis creates the synthesis agent.
func NewSynthesis(retriever domain.ClassicRetriever, logger *slog.Logger) *Synthesis {
	a := &Synthesis{
		Base: NewBase("SynthesisAgent", []domain.Capability{
			domain.CapabilityInformationSynthesis,
			domain.CapabilityStateOfArtSynthesis,
			domain.CapabilityLiteratureReview,
		}, logger),
		scorer:    NewProportionalScorer(synthesisKeywords, 0.8),
		retriever: retriever,
	}
	a.scoreQuery = a.CanHandle
	return a
}

// CanHandle scores proportionally to matched synthesis keywords, at most 0.8.
func (a *Synthesis) CanHandle(_ context.Context, query string) (float64, error) {
	return a.scorer.Score(query), nil
}

// ProcessQuery consolidates retrieval output with prior workflow responses.
func (a *Synthesis) ProcessQuery(ctx context.Context, query string, qc domain.QueryContext) (*domain.AgentResponse, error) {
	return a.track(ctx, func(ctx context.Context) (*domain.AgentResponse, error) {
		result, err := a.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, domain.WrapOp("Synthesis.ProcessQuery", err)
		}

		var b strings.Builder
		b.WriteString(result.Answer)
		if n := len(qc.PreviousResponses); n > 0 {
			fmt.Fprintf(&b, "\n\nIncorporating findings from %d earlier analyses:\n", n)
			for _, prev := range qc.PreviousResponses {
				fmt.Fprintf(&b, "- %s: %s\n", prev.AgentName, firstLine(prev.Content))
			}
		}

		sources := result.Sources
		for _, prev := range qc.PreviousResponses {
			sources = append(sources, prev.Sources...)
		}

		return domain.NewAgentResponse(domain.AgentResponse{
			AgentID:          a.ID(),
			AgentName:        a.Name(),
			Content:          b.String(),
			Confidence:       0.7,
			Reasoning:        "consolidated retrieval output with prior workflow context",
			Sources:          sources,
			CapabilitiesUsed: []domain.Capability{domain.CapabilityInformationSynthesis},
			Metadata: map[string]any{
				"query_type":          "synthesis",
				"processing_strategy": "consolidation",
				"prior_responses":     len(qc.PreviousResponses),
			},
		})
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ domain.Agent = (*Synthesis)(nil)
