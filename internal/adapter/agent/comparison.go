package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agentic-rag/internal/domain"
)

// comparisonKeywords signal that the user wants two or more things weighed
// against each other.
var comparisonKeywords = []string{
	"compare",
	"comparison",
	"versus",
	"vs",
	"difference",
	"differences",
	"contrast",
	"better",
	"worse",
	"advantages",
	"disadvantages",
	"trade-off",
	"tradeoffs",
}

// Comparison answers comparative queries by retrieving evidence for the
// compared subjects and structuring the answer around their differences.
type Comparison struct {
	*Base
	scorer    *KeywordScorer
	retriever domain.ClassicRetriever
}

// NewComparison creates the comparison analysis agent.
func NewComparison(retriever domain.ClassicRetriever, logger *slog.Logger) *Comparison {
	a := &Comparison{
		Base: NewBase("ComparisonAgent", []domain.Capability{
			domain.CapabilityComparisonAnalysis,
			domain.CapabilityMultiStepReasoning,
		}, logger),
		scorer:    NewAdditiveScorer(comparisonKeywords, 0.2, 1.0),
		retriever: retriever,
	}
	a.scoreQuery = a.CanHandle
	return a
}

// CanHandle scores 0.2 per comparison keyword, capped at 1.0. Empty queries
// score exactly 0.
func (a *Comparison) CanHandle(_ context.Context, query string) (float64, error) {
	return a.scorer.Score(query), nil
}

// ProcessQuery retrieves evidence and frames it as a comparison.
func (a *Comparison) ProcessQuery(ctx context.Context, query string, _ domain.QueryContext) (*domain.AgentResponse, error) {
	return a.track(ctx, func(ctx context.Context) (*domain.AgentResponse, error) {
		result, err := a.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, domain.WrapOp("Comparison.ProcessQuery", err)
		}

		var b strings.Builder
		b.WriteString("Comparison analysis:\n\n")
		b.WriteString(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Fprintf(&b, "\n\nThis comparison draws on %d sources.", len(result.Sources))
		}

		return domain.NewAgentResponse(domain.AgentResponse{
			AgentID:          a.ID(),
			AgentName:        a.Name(),
			Content:          b.String(),
			Confidence:       0.8,
			Reasoning:        "structured comparative analysis over retrieved evidence",
			Sources:          result.Sources,
			CapabilitiesUsed: []domain.Capability{domain.CapabilityComparisonAnalysis},
			Metadata: map[string]any{
				"query_type":          "comparison",
				"processing_strategy": "comparative_analysis",
			},
		})
	})
}

var _ domain.Agent = (*Comparison)(nil)
