package agent

import (
	"context"
	"fmt"
	"log/slog"

	"agentic-rag/internal/domain"
)

// academicIndicators signal a literature-oriented query the document search
// agent is well suited for.
var academicIndicators = []string{
	"paper",
	"papers",
	"study",
	"studies",
	"research",
	"publication",
	"literature",
	"journal",
	"author",
	"find",
	"search",
	"documents",
}

// DocumentSearch answers queries by searching the document corpus through
// the classic retrieval pipeline and reporting its findings with provenance.
type DocumentSearch struct {
	*Base
	scorer    *KeywordScorer
	retriever domain.ClassicRetriever
}

// NewDocumentSearch creates the document search agent.
func NewDocumentSearch(retriever domain.ClassicRetriever, logger *slog.Logger) *DocumentSearch {
	a := &DocumentSearch{
		Base: NewBase("DocumentSearchAgent", []domain.Capability{
			domain.CapabilityDocumentSearch,
			domain.CapabilityAcademicAnalysis,
		}, logger),
		scorer:    NewAdditiveScorer(academicIndicators, 0.2, 0.8),
		retriever: retriever,
	}
	a.scoreQuery = a.CanHandle
	return a
}

// CanHandle scores queries by academic indicators, at most 0.8.
func (a *DocumentSearch) CanHandle(_ context.Context, query string) (float64, error) {
	return a.scorer.Score(query), nil
}

// ProcessQuery retrieves matching documents and reports them.
func (a *DocumentSearch) ProcessQuery(ctx context.Context, query string, _ domain.QueryContext) (*domain.AgentResponse, error) {
	return a.track(ctx, func(ctx context.Context) (*domain.AgentResponse, error) {
		result, err := a.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, domain.WrapOp("DocumentSearch.ProcessQuery", err)
		}

		confidence := 0.75
		if len(result.Sources) == 0 {
			confidence = 0.3
		}
		return domain.NewAgentResponse(domain.AgentResponse{
			AgentID:          a.ID(),
			AgentName:        a.Name(),
			Content:          result.Answer,
			Confidence:       confidence,
			Reasoning:        fmt.Sprintf("retrieved %d sources from the document corpus", len(result.Sources)),
			Sources:          result.Sources,
			CapabilitiesUsed: []domain.Capability{domain.CapabilityDocumentSearch},
			Metadata: map[string]any{
				"query_type":          "document_search",
				"processing_strategy": "classic_retrieval",
			},
		})
	})
}

var _ domain.Agent = (*DocumentSearch)(nil)
