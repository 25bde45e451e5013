package domain

import "context"

// RetrievalResult is what the classic RAG pipeline returns for a query.
type RetrievalResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// ClassicRetriever is the non-agentic RAG pipeline used as the safety net
// when agent execution fails. Implementations must honor ctx cancellation.
type ClassicRetriever interface {
	Retrieve(ctx context.Context, query string) (*RetrievalResult, error)
}
