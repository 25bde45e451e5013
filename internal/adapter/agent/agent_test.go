package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRetriever struct {
	answer  string
	sources []domain.Source
	err     error
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string) (*domain.RetrievalResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RetrievalResult{Answer: r.answer, Sources: r.sources}, nil
}

func TestBaseHealthCheckHealthy(t *testing.T) {
	a := NewDocumentSearch(&fakeRetriever{}, testLogger())

	hs := a.HealthCheck(context.Background())
	assert.True(t, hs.Healthy)
	assert.False(t, hs.CheckedAt.IsZero())
}

func TestBaseHealthCheckNeverPanics(t *testing.T) {
	b := NewBase("BrokenAgent", nil, testLogger())
	b.scoreQuery = func(context.Context, string) (float64, error) {
		panic("scorer blew up")
	}

	hs := b.HealthCheck(context.Background())
	assert.False(t, hs.Healthy)
	assert.Contains(t, hs.Detail, "scorer blew up")
}

func TestBaseHealthCheckScoringError(t *testing.T) {
	b := NewBase("BrokenAgent", nil, testLogger())
	b.scoreQuery = func(context.Context, string) (float64, error) {
		return 0, errors.New("index offline")
	}

	hs := b.HealthCheck(context.Background())
	assert.False(t, hs.Healthy)
	assert.Contains(t, hs.Detail, "index offline")
}

func TestBaseIDHasULIDSuffix(t *testing.T) {
	a := NewDocumentSearch(&fakeRetriever{}, testLogger())
	b := NewDocumentSearch(&fakeRetriever{}, testLogger())

	assert.True(t, strings.HasPrefix(a.ID(), "DocumentSearchAgent-"))
	assert.NotEqual(t, a.ID(), b.ID(), "instances must get distinct IDs")
}

func TestBaseStatsRecordedOncePerQuery(t *testing.T) {
	a := NewDocumentSearch(&fakeRetriever{answer: "found", sources: []domain.Source{{"title": "p"}}}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "find papers", domain.QueryContext{})
	require.NoError(t, err)

	stats := a.Status().Stats
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 0, stats.FailureCount)
	assert.InDelta(t, 0.75, stats.AvgConfidence, 1e-9)
}

func TestBaseRecordsFailures(t *testing.T) {
	a := NewDocumentSearch(&fakeRetriever{err: errors.New("store offline")}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "find papers", domain.QueryContext{})
	require.Error(t, err)

	status := a.Status()
	assert.Equal(t, domain.StateError, status.State)
	assert.Equal(t, 1, status.Stats.FailureCount)
	assert.Contains(t, status.Stats.LastError, "store offline")
	assert.Equal(t, 0.0, status.Stats.SuccessRate())
}

func TestDocumentSearchScoring(t *testing.T) {
	a := NewDocumentSearch(&fakeRetriever{}, testLogger())

	score, err := a.CanHandle(context.Background(), "find research papers about transformers")
	require.NoError(t, err)
	// "find", "research", "papers" -> 3 hits but also "paper" substring: capped anyway.
	assert.InDelta(t, 0.8, score, 1e-9)

	score, err = a.CanHandle(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestComparisonScoring(t *testing.T) {
	a := NewComparison(&fakeRetriever{}, testLogger())

	score, err := a.CanHandle(context.Background(), "compare the differences between X and Y")
	require.NoError(t, err)
	// "compare", "difference", "differences" -> 0.6.
	assert.InDelta(t, 0.6, score, 1e-9)

	score, err = a.CanHandle(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "empty query scores exactly zero")

	score, err = a.CanHandle(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestComparisonResponseShape(t *testing.T) {
	a := NewComparison(&fakeRetriever{
		answer:  "X is faster, Y is cheaper",
		sources: []domain.Source{{"title": "bench"}},
	}, testLogger())

	resp, err := a.ProcessQuery(context.Background(), "compare X and Y", domain.QueryContext{})
	require.NoError(t, err)

	assert.Equal(t, "ComparisonAgent", resp.AgentName)
	assert.Contains(t, resp.Content, "Comparison analysis")
	assert.Contains(t, resp.Content, "X is faster, Y is cheaper")
	assert.Equal(t, "comparison", resp.Metadata["query_type"])
	assert.Equal(t, 1, resp.Metadata["source_count"])
	assert.Greater(t, int64(resp.ProcessingTime), int64(0))
}

func TestSynthesisUsesPriorResponses(t *testing.T) {
	a := NewSynthesis(&fakeRetriever{answer: "overview of the field"}, testLogger())

	prior, err := domain.NewAgentResponse(domain.AgentResponse{
		AgentID:    "docsearch-01",
		AgentName:  "DocumentSearchAgent",
		Content:    "three relevant papers found",
		Confidence: 0.8,
		Sources:    []domain.Source{{"title": "p1"}},
	})
	require.NoError(t, err)

	resp, err := a.ProcessQuery(context.Background(), "summarize the state of the art",
		domain.QueryContext{PreviousResponses: []*domain.AgentResponse{prior}})
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "overview of the field")
	assert.Contains(t, resp.Content, "DocumentSearchAgent")
	assert.Equal(t, 1, resp.Metadata["prior_responses"])
	assert.Len(t, resp.Sources, 1, "prior sources carried through")
}

func TestSynthesisScoringProportional(t *testing.T) {
	a := NewSynthesis(&fakeRetriever{}, testLogger())

	score, err := a.CanHandle(context.Background(), "give me an overview and summary of the field")
	require.NoError(t, err)
	// "overview" + "summary" over 9 keywords.
	assert.InDelta(t, 2.0/9.0, score, 1e-9)
}

func TestKeywordScorerCaps(t *testing.T) {
	s := NewAdditiveScorer([]string{"a", "b", "c", "d", "e", "f"}, 0.2, 1.0)
	assert.InDelta(t, 1.0, s.Score("a b c d e f"), 1e-9)

	p := NewProportionalScorer([]string{"x", "y"}, 0)
	assert.InDelta(t, 0.8, p.Score("x y"), 1e-9, "default cap holds proportional scores at 0.8")
}
