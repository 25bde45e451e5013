package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/domain"
)

func selectorWith(t *testing.T, threshold float64, agents ...*stubAgent) *Selector {
	t.Helper()
	r := NewRegistry(testLogger(), nil)
	for _, a := range agents {
		require.NoError(t, r.Register(a))
	}
	return NewSelector(r, threshold, testLogger())
}

func TestSelectorPicksHighestScore(t *testing.T) {
	s := selectorWith(t, 0.3,
		&stubAgent{name: "docsearch", score: 0.2},
		&stubAgent{name: "comparison", score: 0.85},
		&stubAgent{name: "synthesis", score: 0.4},
	)

	agent, decision := s.Select(context.Background(), "compare A and B")
	require.NotNil(t, agent)
	assert.Equal(t, "comparison", agent.Name())
	assert.Equal(t, "comparison", decision.SelectedAgent)
	assert.InDelta(t, 0.85, decision.Confidence, 1e-9)
	assert.False(t, decision.FallbackUsed)
	assert.Len(t, decision.AllScores, 3)
}

func TestSelectorTieBreakFirstRegistered(t *testing.T) {
	s := selectorWith(t, 0.3,
		&stubAgent{name: "second-best", score: 0.7},
		&stubAgent{name: "equal", score: 0.7},
	)

	agent, _ := s.Select(context.Background(), "anything")
	require.NotNil(t, agent)
	assert.Equal(t, "second-best", agent.Name())
}

func TestSelectorFallbackBelowThreshold(t *testing.T) {
	s := selectorWith(t, 0.6,
		&stubAgent{name: "weak", score: 0.4},
	)

	agent, decision := s.Select(context.Background(), "anything")
	assert.Nil(t, agent)
	assert.True(t, decision.FallbackUsed)
	assert.Empty(t, decision.SelectedAgent)
	assert.Contains(t, decision.Reasoning, "below threshold")
}

func TestSelectorEmptyRegistry(t *testing.T) {
	s := selectorWith(t, 0.5)

	agent, decision := s.Select(context.Background(), "anything")
	assert.Nil(t, agent)
	assert.True(t, decision.FallbackUsed)
	assert.Equal(t, "no agents registered", decision.Reasoning)
}

func TestSelectorIsolatesScoringFailures(t *testing.T) {
	s := selectorWith(t, 0.3,
		&stubAgent{name: "broken", scoreFn: func(string) (float64, error) {
			return 0, errors.New("scorer exploded")
		}},
		&stubAgent{name: "oversized", scoreFn: func(string) (float64, error) {
			return 3.5, nil
		}},
		&stubAgent{name: "healthy", score: 0.6},
	)

	agent, decision := s.Select(context.Background(), "anything")
	require.NotNil(t, agent)
	assert.Equal(t, "healthy", agent.Name())
	assert.Equal(t, 0.0, decision.AllScores["broken"])
	assert.Equal(t, 0.0, decision.AllScores["oversized"])
}

func TestSelectorIsolatesScoringPanic(t *testing.T) {
	s := selectorWith(t, 0.3,
		&stubAgent{name: "wild", scoreFn: func(string) (float64, error) {
			panic("nil map write")
		}},
		&stubAgent{name: "healthy", score: 0.6},
	)

	agent, decision := s.Select(context.Background(), "anything")
	require.NotNil(t, agent)
	assert.Equal(t, "healthy", agent.Name())
	assert.Equal(t, 0.0, decision.AllScores["wild"])
}

func TestSelectorCustomStrategy(t *testing.T) {
	s := selectorWith(t, 0.3,
		&stubAgent{name: "docsearch", score: 0.9},
		&stubAgent{name: "synthesis", score: 0.2},
	)

	// Score by name instead of CanHandle.
	s.UseStrategy(func(ctx context.Context, agent domain.Agent, query string) (float64, error) {
		if agent.Name() == "synthesis" {
			return 0.95, nil
		}
		return 0.1, nil
	})
	agent, _ := s.Select(context.Background(), "anything")
	require.NotNil(t, agent)
	assert.Equal(t, "synthesis", agent.Name())

	s.UseStrategy(nil)
	agent, _ = s.Select(context.Background(), "anything")
	require.NotNil(t, agent)
	assert.Equal(t, "docsearch", agent.Name())
}

func TestSelectorAdjustThreshold(t *testing.T) {
	s := selectorWith(t, 0.5, &stubAgent{name: "a", score: 0.55})

	require.NoError(t, s.AdjustThreshold(0.9))
	agent, decision := s.Select(context.Background(), "q")
	assert.Nil(t, agent)
	assert.True(t, decision.FallbackUsed)

	err := s.AdjustThreshold(1.5)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, 0.9, s.Threshold())

	err = s.AdjustThreshold(-0.1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestSelectorHistoryBounded(t *testing.T) {
	s := selectorWith(t, 0.3, &stubAgent{name: "a", score: 0.8})

	for i := 0; i < maxDecisionHistory+25; i++ {
		s.Select(context.Background(), "q")
	}
	assert.Len(t, s.History(), maxDecisionHistory)
}

func TestSelectorMetrics(t *testing.T) {
	s := selectorWith(t, 0.5,
		&stubAgent{name: "good", score: 0.8},
	)

	s.Select(context.Background(), "q1")
	s.Select(context.Background(), "q2")
	require.NoError(t, s.AdjustThreshold(0.9))
	s.Select(context.Background(), "q3")

	m := s.Metrics()
	assert.Equal(t, 3, m.TotalSelections)
	assert.Equal(t, 1, m.FallbackCount)
	assert.Equal(t, 2, m.ByAgent["good"])
	assert.InDelta(t, 0.8, m.AvgConfidence, 1e-9)
}

func TestScoreAll(t *testing.T) {
	s := selectorWith(t, 0.5,
		&stubAgent{name: "a", score: 0.2},
		&stubAgent{name: "b", score: 0.9},
	)

	scores := s.ScoreAll(context.Background(), "q")
	assert.Equal(t, map[string]float64{"a": 0.2, "b": 0.9}, scores)
	// ScoreAll is a read path: no decision is recorded.
	assert.Empty(t, s.History())
}
