package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentic-rag/internal/domain"
)

// maxDecisionHistory bounds the in-memory selection audit trail.
const maxDecisionHistory = 100

// defaultConfidenceThreshold is the minimum CanHandle score required to
// route a query to an agent instead of the fallback pipeline.
const defaultConfidenceThreshold = 0.5

// SelectorMetrics aggregates selection outcomes.
type SelectorMetrics struct {
	TotalSelections int            `json:"total_selections"`
	FallbackCount   int            `json:"fallback_count"`
	AvgConfidence   float64        `json:"avg_confidence"`
	ByAgent         map[string]int `json:"by_agent"`
}

// ScoringStrategy produces a relevance score in [0, 1] for an agent against
// a query. The default strategy asks each agent's CanHandle.
type ScoringStrategy func(ctx context.Context, agent domain.Agent, query string) (float64, error)

// Selector scores every registered agent against a query and picks the best
// one, falling back when nothing clears the confidence threshold.
type Selector struct {
	registry *Registry
	logger   *slog.Logger

	mu        sync.Mutex
	threshold float64
	strategy  ScoringStrategy
	history   []domain.SelectionDecision
	metrics   SelectorMetrics
}

// NewSelector creates a selector over registry. threshold <= 0 uses the default.
func NewSelector(registry *Registry, threshold float64, logger *slog.Logger) *Selector {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	return &Selector{
		registry:  registry,
		threshold: threshold,
		logger:    logger,
		metrics:   SelectorMetrics{ByAgent: make(map[string]int)},
	}
}

// Threshold returns the current confidence threshold.
func (s *Selector) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// AdjustThreshold sets a new confidence threshold. Values outside [0, 1]
// return ErrInvalidInput and leave the threshold unchanged.
func (s *Selector) AdjustThreshold(v float64) error {
	if v < 0 || v > 1 {
		return domain.NewSubSystemError("selector", "Selector.AdjustThreshold",
			domain.ErrInvalidInput, fmt.Sprintf("threshold %v", v))
	}
	s.mu.Lock()
	old := s.threshold
	s.threshold = v
	s.mu.Unlock()
	s.logger.Info("confidence threshold adjusted", "old", old, "new", v)
	return nil
}

// UseStrategy replaces the scoring strategy. Passing nil restores the
// default of asking each agent's CanHandle.
func (s *Selector) UseStrategy(strategy ScoringStrategy) {
	s.mu.Lock()
	s.strategy = strategy
	s.mu.Unlock()
}

// Select evaluates every registered agent against query and returns the best
// one plus the decision record. When no agent clears the threshold (or none
// is registered) the returned agent is nil and the decision is marked as a
// fallback; Select itself never fails for business reasons.
func (s *Selector) Select(ctx context.Context, query string) (domain.Agent, *domain.SelectionDecision) {
	start := time.Now()
	agents := s.registry.List()

	scores := make(map[string]float64, len(agents))
	var best domain.Agent
	bestScore := -1.0
	for _, agent := range agents {
		score := s.scoreAgent(ctx, agent, query)
		scores[agent.Name()] = score
		// Strict greater keeps the first-registered agent on ties.
		if score > bestScore {
			best = agent
			bestScore = score
		}
	}

	decision := &domain.SelectionDecision{
		Query:         query,
		AllScores:     scores,
		SelectionTime: time.Since(start),
		Timestamp:     time.Now(),
	}

	s.mu.Lock()
	threshold := s.threshold
	s.mu.Unlock()

	switch {
	case len(agents) == 0:
		decision.FallbackUsed = true
		decision.Reasoning = "no agents registered"
	case bestScore < threshold:
		decision.FallbackUsed = true
		decision.Confidence = bestScore
		decision.Reasoning = fmt.Sprintf("best score %.2f from %s below threshold %.2f",
			bestScore, best.Name(), threshold)
		best = nil
	default:
		decision.SelectedAgent = best.Name()
		decision.Confidence = bestScore
		decision.Reasoning = fmt.Sprintf("selected %s with confidence %.2f (threshold %.2f)",
			best.Name(), bestScore, threshold)
	}

	s.record(decision)
	s.logger.Debug("agent selection",
		"selected", decision.SelectedAgent,
		"confidence", decision.Confidence,
		"fallback", decision.FallbackUsed,
		"elapsed", decision.SelectionTime,
	)
	return best, decision
}

// ScoreAll evaluates every registered agent against query without recording
// a selection decision. Used by the orchestrator to find all agents relevant
// to a multi-part query.
func (s *Selector) ScoreAll(ctx context.Context, query string) map[string]float64 {
	agents := s.registry.List()
	scores := make(map[string]float64, len(agents))
	for _, agent := range agents {
		scores[agent.Name()] = s.scoreAgent(ctx, agent, query)
	}
	return scores
}

// scoreAgent isolates scoring failures: a panic, a scoring error, or an
// out-of-range score counts as 0.0 so one broken agent cannot poison
// selection.
func (s *Selector) scoreAgent(ctx context.Context, agent domain.Agent, query string) (result float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("agent scoring panicked",
				"agent", agent.Name(),
				"panic", r,
			)
			result = 0.0
		}
	}()

	s.mu.Lock()
	strategy := s.strategy
	s.mu.Unlock()

	var score float64
	var err error
	if strategy != nil {
		score, err = strategy(ctx, agent, query)
	} else {
		score, err = agent.CanHandle(ctx, query)
	}
	if err != nil {
		s.logger.Warn("agent scoring failed",
			"agent", agent.Name(),
			"error", err,
		)
		return 0.0
	}
	if score < 0 || score > 1 {
		s.logger.Warn("agent score out of range",
			"agent", agent.Name(),
			"score", score,
		)
		return 0.0
	}
	return score
}

func (s *Selector) record(d *domain.SelectionDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, *d)
	if len(s.history) > maxDecisionHistory {
		s.history = s.history[len(s.history)-maxDecisionHistory:]
	}

	m := &s.metrics
	m.TotalSelections++
	if d.FallbackUsed {
		m.FallbackCount++
	} else {
		m.ByAgent[d.SelectedAgent]++
	}
	// Incremental mean keeps this O(1) regardless of history trimming.
	m.AvgConfidence += (d.Confidence - m.AvgConfidence) / float64(m.TotalSelections)
}

// History returns a copy of the recent decisions, oldest first.
func (s *Selector) History() []domain.SelectionDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SelectionDecision, len(s.history))
	copy(out, s.history)
	return out
}

// Metrics returns a snapshot of the selection counters.
func (s *Selector) Metrics() SelectorMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.metrics
	out.ByAgent = make(map[string]int, len(s.metrics.ByAgent))
	for k, v := range s.metrics.ByAgent {
		out.ByAgent[k] = v
	}
	return out
}
