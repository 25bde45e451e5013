// Package agent contains the concrete agents exposed to the orchestrator:
// document search, comparison analysis and synthesis, all built on a shared
// base that owns identity, state and statistics bookkeeping.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentic-rag/internal/domain"
)

// healthCheckQuery is the benign input HealthCheck scores agents against.
const healthCheckQuery = "health check"

// Base carries the identity, lifecycle state and statistics shared by every
// agent implementation. Concrete agents embed it and run their work through
// track so statistics are recorded exactly once per query.
type Base struct {
	id     string
	name   string
	caps   []domain.Capability
	logger *slog.Logger

	// scoreQuery is the outer agent's CanHandle, wired in by each
	// constructor so HealthCheck exercises the real scoring path.
	scoreQuery func(ctx context.Context, query string) (float64, error)

	mu    sync.Mutex
	state domain.AgentState
	stats domain.AgentStats
}

// NewBase creates the shared agent core. The agent ID is the name plus a
// ULID suffix so two instances of the same agent type stay distinguishable.
func NewBase(name string, caps []domain.Capability, logger *slog.Logger) *Base {
	return &Base{
		id:     name + "-" + ulid.Make().String(),
		name:   name,
		caps:   caps,
		logger: logger.With("agent", name),
		state:  domain.StateIdle,
	}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Name() string { return b.name }

func (b *Base) Capabilities() []domain.Capability {
	out := make([]domain.Capability, len(b.caps))
	copy(out, b.caps)
	return out
}

// Status returns a snapshot of the agent's state and statistics.
func (b *Base) Status() domain.AgentStatusReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.AgentStatusReport{
		ID:           b.id,
		Name:         b.name,
		State:        b.state,
		Capabilities: b.Capabilities(),
		Stats:        b.stats,
	}
}

// HealthCheck scores a benign query through the agent's own CanHandle. It
// never panics: a scoring panic, error or out-of-range score reports the
// agent unhealthy instead.
func (b *Base) HealthCheck(ctx context.Context) (hs domain.HealthStatus) {
	hs.CheckedAt = time.Now()
	defer func() {
		if r := recover(); r != nil {
			hs.Healthy = false
			hs.Detail = fmt.Sprintf("health check panic: %v", r)
		}
	}()

	if b.scoreQuery == nil {
		hs.Healthy = true
		return hs
	}
	score, err := b.scoreQuery(ctx, healthCheckQuery)
	if err != nil {
		hs.Detail = fmt.Sprintf("scoring error: %v", err)
		return hs
	}
	if score < 0 || score > 1 {
		hs.Detail = fmt.Sprintf("score %v out of range", score)
		return hs
	}
	hs.Healthy = true
	return hs
}

// track runs fn with state transitions and exactly-once stats recording.
// On success it stamps the measured processing time onto the response.
func (b *Base) track(ctx context.Context, fn func(ctx context.Context) (*domain.AgentResponse, error)) (*domain.AgentResponse, error) {
	b.setState(domain.StateThinking)
	start := time.Now()

	resp, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		b.recordFailure(err, elapsed)
		b.setState(domain.StateError)
		return nil, err
	}
	resp.ProcessingTime = elapsed
	b.recordSuccess(resp.Confidence, elapsed)
	b.setState(domain.StateIdle)
	return resp, nil
}

func (b *Base) setState(s domain.AgentState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Base) recordSuccess(confidence float64, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.stats
	s.TotalQueries++
	s.SuccessCount++
	n := time.Duration(s.TotalQueries)
	s.AvgResponseTime += (elapsed - s.AvgResponseTime) / n
	s.AvgConfidence += (confidence - s.AvgConfidence) / float64(s.TotalQueries)
	s.LastActive = time.Now()
}

func (b *Base) recordFailure(err error, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.stats
	s.TotalQueries++
	s.FailureCount++
	n := time.Duration(s.TotalQueries)
	s.AvgResponseTime += (elapsed - s.AvgResponseTime) / n
	s.AvgConfidence += (0 - s.AvgConfidence) / float64(s.TotalQueries)
	s.LastError = err.Error()
	s.LastActive = time.Now()
}
