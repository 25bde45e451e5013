package orchestration

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"agentic-rag/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAgent is a scriptable agent for orchestration tests.
type stubAgent struct {
	name    string
	caps    []domain.Capability
	score   float64
	scoreFn func(query string) (float64, error)

	reply   string
	conf    float64
	err     error
	delay   time.Duration
	calls   atomic.Int64
	process func(ctx context.Context, query string, qc domain.QueryContext) (*domain.AgentResponse, error)
}

func (a *stubAgent) ID() string   { return a.name + "-01" }
func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Capabilities() []domain.Capability {
	if len(a.caps) == 0 {
		return []domain.Capability{domain.CapabilityDocumentSearch}
	}
	return a.caps
}

func (a *stubAgent) CanHandle(_ context.Context, query string) (float64, error) {
	if a.scoreFn != nil {
		return a.scoreFn(query)
	}
	return a.score, nil
}

func (a *stubAgent) ProcessQuery(ctx context.Context, query string, qc domain.QueryContext) (*domain.AgentResponse, error) {
	a.calls.Add(1)
	if a.process != nil {
		return a.process(ctx, query, qc)
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	content := a.reply
	if content == "" {
		content = "answer from " + a.name
	}
	conf := a.conf
	if conf == 0 {
		conf = 0.9
	}
	return domain.NewAgentResponse(domain.AgentResponse{
		AgentID:    a.ID(),
		AgentName:  a.name,
		Content:    content,
		Confidence: conf,
	})
}

func (a *stubAgent) HealthCheck(ctx context.Context) domain.HealthStatus {
	score, err := a.CanHandle(ctx, "health check")
	return domain.HealthStatus{
		Healthy:   err == nil && score >= 0 && score <= 1,
		CheckedAt: time.Now(),
	}
}

func (a *stubAgent) Status() domain.AgentStatusReport {
	return domain.AgentStatusReport{
		ID:           a.ID(),
		Name:         a.name,
		State:        domain.StateIdle,
		Capabilities: a.Capabilities(),
	}
}

// stubRetriever is a scriptable classic RAG pipeline.
type stubRetriever struct {
	answer string
	err    error
	calls  atomic.Int64
}

func (r *stubRetriever) Retrieve(_ context.Context, query string) (*domain.RetrievalResult, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RetrievalResult{
		Answer:  r.answer,
		Sources: []domain.Source{{"title": "classic source"}},
	}, nil
}
