package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentic-rag/internal/domain"
	"agentic-rag/internal/infra/tracer"
	"agentic-rag/internal/usecase/resilience"
)

// Fallback reasons reported in response metadata and counters.
const (
	ReasonCircuitOpen = "circuit_breaker_open"
	ReasonTimeout     = "timeout"
	ReasonAgentError  = "agent_error"
	ReasonUnexpected  = "unexpected_error"
)

// FallbackAgentName labels responses produced by the classic RAG safety net.
const FallbackAgentName = "ClassicRAGFallback"

const defaultAgentTimeout = 30 * time.Second

// FallbackMetrics counts fallback outcomes. Counters only ever increase.
type FallbackMetrics struct {
	TotalFallbacks     int            `json:"total_fallbacks"`
	ByAgent            map[string]int `json:"by_agent"`
	ByReason           map[string]int `json:"by_reason"`
	BreakerActivations int            `json:"breaker_activations"`
}

// FallbackManager executes agent queries behind a circuit breaker and retry
// budget, degrading to the classic RAG pipeline when the agent path fails.
// Business failures never surface as errors: the caller always gets a
// response, possibly a low-confidence emergency one.
type FallbackManager struct {
	breakers  *resilience.BreakerGroup
	retrier   *resilience.Retrier
	retriever domain.ClassicRetriever // may be nil
	timeout   time.Duration
	logger    *slog.Logger
	bus       domain.EventBus

	mu      sync.Mutex
	metrics FallbackMetrics
}

// NewFallbackManager wires the resilience primitives around agent execution.
// retriever and bus may be nil; timeout <= 0 uses the default per-call limit.
func NewFallbackManager(
	breakers *resilience.BreakerGroup,
	retrier *resilience.Retrier,
	retriever domain.ClassicRetriever,
	timeout time.Duration,
	logger *slog.Logger,
	bus domain.EventBus,
) *FallbackManager {
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	return &FallbackManager{
		breakers:  breakers,
		retrier:   retrier,
		retriever: retriever,
		timeout:   timeout,
		logger:    logger,
		bus:       bus,
		metrics: FallbackMetrics{
			ByAgent:  make(map[string]int),
			ByReason: make(map[string]int),
		},
	}
}

// Execute runs query on agent with retry, timeout and breaker protection.
// On any failure it returns the fallback response for the recorded reason.
func (f *FallbackManager) Execute(ctx context.Context, agent domain.Agent, query string, qc domain.QueryContext) *domain.AgentResponse {
	name := agent.Name()
	ctx, span := tracer.StartAgentSpan(ctx, "fallback.execute", name)
	defer span.End()
	breaker := f.breakers.Get(name)

	if !breaker.Allow() {
		f.logger.Warn("circuit open, skipping agent", "agent", name)
		f.count(name, ReasonCircuitOpen, true)
		span.SetAttributes(tracer.StringAttr("fallback.reason", ReasonCircuitOpen))
		return f.fallbackResponse(ctx, name, query, ReasonCircuitOpen)
	}

	resp, err := f.retrier.Do(ctx, "agent:"+name, func(ctx context.Context) (*domain.AgentResponse, error) {
		return breaker.Execute(func() (resp *domain.AgentResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = domain.NewDomainError("FallbackManager.Execute",
						domain.ErrAgentPanic, fmt.Sprintf("%v", r))
				}
			}()
			callCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			resp, err = agent.ProcessQuery(callCtx, query, qc)
			if err == nil {
				return resp, nil
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, domain.NewAgentTimeout(agent.ID(), query, f.timeout)
			}
			return nil, err
		})
	})
	if err == nil {
		tracer.SetOK(span)
		return resp
	}

	reason := classifyFailure(err)
	f.logger.Warn("agent execution failed, falling back",
		"agent", name,
		"reason", reason,
		"error", err,
	)
	tracer.RecordError(span, err)
	span.SetAttributes(tracer.StringAttr("fallback.reason", reason))
	f.count(name, reason, errors.Is(err, domain.ErrCircuitOpen))
	return f.fallbackResponse(ctx, name, query, reason)
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, domain.ErrAgentPanic):
		return ReasonUnexpected
	default:
		return ReasonAgentError
	}
}

// fallbackResponse builds the degraded answer for a failed agent path.
// With a working retriever the answer comes from the classic pipeline at
// confidence 0.7; without one an emergency canned answer is returned at 0.1;
// if the retriever itself fails, a last-resort answer at 0.0.
func (f *FallbackManager) fallbackResponse(ctx context.Context, failedAgent, query, reason string) *domain.AgentResponse {
	meta := map[string]any{
		"is_fallback":     true,
		"fallback_reason": reason,
		"failed_agent":    failedAgent,
	}

	if f.retriever == nil {
		meta["is_emergency"] = true
		resp, _ := domain.NewAgentResponse(domain.AgentResponse{
			AgentID:    FallbackAgentName,
			AgentName:  FallbackAgentName,
			Content:    "I'm temporarily unable to process your query through the full pipeline. Please try again shortly.",
			Confidence: 0.1,
			Reasoning:  "no classic retriever configured",
			Metadata:   meta,
		})
		return resp
	}

	result, err := f.retriever.Retrieve(ctx, query)
	if err != nil {
		f.logger.Error("classic retrieval failed during fallback",
			"agent", failedAgent,
			"error", err,
		)
		meta["is_last_resort"] = true
		resp, _ := domain.NewAgentResponse(domain.AgentResponse{
			AgentID:    FallbackAgentName,
			AgentName:  FallbackAgentName,
			Content:    "I was unable to process your query at this time. Please try again later.",
			Confidence: 0.0,
			Reasoning:  "classic retrieval failed: " + err.Error(),
			Metadata:   meta,
		})
		return resp
	}

	resp, _ := domain.NewAgentResponse(domain.AgentResponse{
		AgentID:    FallbackAgentName,
		AgentName:  FallbackAgentName,
		Content:    result.Answer,
		Confidence: 0.7,
		Reasoning:  "classic RAG pipeline answer after agent failure",
		Sources:    result.Sources,
		Metadata:   meta,
	})
	return resp
}

func (f *FallbackManager) count(agent, reason string, breakerHit bool) {
	f.mu.Lock()
	f.metrics.TotalFallbacks++
	f.metrics.ByAgent[agent]++
	f.metrics.ByReason[reason]++
	if breakerHit {
		f.metrics.BreakerActivations++
	}
	f.mu.Unlock()

	if f.bus != nil {
		payload, _ := json.Marshal(map[string]string{"agent": agent, "reason": reason})
		f.bus.Publish(context.Background(), domain.Event{
			Type:      domain.EventFallbackTriggered,
			Timestamp: time.Now(),
			AgentID:   agent,
			Payload:   payload,
		})
	}
}

// Metrics returns a copy of the fallback counters.
func (f *FallbackManager) Metrics() FallbackMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := FallbackMetrics{
		TotalFallbacks:     f.metrics.TotalFallbacks,
		BreakerActivations: f.metrics.BreakerActivations,
		ByAgent:            make(map[string]int, len(f.metrics.ByAgent)),
		ByReason:           make(map[string]int, len(f.metrics.ByReason)),
	}
	for k, v := range f.metrics.ByAgent {
		out.ByAgent[k] = v
	}
	for k, v := range f.metrics.ByReason {
		out.ByReason[k] = v
	}
	return out
}

// Breakers exposes the shared breaker group for health reporting.
func (f *FallbackManager) Breakers() *resilience.BreakerGroup {
	return f.breakers
}
