// Package workflow runs multi-agent executions: sequential chains that feed
// each agent the results of the previous ones, parallel fan-outs over
// independent agents, and synthesis of the collected responses into one
// answer.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agentic-rag/internal/domain"
	"agentic-rag/internal/infra/tracer"
	"agentic-rag/internal/usecase/resilience"
)

const (
	defaultAgentTimeout = 30 * time.Second

	// latencyWindow bounds the per-mode latency sample buffers.
	latencyWindow = 1000
)

// Engine coordinates multi-agent workflow execution. A shared breaker group
// protects the agents so failures seen here and in single-agent execution
// trip the same circuits.
type Engine struct {
	breakers *resilience.BreakerGroup
	timeout  time.Duration
	logger   *slog.Logger
	bus      domain.EventBus

	mu        sync.Mutex
	latencies map[string][]time.Duration
}

// NewEngine creates a workflow engine. timeout <= 0 uses the default
// per-agent limit; bus may be nil.
func NewEngine(breakers *resilience.BreakerGroup, timeout time.Duration, logger *slog.Logger, bus domain.EventBus) *Engine {
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	return &Engine{
		breakers:  breakers,
		timeout:   timeout,
		logger:    logger,
		bus:       bus,
		latencies: make(map[string][]time.Duration),
	}
}

// ExecuteSequential runs the agents one after another. Each successful
// response is appended to the query context handed to the next agent, so
// later agents can build on earlier results. Failed agents are logged and
// skipped; the chain never aborts.
func (e *Engine) ExecuteSequential(ctx context.Context, agents []domain.Agent, query string, qc domain.QueryContext) []*domain.AgentResponse {
	start := time.Now()
	e.publishWorkflow(domain.EventWorkflowStarted, "sequential", len(agents))

	responses := make([]*domain.AgentResponse, 0, len(agents))
	for _, agent := range agents {
		resp, err := e.executeAgent(ctx, agent, query, qc)
		if err != nil {
			e.logger.Warn("sequential step failed, skipping agent",
				"agent", agent.Name(),
				"error", err,
			)
			continue
		}
		responses = append(responses, resp)
		qc.PreviousResponses = append(qc.PreviousResponses, resp)
	}

	e.recordLatency("sequential", time.Since(start))
	e.publishWorkflow(domain.EventWorkflowCompleted, "sequential", len(responses))
	return responses
}

// ExecuteParallel fans the query out to all agents concurrently and returns
// the successful responses in the same order as the input agents. Each agent
// gets an isolated clone of the query context.
func (e *Engine) ExecuteParallel(ctx context.Context, agents []domain.Agent, query string, qc domain.QueryContext) []*domain.AgentResponse {
	start := time.Now()
	e.publishWorkflow(domain.EventWorkflowStarted, "parallel", len(agents))

	slots := make([]*domain.AgentResponse, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			resp, err := e.executeAgent(gctx, agent, query, qc.Clone())
			if err != nil {
				e.logger.Warn("parallel branch failed, dropping agent",
					"agent", agent.Name(),
					"error", err,
				)
				return nil // branch failures never cancel siblings
			}
			slots[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	responses := make([]*domain.AgentResponse, 0, len(agents))
	for _, resp := range slots {
		if resp != nil {
			responses = append(responses, resp)
		}
	}

	e.recordLatency("parallel", time.Since(start))
	e.publishWorkflow(domain.EventWorkflowCompleted, "parallel", len(responses))
	return responses
}

// executeAgent runs one agent behind its breaker with the per-agent timeout.
// A panic inside the agent is converted to an error so one misbehaving agent
// cannot take down a whole workflow.
func (e *Engine) executeAgent(ctx context.Context, agent domain.Agent, query string, qc domain.QueryContext) (*domain.AgentResponse, error) {
	ctx, span := tracer.StartAgentSpan(ctx, "workflow.agent_call", agent.Name())
	breaker := e.breakers.Get(agent.Name())
	resp, err := breaker.Execute(func() (resp *domain.AgentResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp = nil
				err = domain.NewDomainError("Engine.executeAgent", domain.ErrAgentPanic, fmt.Sprintf("%v", r))
			}
		}()

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err = agent.ProcessQuery(callCtx, query, qc)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, domain.NewAgentTimeout(agent.ID(), query, e.timeout)
			}
			return nil, err
		}
		return resp, nil
	})
	tracer.End(span, err)
	return resp, err
}

func (e *Engine) recordLatency(mode string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	samples := append(e.latencies[mode], d)
	if len(samples) > latencyWindow {
		samples = samples[len(samples)-latencyWindow:]
	}
	e.latencies[mode] = samples
}

// LatencyStats summarizes recorded workflow latencies for one mode.
type LatencyStats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Latency returns percentile statistics for a workflow mode
// ("sequential" or "parallel").
func (e *Engine) Latency(mode string) LatencyStats {
	e.mu.Lock()
	samples := make([]time.Duration, len(e.latencies[mode]))
	copy(samples, e.latencies[mode])
	e.mu.Unlock()

	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := samples
	sortDurations(sorted)
	return LatencyStats{
		Count: len(sorted),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

func (e *Engine) publishWorkflow(evType domain.EventType, mode string, agents int) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"mode": mode, "agents": agents})
	e.bus.Publish(context.Background(), domain.Event{
		Type:      evType,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
