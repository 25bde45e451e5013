package orchestration

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"agentic-rag/internal/domain"
	"agentic-rag/internal/infra/tracer"
	"agentic-rag/internal/usecase/workflow"
)

// Result is the plain mapping returned to transport layers.
type Result map[string]any

// multiAgentMinScore is the relevance floor for including an agent in a
// multi-agent workflow.
const multiAgentMinScore = 0.5

// maxMultiAgents caps how many agents join one multi-agent workflow.
const maxMultiAgents = 3

// FallbackHandler produces an answer when no agent can serve a query.
// It may return a full result mapping or a bare answer string.
type FallbackHandler func(ctx context.Context, query string) (any, error)

// DecisionSink receives every selection decision, typically for a persistent
// audit trail. Implemented by the sqlite audit store.
type DecisionSink interface {
	RecordDecision(ctx context.Context, d domain.SelectionDecision) error
}

// Orchestrator is the facade in front of the agent subsystem. It selects an
// agent (or several), executes through the resilience layer, and always
// returns a usable result mapping.
type Orchestrator struct {
	registry *Registry
	selector *Selector
	balancer *LoadBalancer
	fallback *FallbackManager
	engine   *workflow.Engine
	monitor  *Monitor
	logger   *slog.Logger
	bus      domain.EventBus

	limiter         *rate.Limiter
	multiAgent      bool
	fallbackHandler FallbackHandler
	decisions       DecisionSink
}

// OrchestratorOptions configures optional orchestrator behavior.
type OrchestratorOptions struct {
	// MultiAgent enables parallel multi-agent workflows for queries that
	// look like they span several concerns.
	MultiAgent bool
	// RequestsPerMin throttles orchestration entry; 0 disables the limiter.
	RequestsPerMin float64
	Burst          int
	// FallbackHandler overrides the built-in empty-registry answer.
	FallbackHandler FallbackHandler
	// DecisionSink, when set, receives every selection decision.
	DecisionSink DecisionSink
}

// NewOrchestrator wires the orchestration facade. bus may be nil.
func NewOrchestrator(
	registry *Registry,
	selector *Selector,
	balancer *LoadBalancer,
	fallback *FallbackManager,
	engine *workflow.Engine,
	monitor *Monitor,
	opts OrchestratorOptions,
	logger *slog.Logger,
	bus domain.EventBus,
) *Orchestrator {
	var limiter *rate.Limiter
	if opts.RequestsPerMin > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMin/60.0), burst)
	}
	return &Orchestrator{
		registry:        registry,
		selector:        selector,
		balancer:        balancer,
		fallback:        fallback,
		engine:          engine,
		monitor:         monitor,
		logger:          logger,
		bus:             bus,
		limiter:         limiter,
		multiAgent:      opts.MultiAgent,
		fallbackHandler: opts.FallbackHandler,
		decisions:       opts.DecisionSink,
	}
}

// Orchestrate answers query through the agent subsystem. Business failures
// degrade to fallback answers; the only returned errors are context
// cancellation and rate-limit wait failures. The fallback decision wins over
// everything else: the multi-agent path is considered only once the selector
// has cleared the confidence threshold, and it is gated on how many agents
// score as relevant, not on surface features of the query text.
func (o *Orchestrator) Orchestrate(ctx context.Context, query string, qc domain.QueryContext) (Result, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.orchestrate")
	defer span.End()

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			err = domain.WrapOp("Orchestrator.Orchestrate", err)
			tracer.RecordError(span, err)
			return nil, err
		}
	}
	start := time.Now()
	o.publish(domain.EventQueryReceived, "")

	var result Result
	switch {
	case o.registry.Len() == 0:
		o.logger.Warn("no agents registered, using fallback handler")
		result = o.executeFallback(ctx, query, "no_agents_available")
		result["orchestration"] = o.orchestrationInfo(nil, false, start)

	default:
		agent, decision := o.selector.Select(ctx, query)
		o.recordDecision(ctx, decision)
		if agent == nil {
			result = o.executeFallback(ctx, query, "low_confidence")
			result["orchestration"] = o.orchestrationInfo(decision, false, start)
		} else if names := o.relevantAgents(ctx, query); o.multiAgent && len(names) >= 2 {
			if ok, reasons := workflow.DetectMultiAgentQuery(query); ok {
				o.logger.Debug("multi-part indicators in query", "reasons", reasons)
			}
			result = o.orchestrateMulti(ctx, query, qc, names)
			result["orchestration"] = o.orchestrationInfo(decision, true, start)
		} else {
			result = o.orchestrateSingle(ctx, agent, query, qc)
			result["orchestration"] = o.orchestrationInfo(decision, false, start)
		}
	}

	elapsed := time.Since(start)
	o.monitor.Record(PerformanceSample{
		AgentName: asString(result["agent_name"]),
		Operation: "orchestrate",
		Duration:  elapsed,
		Success:   !isFallbackResult(result),
	})
	o.publish(domain.EventQueryCompleted, asString(result["agent_name"]))
	span.SetAttributes(
		tracer.StringAttr("agent.name", asString(result["agent_name"])),
		tracer.FloatAttr("query.duration_ms", float64(elapsed.Milliseconds())),
	)
	tracer.SetOK(span)
	return result, nil
}

// recordDecision persists a selection decision to the configured sink. A sink
// failure never blocks the query path.
func (o *Orchestrator) recordDecision(ctx context.Context, decision *domain.SelectionDecision) {
	if o.decisions == nil || decision == nil {
		return
	}
	if err := o.decisions.RecordDecision(ctx, *decision); err != nil {
		o.logger.Warn("failed to record selection decision",
			"agent", decision.SelectedAgent,
			"error", err)
	}
}

// orchestrateSingle runs one agent through the load balancer and the
// fallback manager, so even the single-agent path is breaker-protected.
func (o *Orchestrator) orchestrateSingle(ctx context.Context, agent domain.Agent, query string, qc domain.QueryContext) Result {
	balanced, release, err := o.balancer.Acquire([]domain.Agent{agent})
	if err != nil {
		// Unreachable with one candidate, but degrade safely anyway.
		return o.executeFallback(ctx, query, "no_agents_available")
	}

	start := time.Now()
	resp := o.fallback.Execute(ctx, balanced, query, qc)
	release(!isFallback(resp), time.Since(start))

	o.monitor.Record(PerformanceSample{
		AgentName: balanced.Name(),
		Operation: "process_query",
		Duration:  time.Since(start),
		Success:   !isFallback(resp),
	})
	return responseToResult(resp)
}

// orchestrateMulti fans the query out to the named agents in parallel and
// synthesizes their answers.
func (o *Orchestrator) orchestrateMulti(ctx context.Context, query string, qc domain.QueryContext, names []string) Result {
	agents := make([]domain.Agent, 0, len(names))
	for _, name := range names {
		if agent, err := o.registry.Get(name); err == nil {
			agents = append(agents, agent)
		}
	}
	o.logger.Info("multi-agent workflow", "agents", names)

	responses := o.engine.ExecuteParallel(ctx, agents, query, qc)
	if len(responses) == 0 {
		// Every branch failed; fall back rather than synthesize nothing.
		return o.executeFallback(ctx, query, "agent_error")
	}
	return responseToResult(workflow.Synthesize(responses))
}

// relevantAgents returns up to maxMultiAgents agent names scoring at least
// multiAgentMinScore, best first. Ties keep registration order.
func (o *Orchestrator) relevantAgents(ctx context.Context, query string) []string {
	scores := o.selector.ScoreAll(ctx, query)

	var names []string
	for _, agent := range o.registry.List() {
		if scores[agent.Name()] >= multiAgentMinScore {
			names = append(names, agent.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return scores[names[i]] > scores[names[j]]
	})
	if len(names) > maxMultiAgents {
		names = names[:maxMultiAgents]
	}
	return names
}

// executeFallback produces a degraded result when no agent path is viable.
// Handler output is normalized: result mappings pass through, bare strings
// become the answer; both get fallback metadata stamped.
func (o *Orchestrator) executeFallback(ctx context.Context, query, reason string) Result {
	result := Result{
		"answer":     "The agent system is currently unavailable and no fallback is configured.",
		"confidence": 0.0,
		"agent_name": FallbackAgentName,
		"sources":    []domain.Source{},
	}

	if o.fallbackHandler != nil {
		out, err := o.fallbackHandler(ctx, query)
		if err != nil {
			o.logger.Error("fallback handler failed", "error", err)
		} else {
			switch v := out.(type) {
			case map[string]any:
				result = Result(v)
			case Result:
				result = v
			case string:
				result["answer"] = v
				result["confidence"] = 0.5
			default:
				o.logger.Warn("fallback handler returned unexpected type")
			}
		}
	}

	meta, ok := result["metadata"].(map[string]any)
	if !ok {
		meta = make(map[string]any, 2)
	}
	meta["fallback"] = true
	meta["fallback_reason"] = reason
	result["metadata"] = meta
	return result
}

func (o *Orchestrator) orchestrationInfo(decision *domain.SelectionDecision, multi bool, start time.Time) map[string]any {
	info := map[string]any{
		"multi_agent": multi,
		"elapsed_ms":  float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if decision != nil {
		info["decision"] = decision.Summary()
	}
	return info
}

// Health reports the orchestrator's moving parts for the health endpoint.
func (o *Orchestrator) Health() map[string]any {
	return map[string]any{
		"registry": o.registry.Stats(),
		"selector": o.selector.Metrics(),
		"balancer": o.balancer.Stats(),
		"fallback": o.fallback.Metrics(),
		"breakers": o.fallback.Breakers().States(),
		"global":   o.monitor.GlobalSummary(),
	}
}

func (o *Orchestrator) publish(evType domain.EventType, agentID string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(context.Background(), domain.Event{
		Type:      evType,
		Timestamp: time.Now(),
		AgentID:   agentID,
	})
}

// responseToResult flattens an agent response into the transport mapping.
func responseToResult(resp *domain.AgentResponse) Result {
	return Result{
		"answer":             resp.Content,
		"confidence":         resp.Confidence,
		"agent_name":         resp.AgentName,
		"sources":            resp.Sources,
		"metadata":           resp.Metadata,
		"processing_time_ms": float64(resp.ProcessingTime.Microseconds()) / 1000.0,
	}
}

func isFallback(resp *domain.AgentResponse) bool {
	if resp == nil || resp.Metadata == nil {
		return true
	}
	v, _ := resp.Metadata["is_fallback"].(bool)
	return v
}

func isFallbackResult(r Result) bool {
	meta, ok := r["metadata"].(map[string]any)
	if !ok {
		return false
	}
	if v, _ := meta["fallback"].(bool); v {
		return true
	}
	v, _ := meta["is_fallback"].(bool)
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
