// Package orchestration coordinates the agent fleet: registration, capability
// based selection, load balancing, fallback chaining and the orchestrator
// facade that ties them together.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentic-rag/internal/domain"
)

// maxMessageHistory bounds the in-memory inter-agent message log.
const maxMessageHistory = 256

// Registry holds all registered agents, indexed by name and capability.
// Iteration order is registration order, which keeps selection tie-breaks
// deterministic.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]domain.Agent
	order    []string
	byCap    map[domain.Capability][]string
	messages []domain.AgentMessage

	logger *slog.Logger
	bus    domain.EventBus
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(logger *slog.Logger, bus domain.EventBus) *Registry {
	return &Registry{
		agents: make(map[string]domain.Agent),
		byCap:  make(map[domain.Capability][]string),
		logger: logger,
		bus:    bus,
	}
}

// Register adds an agent under its name. Returns ErrDuplicate if an agent
// with the same name is already registered.
func (r *Registry) Register(agent domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.agents[name]; exists {
		return domain.NewSubSystemError("registry", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.agents[name] = agent
	r.order = append(r.order, name)
	for _, cap := range agent.Capabilities() {
		r.byCap[cap] = append(r.byCap[cap], name)
	}
	r.logger.Info("agent registered",
		"agent_id", agent.ID(),
		"name", name,
		"capabilities", agent.Capabilities(),
	)
	r.publish(domain.EventAgentRegistered, agent.ID(), map[string]string{"name": name})
	return nil
}

// Unregister removes an agent by name. Returns ErrNotFound if not present.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[name]
	if !ok {
		return domain.NewSubSystemError("registry", "Registry.Unregister", domain.ErrNotFound, name)
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for cap, names := range r.byCap {
		for i, n := range names {
			if n == name {
				r.byCap[cap] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
	r.logger.Info("agent removed", "name", name)
	r.publish(domain.EventAgentUnregistered, agent.ID(), map[string]string{"name": name})
	return nil
}

// Get returns the agent registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, domain.NewSubSystemError("registry", "Registry.Get", domain.ErrNotFound, name)
	}
	return agent, nil
}

// GetByCapability returns the agents providing cap, in registration order.
func (r *Registry) GetByCapability(cap domain.Capability) []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.byCap[cap]
	agents := make([]domain.Agent, 0, len(names))
	for _, n := range names {
		agents = append(agents, r.agents[n])
	}
	return agents
}

// List returns all registered agents in registration order.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]domain.Agent, 0, len(r.order))
	for _, n := range r.order {
		agents = append(agents, r.agents[n])
	}
	return agents
}

// HealthCheck runs every registered agent's health check and returns the
// results keyed by agent name. An agent whose check panics is reported
// unhealthy rather than aborting the sweep.
func (r *Registry) HealthCheck(ctx context.Context) map[string]domain.HealthStatus {
	agents := r.List()
	out := make(map[string]domain.HealthStatus, len(agents))
	for _, a := range agents {
		out[a.Name()] = checkAgent(ctx, a)
	}
	return out
}

func checkAgent(ctx context.Context, a domain.Agent) (hs domain.HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			hs = domain.HealthStatus{
				Detail:    fmt.Sprintf("health check panic: %v", r),
				CheckedAt: time.Now(),
			}
		}
	}()
	return a.HealthCheck(ctx)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// SendMessage stamps and records a message routed to a specific agent.
// The recipient must be registered.
func (r *Registry) SendMessage(ctx context.Context, msg domain.AgentMessage) (domain.AgentMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[msg.Recipient]; !ok {
		return domain.AgentMessage{}, domain.NewSubSystemError("registry", "Registry.SendMessage",
			domain.ErrNotFound, "recipient "+msg.Recipient)
	}
	msg = domain.NewAgentMessage(msg)
	r.recordMessage(msg)
	return msg, nil
}

// Broadcast stamps and records a copy of msg for every agent except the
// sender. Returns the number of recipients.
func (r *Registry) Broadcast(ctx context.Context, msg domain.AgentMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, name := range r.order {
		if name == msg.Sender {
			continue
		}
		m := msg
		m.ID = ""
		m.Recipient = name
		r.recordMessage(domain.NewAgentMessage(m))
		n++
	}
	return n
}

// MessagesFor returns the recorded messages addressed to name, oldest first.
func (r *Registry) MessagesFor(name string) []domain.AgentMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AgentMessage
	for _, m := range r.messages {
		if m.Recipient == name {
			out = append(out, m)
		}
	}
	return out
}

// Stats summarizes the registry for health reporting.
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]int, len(r.byCap))
	for cap, names := range r.byCap {
		caps[string(cap)] = len(names)
	}
	return map[string]any{
		"total_agents":   len(r.agents),
		"capabilities":   caps,
		"total_messages": len(r.messages),
	}
}

// recordMessage appends to the bounded history. Caller holds r.mu.
func (r *Registry) recordMessage(msg domain.AgentMessage) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > maxMessageHistory {
		r.messages = r.messages[len(r.messages)-maxMessageHistory:]
	}
}

func (r *Registry) publish(evType domain.EventType, agentID string, detail map[string]string) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	r.bus.Publish(context.Background(), domain.Event{
		Type:      evType,
		Timestamp: time.Now(),
		AgentID:   agentID,
		Payload:   payload,
	})
}
