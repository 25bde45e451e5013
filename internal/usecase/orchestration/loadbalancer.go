package orchestration

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"agentic-rag/internal/domain"
)

// Strategy names accepted by NewLoadBalancer.
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round_robin"
	StrategyLeastConnections Strategy = "least_connections"
	StrategyWeightedResponse Strategy = "weighted_response_time"
	StrategyRandom           Strategy = "random"
)

// responseWindow is the number of recent response times retained per agent.
const responseWindow = 100

// agentLoad tracks live load statistics for one agent.
type agentLoad struct {
	active        int
	totalRequests int
	failures      int
	responseTimes []time.Duration
}

func (l *agentLoad) successRate() float64 {
	if l.totalRequests == 0 {
		return 1.0
	}
	return float64(l.totalRequests-l.failures) / float64(l.totalRequests)
}

func (l *agentLoad) avgResponseTime() time.Duration {
	if len(l.responseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range l.responseTimes {
		sum += d
	}
	return sum / time.Duration(len(l.responseTimes))
}

// loadScore combines active connections, response time and error rate into a
// single number; lower is better. Response time contributes at most 2.0 so a
// slow-but-healthy agent is never ranked below a failing one.
func (l *agentLoad) loadScore() float64 {
	score := 0.3 * float64(l.active)
	rt := l.avgResponseTime().Seconds() / 10.0
	if rt > 2.0 {
		rt = 2.0
	}
	score += rt
	score += (1.0 - l.successRate()) * 2.0
	return score
}

// Release reports the outcome of a balanced call back to the balancer.
// Calling it more than once is a no-op.
type Release func(success bool, elapsed time.Duration)

// LoadBalancer distributes queries across candidate agents. The round-robin
// index persists across calls; all other strategies derive their choice from
// live per-agent statistics.
type LoadBalancer struct {
	strategy Strategy
	logger   *slog.Logger

	mu      sync.Mutex
	loads   map[string]*agentLoad
	rrIndex int
}

// NewLoadBalancer creates a balancer with the given strategy. Unknown
// strategies fall back to round robin.
func NewLoadBalancer(strategy Strategy, logger *slog.Logger) *LoadBalancer {
	switch strategy {
	case StrategyRoundRobin, StrategyLeastConnections, StrategyWeightedResponse, StrategyRandom:
	default:
		logger.Warn("unknown balancing strategy, using round robin", "strategy", strategy)
		strategy = StrategyRoundRobin
	}
	return &LoadBalancer{
		strategy: strategy,
		logger:   logger,
		loads:    make(map[string]*agentLoad),
	}
}

// Acquire picks an agent from candidates and marks it busy. The returned
// Release must be called when the work finishes so connection counts and
// response statistics stay accurate. Returns ErrNotFound when candidates is
// empty.
func (b *LoadBalancer) Acquire(candidates []domain.Agent) (domain.Agent, Release, error) {
	if len(candidates) == 0 {
		return nil, nil, domain.NewSubSystemError("balancer", "LoadBalancer.Acquire",
			domain.ErrNotFound, "no candidates")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var chosen domain.Agent
	switch b.strategy {
	case StrategyLeastConnections:
		chosen = b.pickBy(candidates, func(l *agentLoad) float64 { return float64(l.active) })
	case StrategyWeightedResponse:
		chosen = b.pickBy(candidates, func(l *agentLoad) float64 { return l.loadScore() })
	case StrategyRandom:
		chosen = candidates[rand.Intn(len(candidates))]
	default:
		chosen = candidates[b.rrIndex%len(candidates)]
		b.rrIndex++
	}

	load := b.load(chosen.Name())
	load.active++
	load.totalRequests++

	name := chosen.Name()
	var once sync.Once
	release := func(success bool, elapsed time.Duration) {
		once.Do(func() { b.release(name, success, elapsed) })
	}
	return chosen, release, nil
}

// pickBy returns the candidate with the lowest key, first-listed winning ties.
// Caller holds b.mu.
func (b *LoadBalancer) pickBy(candidates []domain.Agent, key func(*agentLoad) float64) domain.Agent {
	best := candidates[0]
	bestKey := key(b.load(best.Name()))
	for _, c := range candidates[1:] {
		if k := key(b.load(c.Name())); k < bestKey {
			best = c
			bestKey = k
		}
	}
	return best
}

func (b *LoadBalancer) release(name string, success bool, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	load := b.load(name)
	if load.active > 0 {
		load.active--
	}
	if !success {
		load.failures++
	}
	load.responseTimes = append(load.responseTimes, elapsed)
	if len(load.responseTimes) > responseWindow {
		load.responseTimes = load.responseTimes[len(load.responseTimes)-responseWindow:]
	}
}

func (b *LoadBalancer) load(name string) *agentLoad {
	l, ok := b.loads[name]
	if !ok {
		l = &agentLoad{}
		b.loads[name] = l
	}
	return l
}

// Healthiest returns up to n candidate agents ordered by ascending load
// score. Agents the balancer has never seen rank first.
func (b *LoadBalancer) Healthiest(candidates []domain.Agent, n int) []domain.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Agent, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return b.load(out[i].Name()).loadScore() < b.load(out[j].Name()).loadScore()
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// AgentLoadStats is a read-only snapshot of one agent's balancing stats.
type AgentLoadStats struct {
	ActiveConnections int           `json:"active_connections"`
	TotalRequests     int           `json:"total_requests"`
	Failures          int           `json:"failures"`
	SuccessRate       float64       `json:"success_rate"`
	AvgResponseTime   time.Duration `json:"avg_response_time"`
	LoadScore         float64       `json:"load_score"`
}

// Stats returns a snapshot of every tracked agent's load.
func (b *LoadBalancer) Stats() map[string]AgentLoadStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]AgentLoadStats, len(b.loads))
	for name, l := range b.loads {
		out[name] = AgentLoadStats{
			ActiveConnections: l.active,
			TotalRequests:     l.totalRequests,
			Failures:          l.failures,
			SuccessRate:       l.successRate(),
			AvgResponseTime:   l.avgResponseTime(),
			LoadScore:         l.loadScore(),
		}
	}
	return out
}
