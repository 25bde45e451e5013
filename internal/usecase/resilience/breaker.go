// Package resilience provides the circuit breaker and retry primitives that
// guard agent execution. Breakers fail fast when an agent keeps failing;
// retries absorb transient faults underneath them.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentic-rag/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultFailureThreshold  uint32        = 5
	defaultSuccessThreshold  uint32        = 2
	defaultRecoveryTimeout   time.Duration = 60 * time.Second
	defaultSlowCallThreshold time.Duration = 10 * time.Second
)

// BreakerState is the reported state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the circuit opens.
	FailureThreshold uint32 `yaml:"failure_threshold"`
	// SuccessThreshold is the number of consecutive half-open successes required to close.
	SuccessThreshold uint32 `yaml:"success_threshold"`
	// RecoveryTimeout is how long the circuit stays open before transitioning to half-open.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
	// SlowCallThreshold marks calls slower than this as slow in the metrics.
	// Slow calls do not trip the breaker.
	SlowCallThreshold time.Duration `yaml:"slow_call_threshold"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = defaultSuccessThreshold
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = defaultRecoveryTimeout
	}
	if c.SlowCallThreshold == 0 {
		c.SlowCallThreshold = defaultSlowCallThreshold
	}
	return c
}

// BreakerMetrics is a snapshot of one breaker's counters.
type BreakerMetrics struct {
	State         BreakerState `json:"state"`
	TotalCalls    uint64       `json:"total_calls"`
	TotalFailures uint64       `json:"total_failures"`
	SlowCalls     uint64       `json:"slow_calls"`
	RejectedCalls uint64       `json:"rejected_calls"`
	OpenedAt      time.Time    `json:"opened_at,omitempty"`
}

// Breaker protects one agent with a circuit breaker. Consecutive failures
// open the circuit; while open, calls are rejected without reaching the
// agent. After the recovery timeout a limited number of probes may pass, and
// enough consecutive probe successes close the circuit again.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	cb     *gobreaker.CircuitBreaker[*domain.AgentResponse]
	logger *slog.Logger
	bus    domain.EventBus

	totalCalls    atomic.Uint64
	totalFailures atomic.Uint64
	slowCalls     atomic.Uint64
	rejectedCalls atomic.Uint64

	mu       sync.Mutex
	openedAt time.Time
}

// NewBreaker creates a breaker named after the agent it protects.
// If cfg is zero-valued, defaults are used. bus may be nil.
func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger, bus domain.EventBus) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{name: name, cfg: cfg, logger: logger, bus: bus}
	b.cb = gobreaker.NewCircuitBreaker[*domain.AgentResponse](b.settings())
	return b
}

func (b *Breaker) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "agent:" + b.name,
		MaxRequests: b.cfg.SuccessThreshold,
		Timeout:     b.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onStateChange(name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Warn("circuit breaker state change",
		"breaker", name,
		"from", from.String(),
		"to", to.String(),
	)

	var evType domain.EventType
	switch to {
	case gobreaker.StateOpen:
		b.mu.Lock()
		b.openedAt = time.Now()
		b.mu.Unlock()
		evType = domain.EventBreakerOpened
	case gobreaker.StateHalfOpen:
		evType = domain.EventBreakerHalfOpen
	case gobreaker.StateClosed:
		evType = domain.EventBreakerClosed
	default:
		return
	}

	if b.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
		b.bus.Publish(context.Background(), domain.Event{
			Type:      evType,
			Timestamp: time.Now(),
			AgentID:   b.name,
			Payload:   payload,
		})
	}
}

// Execute runs fn through the circuit breaker. Every call attempt counts
// toward TotalCalls; rejections while the circuit is open return
// domain.ErrCircuitOpen and are counted as rejections, not failures.
func (b *Breaker) Execute(fn func() (*domain.AgentResponse, error)) (*domain.AgentResponse, error) {
	b.totalCalls.Add(1)
	start := time.Now()
	resp, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejectedCalls.Add(1)
			return nil, domain.NewDomainError("Breaker.Execute", domain.ErrCircuitOpen, b.name)
		}
		b.totalFailures.Add(1)
		return nil, err
	}
	if time.Since(start) > b.cfg.SlowCallThreshold {
		b.slowCalls.Add(1)
		b.logger.Warn("slow agent call",
			"breaker", b.name,
			"elapsed", time.Since(start),
			"threshold", b.cfg.SlowCallThreshold,
		)
	}
	return resp, nil
}

// Allow reports whether a call would currently pass the breaker. It does not
// consume a half-open probe slot.
func (b *Breaker) Allow() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// Name returns the breaker's agent name.
func (b *Breaker) Name() string { return b.name }

// State returns the current reported state.
func (b *Breaker) State() BreakerState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Metrics returns a snapshot of the breaker's counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()
	return BreakerMetrics{
		State:         b.State(),
		TotalCalls:    b.totalCalls.Load(),
		TotalFailures: b.totalFailures.Load(),
		SlowCalls:     b.slowCalls.Load(),
		RejectedCalls: b.rejectedCalls.Load(),
		OpenedAt:      openedAt,
	}
}

// BreakerGroup manages one breaker per agent, created lazily with a shared
// configuration. Safe for concurrent use.
type BreakerGroup struct {
	cfg    BreakerConfig
	logger *slog.Logger
	bus    domain.EventBus

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakerGroup creates a group with shared breaker configuration.
// bus may be nil.
func NewBreakerGroup(cfg BreakerConfig, logger *slog.Logger, bus domain.EventBus) *BreakerGroup {
	return &BreakerGroup{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		bus:      bus,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *BreakerGroup) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, g.cfg, g.logger, g.bus)
	g.breakers[name] = b
	return b
}

// Reset replaces the breaker for name with a fresh closed one.
// Returns domain.ErrNotFound if no breaker exists for name.
func (g *BreakerGroup) Reset(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.breakers[name]; !ok {
		return domain.NewDomainError("BreakerGroup.Reset", domain.ErrNotFound, name)
	}
	g.breakers[name] = NewBreaker(name, g.cfg, g.logger, g.bus)
	return nil
}

// States returns the current state of every breaker in the group.
func (g *BreakerGroup) States() map[string]BreakerState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]BreakerState, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.State()
	}
	return out
}

// AllMetrics returns counter snapshots for every breaker in the group.
func (g *BreakerGroup) AllMetrics() map[string]BreakerMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]BreakerMetrics, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.Metrics()
	}
	return out
}
