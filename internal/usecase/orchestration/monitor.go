package orchestration

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// metricWindow bounds the in-memory sample buffer; older samples fall off.
const metricWindow = 1000

// PerformanceSample is one recorded agent operation.
type PerformanceSample struct {
	AgentName string         `json:"agent_name"`
	Operation string         `json:"operation"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OpsRecorder exports samples to an external metrics backend.
// Implemented by the Prometheus bridge in infra/metrics.
type OpsRecorder interface {
	ObserveOperation(agent, operation string, d time.Duration, success bool)
}

// PerfSummary aggregates a set of samples.
type PerfSummary struct {
	Count       int           `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	P50         time.Duration `json:"p50"`
	P95         time.Duration `json:"p95"`
	P99         time.Duration `json:"p99"`
}

// Monitor keeps a sliding window of operation samples and answers
// aggregation queries over it. Safe for concurrent use.
type Monitor struct {
	logger   *slog.Logger
	recorder OpsRecorder // may be nil

	mu      sync.Mutex
	samples []PerformanceSample
}

// NewMonitor creates a monitor. recorder may be nil.
func NewMonitor(logger *slog.Logger, recorder OpsRecorder) *Monitor {
	return &Monitor{logger: logger, recorder: recorder}
}

// Record adds one sample to the window and forwards it to the external
// recorder when one is configured.
func (m *Monitor) Record(sample PerformanceSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.samples = append(m.samples, sample)
	if len(m.samples) > metricWindow {
		m.samples = m.samples[len(m.samples)-metricWindow:]
	}
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.ObserveOperation(sample.AgentName, sample.Operation, sample.Duration, sample.Success)
	}
}

// AgentSummary aggregates all samples for one agent.
func (m *Monitor) AgentSummary(agent string) PerfSummary {
	return m.summarize(func(s PerformanceSample) bool { return s.AgentName == agent })
}

// OperationSummary aggregates all samples for one operation across agents.
func (m *Monitor) OperationSummary(operation string) PerfSummary {
	return m.summarize(func(s PerformanceSample) bool { return s.Operation == operation })
}

// GlobalSummary aggregates every sample in the window.
func (m *Monitor) GlobalSummary() PerfSummary {
	return m.summarize(func(PerformanceSample) bool { return true })
}

func (m *Monitor) summarize(keep func(PerformanceSample) bool) PerfSummary {
	m.mu.Lock()
	var durations []time.Duration
	successes := 0
	for _, s := range m.samples {
		if !keep(s) {
			continue
		}
		durations = append(durations, s.Duration)
		if s.Success {
			successes++
		}
	}
	m.mu.Unlock()

	if len(durations) == 0 {
		return PerfSummary{}
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return PerfSummary{
		Count:       len(durations),
		SuccessRate: float64(successes) / float64(len(durations)),
		AvgDuration: sum / time.Duration(len(durations)),
		MinDuration: durations[0],
		MaxDuration: durations[len(durations)-1],
		P50:         percentile(durations, 50),
		P95:         percentile(durations, 95),
		P99:         percentile(durations, 99),
	}
}

// percentile computes the p-th percentile of sorted durations with linear
// interpolation between adjacent ranks.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[hi]-sorted[lo]))
}

// SlowAgents returns the names of agents whose average duration exceeds
// threshold, sorted slowest first.
func (m *Monitor) SlowAgents(threshold time.Duration) []string {
	type entry struct {
		name string
		avg  time.Duration
	}
	var slow []entry
	for name, summary := range m.perAgent() {
		if summary.AvgDuration > threshold {
			slow = append(slow, entry{name, summary.AvgDuration})
		}
	}
	sort.Slice(slow, func(i, j int) bool { return slow[i].avg > slow[j].avg })
	out := make([]string, len(slow))
	for i, e := range slow {
		out[i] = e.name
	}
	return out
}

// FailingAgents returns the names of agents whose success rate is below
// threshold, sorted worst first.
func (m *Monitor) FailingAgents(threshold float64) []string {
	type entry struct {
		name string
		rate float64
	}
	var failing []entry
	for name, summary := range m.perAgent() {
		if summary.SuccessRate < threshold {
			failing = append(failing, entry{name, summary.SuccessRate})
		}
	}
	sort.Slice(failing, func(i, j int) bool { return failing[i].rate < failing[j].rate })
	out := make([]string, len(failing))
	for i, e := range failing {
		out[i] = e.name
	}
	return out
}

func (m *Monitor) perAgent() map[string]PerfSummary {
	m.mu.Lock()
	names := make(map[string]struct{})
	for _, s := range m.samples {
		names[s.AgentName] = struct{}{}
	}
	m.mu.Unlock()

	out := make(map[string]PerfSummary, len(names))
	for name := range names {
		out[name] = m.AgentSummary(name)
	}
	return out
}
