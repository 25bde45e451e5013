package resilience

import (
	"context"
	"log/slog"
	"time"

	"agentic-rag/internal/domain"
)

// Default retry settings.
const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// RetryConfig configures exponential backoff retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt,
	// so an operation runs at most MaxRetries+1 times.
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultMaxDelay
	}
	return c
}

// Retrier runs operations with exponential backoff.
type Retrier struct {
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetrier creates a Retrier. Zero-valued cfg fields get defaults.
func NewRetrier(cfg RetryConfig, logger *slog.Logger) *Retrier {
	return &Retrier{cfg: cfg.withDefaults(), logger: logger}
}

// backoff computes the delay before retrying attempt (0-based):
// min(BaseDelay * 2^attempt, MaxDelay).
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := r.cfg.BaseDelay * time.Duration(1<<uint(attempt))
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds or the retry budget is exhausted, so fn runs
// at most MaxRetries+1 times. The error of the final attempt is returned
// unchanged so callers can classify it with errors.Is.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) (*domain.AgentResponse, error)) (*domain.AgentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt - 1)
			r.logger.Debug("retrying after backoff",
				"op", op,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		r.logger.Warn("attempt failed",
			"op", op,
			"attempt", attempt,
			"error", err,
		)
	}
	return nil, lastErr
}
