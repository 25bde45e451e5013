package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/domain"
)

func fastRetrier(maxRetries int) *Retrier {
	return NewRetrier(RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}, testLogger())
}

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	r := fastRetrier(3)

	calls := 0
	resp, err := r.Do(context.Background(), "test", func(ctx context.Context) (*domain.AgentResponse, error) {
		calls++
		if calls < 3 {
			return nil, domain.ErrTimeout
		}
		return &domain.AgentResponse{AgentID: "a", Confidence: 0.9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "a", resp.AgentID)
}

func TestRetrierExhaustsBudget(t *testing.T) {
	r := fastRetrier(2)

	calls := 0
	final := errors.New("attempt specific")
	_, err := r.Do(context.Background(), "test", func(ctx context.Context) (*domain.AgentResponse, error) {
		calls++
		if calls <= 2 {
			return nil, domain.ErrTimeout
		}
		return nil, final
	})
	assert.Equal(t, 3, calls, "max_retries+1 attempts")
	assert.Same(t, final, err, "final attempt error must come back unchanged")
}

func TestRetrierNoRetryOnImmediateSuccess(t *testing.T) {
	r := fastRetrier(5)

	calls := 0
	_, err := r.Do(context.Background(), "test", func(ctx context.Context) (*domain.AgentResponse, error) {
		calls++
		return &domain.AgentResponse{AgentID: "a"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierStopsOnContextCancel(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Do(ctx, "test", func(ctx context.Context) (*domain.AgentResponse, error) {
		calls++
		return nil, domain.ErrUnavailable
	})
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrUnavailable))
	assert.Less(t, calls, 3, "cancel should stop the retry loop early")
}

func TestBackoffIsExactExponentialWithCap(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries: 8,
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
	}, testLogger())

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}
	for attempt, w := range want {
		assert.Equal(t, w, r.backoff(attempt), "attempt %d", attempt)
	}
}
