package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrAgentNotFound, "agent 'comparison'")
	want := "Registry.Get: agent 'comparison': agent not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Breaker.Execute", ErrCircuitOpen, "")
	want := "Breaker.Execute: circuit breaker open"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Fallback.Execute", ErrRetrievalFailed, "vector store down")
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Error("errors.Is should match ErrRetrievalFailed")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("Selector.Select", ErrNoAgentsAvailable, "")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Selector.Select" {
		t.Errorf("Op = %q, want %q", de.Op, "Selector.Select")
	}
}

func TestAgentErrorTimeoutFormat(t *testing.T) {
	err := NewAgentTimeout("docsearch-01", "what is RAG", 30000000000)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "docsearch-01")
	assert.Contains(t, err.Error(), "30s")
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(ErrAgentNotFound))
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(ErrCircuitOpen))
	assert.Equal(t, CodeRetrievalFailed, ErrorCodeOf(ErrRetrievalFailed))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrAgentNotFound, "agent 'x'")
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystemDispatch(t *testing.T) {
	err := NewSubSystemError("registry", "Registry.Register", ErrDuplicate, "agent 'x'")
	assert.Equal(t, CodeAgentDuplicate, ErrorCodeOf(err))

	err = NewSubSystemError("workflow", "Engine.ExecuteParallel", ErrTimeout, "")
	assert.Equal(t, CodeWorkflowTimeout, ErrorCodeOf(err))

	// Unknown subsystem falls back to the category code.
	err = NewSubSystemError("nonexistent", "Op", ErrTimeout, "")
	assert.Equal(t, CodeTimeout, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("processing query: %w", ErrAgentProcessing)
	assert.Equal(t, CodeAgentProcessing, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("mystery")))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(fmt.Errorf("wrapped: %w", ErrUnavailable)))
	assert.False(t, IsRetryableError(ErrCircuitOpen))
	assert.False(t, IsRetryableError(ErrInvalidInput))
	assert.False(t, IsRetryableError(errors.New("mystery")))
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
	err := WrapOp("Monitor.Record", ErrLimitReached)
	assert.Equal(t, "Monitor.Record: limit reached", err.Error())
}
