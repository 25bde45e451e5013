package domain

import (
	"errors"
	"fmt"
	"time"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnavailable  = fmt.Errorf("unavailable")
)

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound      = fmt.Errorf("agent not found")
	ErrAgentDuplicate     = fmt.Errorf("agent already registered")
	ErrAgentInit          = fmt.Errorf("agent initialization failed")
	ErrAgentProcessing    = fmt.Errorf("agent processing failed")
	ErrAgentPanic         = fmt.Errorf("agent panicked")
	ErrCapabilityNotFound = fmt.Errorf("no agent provides capability")
	ErrNoAgentsAvailable  = fmt.Errorf("no agents available")
	ErrCircuitOpen        = fmt.Errorf("circuit breaker open")
	ErrRetrievalFailed    = fmt.Errorf("retrieval pipeline failed")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrEncryption         = fmt.Errorf("encryption operation failed")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrConfidenceRange    = fmt.Errorf("confidence outside [0, 1]")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "selector", "fallback"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
// Use this with category sentinels (ErrNotFound, ErrTimeout, etc.) so that ErrorCodeOf
// can map the combination of sentinel + subsystem to a specific ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AgentError carries agent execution context alongside the underlying cause.
// Use for failures inside an agent's ProcessQuery so callers can log the
// offending agent and the query that triggered the failure.
type AgentError struct {
	AgentID string
	Query   string
	Timeout time.Duration // non-zero when the failure was a deadline
	Err     error
}

func (e *AgentError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("agent %s: %s after %s", e.AgentID, e.Err, e.Timeout)
	}
	return fmt.Sprintf("agent %s: %s", e.AgentID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentTimeout builds an AgentError wrapping ErrTimeout.
func NewAgentTimeout(agentID, query string, timeout time.Duration) *AgentError {
	return &AgentError{AgentID: agentID, Query: query, Timeout: timeout, Err: ErrTimeout}
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// Circuit-open rejections and invalid input are not retryable: the former must wait
// out the recovery window, the latter will never succeed.
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRetrievalFailed)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes grouped by subsystem. Every sentinel error maps to exactly one code.
const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate     ErrorCode = "AGENT_DUPLICATE"
	CodeAgentInit          ErrorCode = "AGENT_INIT"
	CodeAgentProcessing    ErrorCode = "AGENT_PROCESSING"
	CodeAgentPanic         ErrorCode = "AGENT_PANIC"
	CodeCapabilityNotFound ErrorCode = "CAPABILITY_NOT_FOUND"
	CodeNoAgentsAvailable  ErrorCode = "NO_AGENTS_AVAILABLE"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeConfidenceRange    ErrorCode = "CONFIDENCE_RANGE"

	// Subsystem-specific codes used by subSystemCodeMap dispatch.
	CodeSelectorThreshold ErrorCode = "SELECTOR_THRESHOLD"
	CodeWorkflowTimeout   ErrorCode = "WORKFLOW_TIMEOUT"
	CodeFallbackExhausted ErrorCode = "FALLBACK_EXHAUSTED"
	CodeBalancerEmpty     ErrorCode = "BALANCER_EMPTY"

	// Category error codes — fallback codes when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeUnavailable  ErrorCode = "UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	// Category sentinels (fallback codes).
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,
	ErrUnavailable:  CodeUnavailable,

	// Active sentinels.
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrAgentDuplicate:     CodeAgentDuplicate,
	ErrAgentInit:          CodeAgentInit,
	ErrAgentProcessing:    CodeAgentProcessing,
	ErrAgentPanic:         CodeAgentPanic,
	ErrCapabilityNotFound: CodeCapabilityNotFound,
	ErrNoAgentsAvailable:  CodeNoAgentsAvailable,
	ErrCircuitOpen:        CodeCircuitOpen,
	ErrRetrievalFailed:    CodeRetrievalFailed,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrEncryption:         CodeEncryption,
	ErrAuditWrite:         CodeAuditWrite,
	ErrRateLimit:          CodeRateLimit,
	ErrConfidenceRange:    CodeConfidenceRange,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"registry": CodeAgentNotFound,
		"balancer": CodeBalancerEmpty,
	},
	ErrDuplicate: {
		"registry": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"workflow": CodeWorkflowTimeout,
	},
	ErrInvalidInput: {
		"selector": CodeSelectorThreshold,
	},
	ErrUnavailable: {
		"fallback": CodeFallbackExhausted,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel and subsystem.
	var de *DomainError
	if errors.As(err, &de) {
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
