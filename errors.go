package reelflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a failure so retry and fallback can act on it
type ErrorKind string

const (
	// KindRetryable is a transient failure (timeout, 5xx, rate limit)
	KindRetryable ErrorKind = "RETRYABLE"
	// KindProviderUnavailable means this backend is down or misconfigured
	KindProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"
	// KindFatalRequest means the input cannot succeed on any backend
	KindFatalRequest ErrorKind = "FATAL_REQUEST"
	// KindCorruptState is a checkpoint that cannot be decoded
	KindCorruptState ErrorKind = "CORRUPT_STATE"
	// KindCancelled is a caller or shutdown cancellation
	KindCancelled ErrorKind = "CANCELLED"
)

// String returns the string representation
func (k ErrorKind) String() string {
	return string(k)
}

// Workflow error codes
const (
	ErrCodeStageFailed          = "STAGE_FAILED"
	ErrCodeStagePartiallyFailed = "STAGE_PARTIALLY_FAILED"
	ErrCodeCheckpointFailed     = "CHECKPOINT_FAILED"
	ErrCodeInvalidState         = "INVALID_STATE"
)

var (
	ErrNotFound         = errors.New("workflow not found")
	ErrCorrupt          = errors.New("workflow checkpoint is corrupt")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrWorkflowFailed   = errors.New("workflow is failed; resume requires reset")
	ErrAlreadyRunning   = errors.New("workflow is already running")
	ErrInvalidJob       = errors.New("invalid job spec")
)

// GenError is returned by capability providers
type GenError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *GenError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Provider != "" {
		b.WriteString(" ")
		b.WriteString(e.Provider)
		b.WriteString(":")
	}
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GenError) Unwrap() error { return e.Err }

// Retryable builds a transient provider error
func Retryable(provider, message string, err error) *GenError {
	return &GenError{Kind: KindRetryable, Provider: provider, Message: message, Err: err}
}

// Unavailable builds a provider-unavailable error
func Unavailable(provider, message string, err error) *GenError {
	return &GenError{Kind: KindProviderUnavailable, Provider: provider, Message: message, Err: err}
}

// FatalRequest builds an error for input no backend can serve
func FatalRequest(provider, message string, err error) *GenError {
	return &GenError{Kind: KindFatalRequest, Provider: provider, Message: message, Err: err}
}

// Classify maps any error onto the taxonomy. Unknown errors are treated as transient.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	var ce *ChainError
	if errors.As(err, &ce) && ce.Kind == ChainFatalRequest {
		return KindFatalRequest
	}
	if errors.Is(err, ErrCorrupt) {
		return KindCorruptState
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}
	return KindRetryable
}

// IsFatalRequest reports whether err must not be retried nor fall through
func IsFatalRequest(err error) bool {
	return Classify(err) == KindFatalRequest
}

// IsCancelled reports whether err stems from cancellation
func IsCancelled(err error) bool {
	return Classify(err) == KindCancelled
}

// RetriesExhaustedError is returned once a policy has used every attempt
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

// Is makes errors.Is(err, ErrRetriesExhausted) true
func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// ChainErrorKind tells why a provider chain gave up
type ChainErrorKind string

const (
	ChainFatalRequest ChainErrorKind = "FATAL_REQUEST"
	ChainExhausted    ChainErrorKind = "ALL_PROVIDERS_FAILED"
)

// ProviderAttempt records how one backend in a chain fared
type ProviderAttempt struct {
	Provider string
	Attempts int
	Err      error
}

// ChainError is returned when a provider chain could not serve a request
type ChainError struct {
	Kind     ChainErrorKind
	Attempts []ProviderAttempt
}

// Error implements the error interface
func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%d attempts): %v", a.Provider, a.Attempts, a.Err))
	}
	return fmt.Sprintf("[%s] %s", e.Kind, strings.Join(parts, "; "))
}

// Unwrap exposes the last backend error
func (e *ChainError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Providers lists every backend that was attempted, in order
func (e *ChainError) Providers() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Provider)
	}
	return names
}

// TotalAttempts sums attempts across backends
func (e *ChainError) TotalAttempts() int {
	n := 0
	for _, a := range e.Attempts {
		n += a.Attempts
	}
	return n
}

// StoreError wraps a checkpoint store failure with its operation and key
type StoreError struct {
	Op         string
	WorkflowID string
	Err        error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotFound builds a StoreError wrapping ErrNotFound
func NotFound(op, workflowID string) error {
	return &StoreError{Op: op, WorkflowID: workflowID, Err: ErrNotFound}
}

// Corrupt builds a StoreError wrapping ErrCorrupt and the decode cause
func Corrupt(op, workflowID string, cause error) error {
	return &StoreError{Op: op, WorkflowID: workflowID, Err: fmt.Errorf("%w: %v", ErrCorrupt, cause)}
}

// WorkflowError is the persisted description of the last fatal error
type WorkflowError struct {
	Message   string    `json:"message" dynamodbav:"message"`
	Code      string    `json:"code" dynamodbav:"code"`
	Stage     StageName `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage: %s)", e.Code, e.Message, e.Stage)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewWorkflowError creates a new workflow error
func NewWorkflowError(code, message string, stage StageName, at time.Time) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Stage:     stage,
		Timestamp: at,
	}
}
