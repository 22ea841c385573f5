package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// Routing errors.
	ErrNoAgents     = fmt.Errorf("no agents available")
	ErrInvalidRoute = fmt.Errorf("route label outside declared set")
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")

	// LLM call errors.
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrProviderError = fmt.Errorf("provider error")

	// Storage errors.
	ErrPersistence = fmt.Errorf("persistence failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed
// on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderError) || errors.Is(err, ErrPersistence)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNoAgents      ErrorCode = "NO_AGENTS"
	CodeInvalidRoute  ErrorCode = "INVALID_ROUTE"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeRateLimit     ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid   ErrorCode = "AUTH_INVALID"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
	CodePersistence   ErrorCode = "PERSISTENCE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNoAgents:      CodeNoAgents,
	ErrInvalidRoute:  CodeInvalidRoute,
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrRateLimit:     CodeRateLimit,
	ErrAuthInvalid:   CodeAuthInvalid,
	ErrTimeout:       CodeTimeout,
	ErrProviderError: CodeProviderError,
	ErrPersistence:   CodePersistence,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
