package usecase

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"switchboard-ai/internal/domain"
)

// FailureKind buckets an LLM provider failure for user-facing reporting
// and retry decisions.
type FailureKind int

const (
	FailureUnknown   FailureKind = iota
	FailureAuth                  // 401, 403, invalid or missing API key
	FailureTimeout               // timeouts, refused or reset connections
	FailureRateLimit             // 429, provider throttling
	FailureProvider              // 5xx and other provider-side errors
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Kind       FailureKind
	Sentinel   error // mapped domain sentinel (e.g. domain.ErrRateLimit), or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// Retryable reports whether retrying the call may succeed. Auth failures
// and unknown errors are permanent; throttling, timeouts, and provider-side
// errors are worth retrying with backoff.
func (c ClassifiedError) Retryable() bool {
	switch c.Kind {
	case FailureRateLimit, FailureTimeout, FailureProvider:
		return true
	default:
		return false
	}
}

// UserMessage renders the failure as the assistant reply shown in place of
// the answer the agent could not produce. A turn that fails against the
// provider still completes: the user sees what went wrong instead of a
// stack trace or silence.
func (c ClassifiedError) UserMessage() string {
	switch c.Kind {
	case FailureAuth:
		return "I couldn't reach the language model because the API credentials were rejected. Please check the configured API key."
	case FailureTimeout:
		return "The language model didn't respond in time. Please try again."
	case FailureRateLimit:
		return "The language model is throttling requests right now. Please wait a moment and try again."
	case FailureProvider:
		return "The language model service reported an internal error. Please try again."
	default:
		return "Something went wrong while generating a response. Please try again."
	}
}

// ErrorClassifier analyzes LLM provider errors and categorizes them.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches "API error <status_code>:" produced by the HTTP
// providers.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// Classify inspects an error (typically from an LLM provider) and returns
// a ClassifiedError with kind and mapped sentinel.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	// Check wrapped domain sentinels first (from mapHTTPError).
	if ce := c.classifyBySentinel(err); ce.Kind != FailureUnknown {
		return ce
	}

	errStr := err.Error()

	// Try to extract HTTP status code from "API error NNN:" pattern.
	if matches := apiErrorPattern.FindStringSubmatch(errStr); len(matches) == 2 {
		code, _ := strconv.Atoi(matches[1])
		return c.classifyByStatus(err, code)
	}

	// String-based fallback for non-API errors (network, timeout, etc.).
	return c.classifyByString(err, errStr)
}

// classifyBySentinel checks if the error wraps a known domain sentinel.
func (c *ErrorClassifier) classifyBySentinel(err error) ClassifiedError {
	switch {
	case errors.Is(err, domain.ErrRateLimit):
		return ClassifiedError{Original: err, Kind: FailureRateLimit, Sentinel: domain.ErrRateLimit}
	case errors.Is(err, domain.ErrAuthInvalid):
		return ClassifiedError{Original: err, Kind: FailureAuth, Sentinel: domain.ErrAuthInvalid}
	case errors.Is(err, domain.ErrTimeout):
		return ClassifiedError{Original: err, Kind: FailureTimeout, Sentinel: domain.ErrTimeout}
	case errors.Is(err, domain.ErrProviderError):
		return ClassifiedError{Original: err, Kind: FailureProvider, Sentinel: domain.ErrProviderError}
	default:
		return ClassifiedError{Original: err, Kind: FailureUnknown}
	}
}

func (c *ErrorClassifier) classifyByStatus(err error, code int) ClassifiedError {
	switch {
	case code == 429:
		return ClassifiedError{Original: err, Kind: FailureRateLimit, Sentinel: domain.ErrRateLimit, StatusCode: code}
	case code == 401 || code == 403:
		return ClassifiedError{Original: err, Kind: FailureAuth, Sentinel: domain.ErrAuthInvalid, StatusCode: code}
	case code == 408:
		return ClassifiedError{Original: err, Kind: FailureTimeout, Sentinel: domain.ErrTimeout, StatusCode: code}
	case code >= 500 && code < 600:
		return ClassifiedError{Original: err, Kind: FailureProvider, Sentinel: domain.ErrProviderError, StatusCode: code}
	default:
		return ClassifiedError{Original: err, Kind: FailureUnknown, StatusCode: code}
	}
}

func (c *ErrorClassifier) classifyByString(err error, errStr string) ClassifiedError {
	lower := strings.ToLower(errStr)

	for _, p := range []string{"rate limit", "too many requests"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Kind: FailureRateLimit, Sentinel: domain.ErrRateLimit}
		}
	}

	for _, p := range []string{"api key", "unauthorized", "forbidden", "invalid authentication"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Kind: FailureAuth, Sentinel: domain.ErrAuthInvalid}
		}
	}

	for _, p := range []string{
		"connection refused", "no such host", "timeout",
		"deadline exceeded", "connection reset",
	} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Kind: FailureTimeout, Sentinel: domain.ErrTimeout}
		}
	}

	return ClassifiedError{Original: err, Kind: FailureUnknown}
}
