package usecase

import (
	"errors"
	"fmt"
	"testing"

	"switchboard-ai/internal/domain"
)

func TestClassifyNil(t *testing.T) {
	c := NewErrorClassifier()
	got := c.Classify(nil)
	if got.Kind != FailureUnknown || got.Original != nil {
		t.Errorf("nil error: %+v", got)
	}
}

func TestClassifyBySentinel(t *testing.T) {
	c := NewErrorClassifier()
	cases := []struct {
		err  error
		kind FailureKind
	}{
		{fmt.Errorf("%w: API error 429: slow down", domain.ErrRateLimit), FailureRateLimit},
		{fmt.Errorf("%w: bad key", domain.ErrAuthInvalid), FailureAuth},
		{fmt.Errorf("%w: gateway", domain.ErrProviderError), FailureProvider},
		{fmt.Errorf("%w: too slow", domain.ErrTimeout), FailureTimeout},
	}
	for _, tc := range cases {
		got := c.Classify(tc.err)
		if got.Kind != tc.kind {
			t.Errorf("%v: kind %v, want %v", tc.err, got.Kind, tc.kind)
		}
		if got.Sentinel == nil {
			t.Errorf("%v: sentinel not mapped", tc.err)
		}
	}
}

func TestClassifyByStatusCode(t *testing.T) {
	c := NewErrorClassifier()
	cases := []struct {
		msg  string
		kind FailureKind
		code int
	}{
		{"API error 429: rate limited", FailureRateLimit, 429},
		{"API error 401: invalid key", FailureAuth, 401},
		{"API error 403: forbidden", FailureAuth, 403},
		{"API error 408: timeout", FailureTimeout, 408},
		{"API error 500: internal", FailureProvider, 500},
		{"API error 503: unavailable", FailureProvider, 503},
		{"API error 404: nope", FailureUnknown, 404},
	}
	for _, tc := range cases {
		got := c.Classify(errors.New(tc.msg))
		if got.Kind != tc.kind || got.StatusCode != tc.code {
			t.Errorf("%q: got kind %v code %d, want %v %d", tc.msg, got.Kind, got.StatusCode, tc.kind, tc.code)
		}
	}
}

func TestClassifyByString(t *testing.T) {
	c := NewErrorClassifier()
	cases := []struct {
		msg  string
		kind FailureKind
	}{
		{"dial tcp: connection refused", FailureTimeout},
		{"context deadline exceeded", FailureTimeout},
		{"read: connection reset by peer", FailureTimeout},
		{"rate limit hit, try later", FailureRateLimit},
		{"invalid authentication provided", FailureAuth},
		{"something novel happened", FailureUnknown},
	}
	for _, tc := range cases {
		if got := c.Classify(errors.New(tc.msg)); got.Kind != tc.kind {
			t.Errorf("%q: kind %v, want %v", tc.msg, got.Kind, tc.kind)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []FailureKind{FailureRateLimit, FailureTimeout, FailureProvider}
	for _, k := range retryable {
		if !(ClassifiedError{Kind: k}).Retryable() {
			t.Errorf("kind %v should be retryable", k)
		}
	}
	for _, k := range []FailureKind{FailureAuth, FailureUnknown} {
		if (ClassifiedError{Kind: k}).Retryable() {
			t.Errorf("kind %v must not be retryable", k)
		}
	}
}

func TestUserMessagePerKind(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range []FailureKind{FailureAuth, FailureTimeout, FailureRateLimit, FailureProvider, FailureUnknown} {
		msg := ClassifiedError{Kind: k}.UserMessage()
		if msg == "" {
			t.Errorf("kind %v: empty user message", k)
		}
		if seen[msg] {
			t.Errorf("kind %v: user message reused: %q", k, msg)
		}
		seen[msg] = true
	}
}
