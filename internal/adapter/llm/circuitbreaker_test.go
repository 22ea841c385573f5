package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/config"
	"switchboard-ai/internal/infra/logger"
)

// flakyProvider fails until succeedAfter calls have been made.
type flakyProvider struct {
	calls        int
	succeedAfter int
}

func (f *flakyProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	f.calls++
	if f.calls <= f.succeedAfter {
		return nil, errors.New("upstream down")
	}
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: "ok", Timestamp: time.Now()},
	}, nil
}

func (f *flakyProvider) Name() string { return "flaky" }

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyProvider{succeedAfter: 1000}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, logger.Discard())

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatal("want failure")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state %v, want open", cb.State())
	}

	// Open circuit fails fast without reaching the provider.
	callsBefore := inner.calls
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("want fail-fast error")
	}
	if !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("error %v", err)
	}
	if inner.calls != callsBefore {
		t.Errorf("open circuit still called the provider")
	}
}

func TestCircuitBreakerPassesSuccess(t *testing.T) {
	inner := &flakyProvider{succeedAfter: 0}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, logger.Discard())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content %q", resp.Message.Content)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state %v", cb.State())
	}
}

func TestRateLimitedProviderContextCancel(t *testing.T) {
	inner := &flakyProvider{succeedAfter: 0}
	rl := NewRateLimitedProvider(inner, config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1, // one token, then a minute of waiting
		Burst:             1,
	}, logger.Discard())

	if _, err := rl.Chat(context.Background(), domain.ChatRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rl.Chat(ctx, domain.ChatRequest{}); err == nil {
		t.Error("exhausted limiter with expiring context should fail")
	}
}
