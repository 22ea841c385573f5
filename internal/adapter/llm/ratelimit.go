package llm

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/config"
)

// RateLimitedProvider throttles outbound calls to the wrapped provider so a
// chatty routing loop (e.g. a supervisor delegating across several hops)
// stays inside the provider's request quota instead of tripping 429s.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimitedProvider wraps inner with a token bucket limiter.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitedProvider {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), burst),
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider. It blocks until the limiter grants a
// token or the context is cancelled.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapOp("rate limit wait", err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)
