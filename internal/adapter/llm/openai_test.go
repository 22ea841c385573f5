package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/config"
	"switchboard-ai/internal/infra/logger"
)

func openaiTestConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Name:    "openai",
		Type:    "openai",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var req openaiRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages %+v", req.Messages)
		}

		resp := openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{
					Message:      openaiMessage{Role: "assistant", Content: "Hello! How can I help?"},
					FinishReason: "stop",
				},
			},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiTestConfig(server.URL), logger.Discard())
	result, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a chef."},
			{Role: domain.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Message.Content != "Hello! How can I help?" {
		t.Errorf("content %q", result.Message.Content)
	}
	if result.Usage.TotalTokens != 18 {
		t.Errorf("usage %+v", result.Usage)
	}
}

func TestOpenAIProviderRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiTestConfig(server.URL), logger.Discard())
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("want ErrRateLimit, got %v", err)
	}
}

func TestOpenAIProviderAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiTestConfig(server.URL), logger.Discard())
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("want ErrAuthInvalid, got %v", err)
	}
}

func TestOpenAIProviderRequestParameters(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiTestConfig(server.URL), logger.Discard())
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Model:       "gpt-4o",
		MaxTokens:   256,
		Temperature: 0.7,
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("explicit model not forwarded: %q", got.Model)
	}
	if got.MaxTokens != 256 {
		t.Errorf("max tokens %d", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature %v", got.Temperature)
	}
}

func TestOpenAIProviderDefaultBaseURL(t *testing.T) {
	p := NewOpenAIProvider(config.ProviderConfig{Name: "openai", Model: "gpt-4o"}, logger.Discard())
	if p.baseURL != "https://api.openai.com/v1" {
		t.Errorf("base url %q", p.baseURL)
	}
}
