package usecase

import (
	"fmt"
	"strings"
	"testing"

	"switchboard-ai/internal/domain"
)

func TestBuildPromptShape(t *testing.T) {
	cb := NewContextBuilder(10)
	agent := domain.AgentProfile{Name: "Chef", SystemPrompt: "You are a chef."}

	msgs := cb.Build(nil, agent, "how do I make pasta")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != domain.RoleSystem || msgs[0].Content != "You are a chef." {
		t.Errorf("system message %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleUser || msgs[1].Content != "how do I make pasta" {
		t.Errorf("user message %+v", msgs[1])
	}
}

func TestBuildPromptTrimsOldest(t *testing.T) {
	cb := NewContextBuilder(3)
	agent := domain.AgentProfile{Name: "Chef", SystemPrompt: "You are a chef."}

	var history []domain.Message
	for i := 0; i < 10; i++ {
		history = append(history, domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		})
	}

	msgs := cb.Build(history, agent, "latest question")
	if len(msgs) != 5 { // system + 3 history + user
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[1].Content != "message 7" {
		t.Errorf("oldest messages should be trimmed first, window starts at %q", msgs[1].Content)
	}
	if msgs[4].Content != "latest question" {
		t.Errorf("last message %q", msgs[4].Content)
	}
}

func TestBuildPromptNeverExceedsBound(t *testing.T) {
	for _, maxHistory := range []int{0, 1, 5, 50} {
		cb := NewContextBuilder(maxHistory)
		agent := domain.AgentProfile{Name: "Chef"}

		var history []domain.Message
		for i := 0; i < 100; i++ {
			history = append(history, domain.Message{Role: domain.RoleUser, Content: "x"})
		}

		msgs := cb.Build(history, agent, "q")
		if len(msgs) > maxHistory+2 {
			t.Errorf("maxHistory %d: %d messages exceeds bound %d", maxHistory, len(msgs), maxHistory+2)
		}
	}
}

func TestBuildPromptAnnotatesOtherAgents(t *testing.T) {
	cb := NewContextBuilder(10)
	agent := domain.AgentProfile{Name: "Chef", SystemPrompt: "You are a chef."}

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "fix my code"},
		{Role: domain.RoleAssistant, AgentName: "Code Helper", Content: "Here is the fix."},
		{Role: domain.RoleUser, Content: "now a recipe"},
		{Role: domain.RoleAssistant, AgentName: "Chef", Content: "Boil water first."},
	}

	msgs := cb.Build(history, agent, "what next")

	other := msgs[2]
	if !strings.HasPrefix(other.Content, "[from Code Helper] ") {
		t.Errorf("other-agent message not annotated: %q", other.Content)
	}
	own := msgs[4]
	if own.Content != "Boil water first." {
		t.Errorf("own message must pass through unchanged: %q", own.Content)
	}
	user := msgs[1]
	if user.Content != "fix my code" {
		t.Errorf("user message must pass through unchanged: %q", user.Content)
	}
}

func TestBuildPromptDoesNotMutateHistory(t *testing.T) {
	cb := NewContextBuilder(10)
	history := []domain.Message{
		{Role: domain.RoleAssistant, AgentName: "Code Helper", Content: "original"},
	}

	cb.Build(history, domain.AgentProfile{Name: "Chef"}, "q")
	if history[0].Content != "original" {
		t.Errorf("annotation leaked into the stored transcript: %q", history[0].Content)
	}
}

func TestToChatRequest(t *testing.T) {
	agent := domain.AgentProfile{Name: "Chef", Model: "gpt-4o", Temperature: 0.3, MaxTokens: 512}
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

	req := ToChatRequest(agent, msgs)
	if req.Model != "gpt-4o" || req.Temperature != 0.3 || req.MaxTokens != 512 {
		t.Errorf("request parameters %+v", req)
	}
	if len(req.Messages) != 1 {
		t.Errorf("messages %+v", req.Messages)
	}
}
