// Package usecase orchestrates conversation turns: routing a user message
// to an agent, assembling the prompt, calling the LLM, and persisting the
// transcript.
package usecase

import (
	"fmt"
	"time"

	"switchboard-ai/internal/domain"
)

// ContextBuilder assembles the exact message list handed to the LLM for
// one turn: the target agent's system prompt, a bounded window of prior
// messages, and the new user message.
type ContextBuilder struct {
	maxHistory int
}

// NewContextBuilder creates a context builder. maxHistory bounds the prior
// messages included per prompt; older messages are trimmed first.
func NewContextBuilder(maxHistory int) *ContextBuilder {
	return &ContextBuilder{maxHistory: maxHistory}
}

// Build assembles: system prompt + annotated history window + user message.
// The result is never longer than maxHistory + 2 messages.
//
// Prior assistant messages produced by a different agent than the one about
// to respond are annotated inline, so the responding agent can tell its own
// turns apart from another agent's and does not adopt the wrong identity
// after a handoff.
func (cb *ContextBuilder) Build(history []domain.Message, agent domain.AgentProfile, userInput string) []domain.Message {
	window := history
	if cb.maxHistory >= 0 && len(window) > cb.maxHistory {
		window = window[len(window)-cb.maxHistory:]
	}

	messages := make([]domain.Message, 0, len(window)+2)
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   agent.SystemPrompt,
		Timestamp: time.Now(),
	})

	for _, msg := range window {
		messages = append(messages, annotateForAgent(msg, agent.Name))
	}

	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   userInput,
		Timestamp: time.Now(),
	})
	return messages
}

// annotateForAgent rewrites an assistant message authored by another agent
// so the responder sees whose turn it was. Messages without a producing
// agent and the responder's own turns pass through unchanged.
func annotateForAgent(msg domain.Message, responder string) domain.Message {
	if msg.Role != domain.RoleAssistant || msg.AgentName == "" || msg.AgentName == responder {
		return msg
	}
	msg.Content = fmt.Sprintf("[from %s] %s", msg.AgentName, msg.Content)
	return msg
}

// ToChatRequest wraps a built message list into a ChatRequest carrying the
// agent's model parameters.
func ToChatRequest(agent domain.AgentProfile, messages []domain.Message) domain.ChatRequest {
	return domain.ChatRequest{
		Model:       agent.Model,
		Messages:    messages,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	}
}
