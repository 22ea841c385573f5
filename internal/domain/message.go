package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation thread.
// AgentName is set only on assistant messages and records which agent
// authored the reply; it is what keeps a multi-agent transcript
// unambiguous across handoffs.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Conversation holds the ordered, append-only message log for one
// conversation, owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append returns a copy of the conversation with msg added. The shared
// backing array is never mutated, so snapshots held by callers stay valid.
func (c Conversation) Append(msg Message) Conversation {
	msgs := make([]Message, 0, len(c.Messages)+1)
	msgs = append(msgs, c.Messages...)
	msgs = append(msgs, msg)
	c.Messages = msgs
	c.UpdatedAt = msg.Timestamp
	return c
}
