package domain

// AgentProfile describes a named persona: the system prompt that configures
// an LLM call, plus the free-text metadata the relevance index scores against.
// Name is unique within a registry. Profiles are immutable per turn; only
// administrative edits mutate them, and every such edit triggers an index
// rebuild before the next routing decision is served.
type AgentProfile struct {
	Name         string  `json:"name"          yaml:"name"`
	Description  string  `json:"description"   yaml:"description"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	Model        string  `json:"model,omitempty"       yaml:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"  yaml:"max_tokens,omitempty"`
}

// RoutingDecision is the ephemeral per-turn output of the router. It is
// computed fresh for every user turn and never persisted; callers may log it.
type RoutingDecision struct {
	Query            string  `json:"query"`
	CurrentAgent     string  `json:"current_agent"`
	RecommendedAgent string  `json:"recommended_agent"`
	Confidence       float64 `json:"confidence"`
	Switch           bool    `json:"switch"`
}
