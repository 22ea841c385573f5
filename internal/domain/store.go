package domain

import "context"

// AgentStore persists agent profiles. List must return agents in creation
// order; that order is the registry's stable tie-break order for scoring.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]AgentProfile, error)
	AddAgent(ctx context.Context, agent AgentProfile) error
	UpdateAgent(ctx context.Context, name string, agent AgentProfile) error
	RemoveAgent(ctx context.Context, name string) error
}

// ConversationStore persists conversation transcripts. Save replaces the
// stored transcript wholesale; the in-memory thread remains authoritative
// for the session when saves fail.
type ConversationStore interface {
	Save(ctx context.Context, conv Conversation) error
	Load(ctx context.Context, user, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context, user string) ([]string, error)
}
