package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"switchboard-ai/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentsCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names := []string{"Chef", "Code Helper", "Travel Guide"}
	for _, name := range names {
		if err := s.AddAgent(ctx, domain.AgentProfile{Name: name, SystemPrompt: "p"}); err != nil {
			t.Fatalf("AddAgent %s: %v", name, err)
		}
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("got %d agents", len(agents))
	}
	for i, name := range names {
		if agents[i].Name != name {
			t.Errorf("position %d: got %q, want %q", i, agents[i].Name, name)
		}
	}
}

func TestAddAgentDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddAgent(ctx, domain.AgentProfile{Name: "Chef"}); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	err := s.AddAgent(ctx, domain.AgentProfile{Name: "Chef"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate add: %v", err)
	}
}

func TestUpdateAgentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := domain.AgentProfile{
		Name:         "Chef",
		Description:  "cooking",
		SystemPrompt: "You are a chef.",
		Model:        "gpt-4o",
		Temperature:  0.4,
		MaxTokens:    1024,
	}
	if err := s.AddAgent(ctx, agent); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	agent.Description = "cooking and baking"
	if err := s.UpdateAgent(ctx, "Chef", agent); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if agents[0].Description != "cooking and baking" || agents[0].Temperature != 0.4 || agents[0].MaxTokens != 1024 {
		t.Errorf("round trip %+v", agents[0])
	}

	if err := s.UpdateAgent(ctx, "Nobody", agent); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update missing: %v", err)
	}
}

func TestRemoveAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddAgent(ctx, domain.AgentProfile{Name: "Chef"}); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := s.RemoveAgent(ctx, "Chef"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	agents, _ := s.ListAgents(ctx)
	if len(agents) != 0 {
		t.Errorf("agent not removed: %v", agents)
	}
	if err := s.RemoveAgent(ctx, "Chef"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("remove missing: %v", err)
	}
}

func TestConversationSaveReplacesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	conv := domain.Conversation{
		ID:        "c1",
		User:      "alice",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hi", Timestamp: now},
		},
	}
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	conv = conv.Append(domain.Message{
		Role: domain.RoleAssistant, AgentName: "Chef", Content: "hello", Timestamp: now.Add(time.Second),
	})
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := s.Load(ctx, "alice", "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].AgentName != "Chef" {
		t.Errorf("agent tag lost: %+v", loaded.Messages[1])
	}
}

func TestConversationLoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "alice", "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("load missing: %v", err)
	}
}

func TestListConversationsPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tc := range []struct{ user, id string }{
		{"alice", "c1"}, {"alice", "c2"}, {"bob", "c3"},
	} {
		conv := domain.Conversation{ID: tc.id, User: tc.user, CreatedAt: now, UpdatedAt: now}
		if err := s.Save(ctx, conv); err != nil {
			t.Fatalf("Save %s/%s: %v", tc.user, tc.id, err)
		}
		now = now.Add(time.Second)
	}

	ids, err := s.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("alice has %d conversations, want 2: %v", len(ids), ids)
	}
	for _, id := range ids {
		if id == "c3" {
			t.Error("bob's conversation leaked into alice's list")
		}
	}
}
