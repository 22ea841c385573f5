package routing

import (
	"context"
	"log/slog"
	"sync"

	"switchboard-ai/internal/domain"
)

// Registry holds the agent profiles and the relevance index derived from
// them. Agents and index live in one snapshot that is rebuilt and swapped
// under a single lock on every mutation, so a routing call never observes
// a half-updated registry paired with a stale index.
type Registry struct {
	mu     sync.RWMutex
	store  domain.AgentStore
	snap   snapshot
	logger *slog.Logger
}

// snapshot pairs an agent list (in store creation order) with the index
// fitted over exactly that list.
type snapshot struct {
	agents []domain.AgentProfile
	index  *RelevanceIndex
}

// NewRegistry creates a Registry over the given store. Call Reload before
// serving routing decisions.
func NewRegistry(store domain.AgentStore, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Reload refreshes agents from the store, rebuilds the relevance index,
// and swaps both in atomically.
func (r *Registry) Reload(ctx context.Context) error {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return domain.WrapOp("registry reload", err)
	}

	index := BuildIndex(agents)
	if index == nil && len(agents) > 0 {
		r.logger.Warn("relevance index absent, routing degrades to default agent",
			"agents", len(agents))
	}

	r.mu.Lock()
	r.snap = snapshot{agents: agents, index: index}
	r.mu.Unlock()

	r.logger.Info("agent registry reloaded", "agents", len(agents), "indexed", index != nil)
	return nil
}

// Add persists a new agent and rebuilds the index.
func (r *Registry) Add(ctx context.Context, agent domain.AgentProfile) error {
	if err := r.store.AddAgent(ctx, agent); err != nil {
		return domain.WrapOp("registry add", err)
	}
	return r.Reload(ctx)
}

// Update persists changes to an existing agent and rebuilds the index.
func (r *Registry) Update(ctx context.Context, name string, agent domain.AgentProfile) error {
	if err := r.store.UpdateAgent(ctx, name, agent); err != nil {
		return domain.WrapOp("registry update", err)
	}
	return r.Reload(ctx)
}

// Remove deletes an agent and rebuilds the index.
func (r *Registry) Remove(ctx context.Context, name string) error {
	if err := r.store.RemoveAgent(ctx, name); err != nil {
		return domain.WrapOp("registry remove", err)
	}
	return r.Reload(ctx)
}

// Agents returns a copy of the current agent list in registry order.
func (r *Registry) Agents() []domain.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentProfile, len(r.snap.agents))
	copy(out, r.snap.agents)
	return out
}

// Get returns the agent with the given name, or ErrNotFound.
func (r *Registry) Get(name string) (domain.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.snap.agents {
		if a.Name == name {
			return a, nil
		}
	}
	return domain.AgentProfile{}, domain.NewDomainError("registry get", domain.ErrNotFound, name)
}

// ExpertiseSummary returns the agent's description, for UI hints about what
// a recommended agent specializes in.
func (r *Registry) ExpertiseSummary(name string) string {
	a, err := r.Get(name)
	if err != nil {
		return "Unknown agent"
	}
	if a.Description == "" {
		return "General assistant capabilities"
	}
	return a.Description
}

// Snapshot returns the current agents and index as one consistent pair.
func (r *Registry) Snapshot() ([]domain.AgentProfile, *RelevanceIndex) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.agents, r.snap.index
}
