package routing

import (
	"log/slog"

	"switchboard-ai/internal/domain"
)

// Recommender advises which agent should answer a query, based on the
// relevance index. It never switches on its own: ShouldSwitch only
// recommends, and the caller applies the switch and records the visible
// transition in the transcript.
type Recommender struct {
	registry     *Registry
	defaultAgent string // empty means first registry agent
	logger       *slog.Logger
}

// NewRecommender creates a Recommender over the given registry.
// defaultAgent receives turns when the index is absent; when empty, the
// first registry agent is the default.
func NewRecommender(registry *Registry, defaultAgent string, logger *slog.Logger) *Recommender {
	return &Recommender{registry: registry, defaultAgent: defaultAgent, logger: logger}
}

// BestAgent returns the highest-scoring agent for the query, excluding the
// named agent (pass "" to exclude none). With an absent index it returns
// the default agent. Fails with ErrNoAgents on an empty registry.
func (r *Recommender) BestAgent(query, exclude string) (string, error) {
	agents, index := r.registry.Snapshot()
	if len(agents) == 0 {
		return "", domain.NewDomainError("best agent", domain.ErrNoAgents, "registry is empty")
	}
	if index == nil {
		return r.fallbackAgent(agents), nil
	}

	ranked := index.Rank(query)
	for _, s := range ranked {
		if s.Name != exclude {
			return s.Name, nil
		}
	}
	// All candidates excluded: the top agent still wins.
	return ranked[0].Name, nil
}

// Recommend returns up to topN agent names ordered by relevance, excluding
// any name in exclude. Ties keep registry order. With an absent index it
// returns the registry prefix minus exclusions.
func (r *Recommender) Recommend(query string, topN int, exclude map[string]bool) ([]string, error) {
	agents, index := r.registry.Snapshot()
	if len(agents) == 0 {
		return nil, domain.NewDomainError("recommend", domain.ErrNoAgents, "registry is empty")
	}

	var ordered []string
	if index == nil {
		r.logger.Warn("relevance index absent, recommending registry order")
		for _, a := range agents {
			ordered = append(ordered, a.Name)
		}
	} else {
		for _, s := range index.Rank(query) {
			ordered = append(ordered, s.Name)
		}
	}

	if topN < 0 {
		topN = 0
	}
	recs := make([]string, 0, topN)
	for _, name := range ordered {
		if len(recs) >= topN {
			break
		}
		if exclude[name] {
			continue
		}
		recs = append(recs, name)
	}
	return recs, nil
}

// ShouldSwitch computes the confidence gap between the best-matching agent
// and the current one, and recommends a switch iff the best agent differs
// and the gap exceeds threshold. With an absent index the decision degrades
// to "stay" with confidence 0.0 and is logged, never raised.
func (r *Recommender) ShouldSwitch(query, currentAgent string, threshold float64) (domain.RoutingDecision, error) {
	decision := domain.RoutingDecision{
		Query:            query,
		CurrentAgent:     currentAgent,
		RecommendedAgent: currentAgent,
	}

	agents, index := r.registry.Snapshot()
	if len(agents) == 0 {
		return decision, domain.NewDomainError("should switch", domain.ErrNoAgents, "registry is empty")
	}
	if index == nil {
		r.logger.Warn("relevance index absent, staying with default agent",
			"current", currentAgent)
		if currentAgent == "" {
			decision.RecommendedAgent = r.fallbackAgent(agents)
		}
		return decision, nil
	}

	scores := index.Score(query)

	ranked := index.Rank(query)
	best := ranked[0]

	confidence := best.Score - scores[currentAgent]
	decision.Confidence = confidence

	if currentAgent == "" {
		// No active agent yet: the best match simply takes the turn.
		decision.RecommendedAgent = best.Name
		decision.Switch = true
		return decision, nil
	}

	if best.Name != currentAgent && confidence > threshold {
		decision.RecommendedAgent = best.Name
		decision.Switch = true
	}
	return decision, nil
}

// fallbackAgent resolves the degraded-mode target: the configured default
// when it exists in the registry, otherwise the first agent.
func (r *Recommender) fallbackAgent(agents []domain.AgentProfile) string {
	if r.defaultAgent != "" {
		for _, a := range agents {
			if a.Name == r.defaultAgent {
				return r.defaultAgent
			}
		}
	}
	return agents[0].Name
}
